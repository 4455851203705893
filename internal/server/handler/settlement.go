package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// SettlementHandler serves stored settlement history, indexed events and the
// audit log.
type SettlementHandler struct {
	svc    Betting
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(svc Betting, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logHandler(logger, "settlements")}
}

// List returns recent settlement reports.
// GET /api/settlements?limit=20
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	reports, err := h.svc.RecentSettlements(r.Context(), opts.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if reports == nil {
		reports = []domain.SettlementReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": reports})
}

// Get returns one settlement report.
// GET /api/settlements/{id}
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Settlement(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Archived returns the reports archived in object storage for one round.
// GET /api/settlements/archive?round=N
func (h *SettlementHandler) Archived(w http.ResponseWriter, r *http.Request) {
	round, ok := queryRound(w, r)
	if !ok {
		return
	}
	reports, err := h.svc.ArchivedSettlements(r.Context(), round)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": round, "settlements": reports})
}

// RoundEvents returns the indexed events of one round.
// GET /api/events?round=N
func (h *SettlementHandler) RoundEvents(w http.ResponseWriter, r *http.Request) {
	round, ok := queryRound(w, r)
	if !ok {
		return
	}
	events, err := h.svc.RoundEvents(r.Context(), round)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": round, "events": events})
}

// Audit returns operator actions, newest first.
// GET /api/audit?limit=50&offset=0&since=...&until=...
func (h *SettlementHandler) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.AuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func queryRound(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	round, err := strconv.ParseUint(r.URL.Query().Get("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "round query parameter must be a non-negative integer")
		return 0, false
	}
	return round, true
}
