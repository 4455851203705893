package handler

import (
	"log/slog"
	"net/http"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// EngineHandler serves the operator lifecycle endpoints and the public
// window queries.
type EngineHandler struct {
	svc    Betting
	eng    EngineReader
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(svc Betting, eng EngineReader, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{svc: svc, eng: eng, logger: logHandler(logger, "engine")}
}

type initRequest struct {
	Operator string `json:"operator"`
	Treasury string `json:"treasury"`
	Token    string `json:"token"`
}

// Init records the engine principals.
// POST /api/engine/init
func (h *EngineHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	operator, err := parseAddress("operator", req.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	treasury, err := parseAddress("treasury", req.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Init(r.Context(), operator, treasury, token); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

type startWindowRequest struct {
	Candidates []string `json:"candidates"`
}

// StartWindow opens a round over the given roster.
// POST /api/window/start
func (h *EngineHandler) StartWindow(w http.ResponseWriter, r *http.Request) {
	var req startWindowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	candidates := make([]domain.Address, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		addr, err := parseAddress("candidates", c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		candidates = append(candidates, addr)
	}

	if err := h.svc.StartWindow(r.Context(), candidates); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// CloseWindow stops accepting bets.
// POST /api/window/close
func (h *EngineHandler) CloseWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseWindow(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// WindowStatus returns the current engine snapshot.
// GET /api/window/status
func (h *EngineHandler) WindowStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

type payoutsRequest struct {
	Winners []bool `json:"winners"`
}

// ProcessPayouts settles the closed round.
// POST /api/payouts
func (h *EngineHandler) ProcessPayouts(w http.ResponseWriter, r *http.Request) {
	var req payoutsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.svc.Settle(r.Context(), req.Winners)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Candidate reports whether an address is on the current roster.
// GET /api/candidates/{address}
func (h *EngineHandler) Candidate(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"valid":   h.eng.IsValidAddress(addr),
	})
}

// Nonce returns the next signed-bet nonce for an address.
// GET /api/nonces/{address}
func (h *EngineHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"nonce":   h.eng.Nonce(addr),
	})
}
