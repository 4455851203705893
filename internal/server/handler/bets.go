package handler

import (
	"log/slog"
	"net/http"

	"github.com/npanium/zkLeaderboard/internal/crypto"
	"github.com/npanium/zkLeaderboard/internal/domain"
)

// BetHandler serves relayed bet submission and ledger queries.
type BetHandler struct {
	svc    Betting
	eng    EngineReader
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(svc Betting, eng EngineReader, logger *slog.Logger) *BetHandler {
	return &BetHandler{svc: svc, eng: eng, logger: logHandler(logger, "bets")}
}

// signedBetRequest is a relayed authorization. Amount is a base-10 string and
// Signature is 0x-prefixed hex.
type signedBetRequest struct {
	Bettor    string `json:"bettor"`
	Candidate string `json:"candidate"`
	Position  bool   `json:"position"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Deadline  uint64 `json:"deadline"`
	Signature string `json:"signature"`
}

func (req signedBetRequest) authorization() (domain.BetAuthorization, error) {
	var auth domain.BetAuthorization
	var err error
	if auth.Bettor, err = parseAddress("bettor", req.Bettor); err != nil {
		return auth, err
	}
	if auth.Candidate, err = parseAddress("candidate", req.Candidate); err != nil {
		return auth, err
	}
	if auth.Amount, err = parseAmount("amount", req.Amount); err != nil {
		return auth, err
	}
	if auth.Signature, err = crypto.DecodeSignatureHex(req.Signature); err != nil {
		return auth, err
	}
	auth.Position = req.Position
	auth.Nonce = req.Nonce
	auth.Deadline = req.Deadline
	return auth, nil
}

// PlaceBet records a signed wager on behalf of its bettor.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req signedBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	auth, err := req.authorization()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.PlaceSignedBet(r.Context(), auth); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"round":      h.eng.Round(),
		"bet_count":  h.eng.BetCount(),
		"next_nonce": h.eng.Nonce(auth.Bettor),
	})
}

// VerifyBet checks a signed wager without placing it.
// POST /api/bets/verify
func (h *BetHandler) VerifyBet(w http.ResponseWriter, r *http.Request) {
	var req signedBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	auth, err := req.authorization()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.VerifyBet(auth); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// Count returns the number of bets in the ledger.
// GET /api/bets/count
func (h *BetHandler) Count(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": h.eng.BetCount()})
}

// GetBet returns one ledger entry.
// GET /api/bets/{index}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bet, err := h.eng.GetBet(index)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// Amounts returns the up and down totals of one candidate slot.
// GET /api/bets/amounts/{index}
func (h *BetHandler) Amounts(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, err := h.eng.UpAmount(index)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	down, err := h.eng.DownAmount(index)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := map[string]any{"index": index, "up": up, "down": down}
	if candidates := h.eng.Candidates(); index < len(candidates) {
		resp["candidate"] = candidates[index]
	}
	writeJSON(w, http.StatusOK, resp)
}
