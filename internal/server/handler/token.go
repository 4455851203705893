package handler

import (
	"log/slog"
	"net/http"
)

// TokenHandler serves the betting-token helpers.
type TokenHandler struct {
	svc    Betting
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(svc Betting, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{svc: svc, logger: logHandler(logger, "token")}
}

// Balance returns an account's token balance.
// GET /api/token/balance/{address}
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bal, err := h.svc.Balance(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "balance": bal})
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// MintTo credits tokens to an account.
// POST /api/token/mint-to
func (h *TokenHandler) MintTo(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Mint(r.Context(), to, amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"to": to, "amount": amount})
}
