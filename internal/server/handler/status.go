package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the deployment mode and engine summary.
type StatusHandler struct {
	mode      string
	eng       EngineReader
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, eng EngineReader, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, eng: eng, startedAt: startedAt}
}

// GetStatus responds with the mode, uptime and engine snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"engine":         h.eng.Snapshot(),
	})
}
