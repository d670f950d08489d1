package handlers

import (
	"net/http"
	"time"

	"github.com/cloud-atlas/api/internal/platform/httpx"
)

var startTime = time.Now()

// Healthz responds with a simple status payload for liveness monitoring.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
