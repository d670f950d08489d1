package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteJSON encodes the payload as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// RateLimitState carries the values emitted as standard rate-limit headers.
type RateLimitState struct {
	Limit     int
	Remaining int
	ResetAt   string
}

// SetRateLimitHeaders writes the X-RateLimit-* trio when state is populated.
func SetRateLimitHeaders(w http.ResponseWriter, state RateLimitState) {
	if state.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", itoa(state.Limit))
	w.Header().Set("X-RateLimit-Remaining", itoa(state.Remaining))
	if state.ResetAt != "" {
		w.Header().Set("X-RateLimit-Reset", state.ResetAt)
	}
}

func itoa(v int) string {
	if v < 0 {
		v = 0
	}
	return strconv.Itoa(v)
}
