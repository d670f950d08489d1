package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/platform/requestctx"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Code       domain.ErrorCode
	Message    string
	Status     int
	RequestID  string
	RetryAfter time.Duration
}

// NewError constructs a new Error with the provided parameters.
func NewError(code domain.ErrorCode, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    code,
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithRequestID sets the correlation identifier on the error payload.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, 80)
	return e
}

// WithRetryAfter attaches a Retry-After hint emitted as a header in seconds.
func (e Error) WithRetryAfter(d time.Duration) Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

type errorPayload struct {
	Error     string           `json:"error"`
	Code      domain.ErrorCode `json:"code"`
	Timestamp string           `json:"timestamp"`
	RequestID string           `json:"requestId,omitempty"`
}

// WriteError writes the structured error as JSON to the provided response
// writer. In production mode the message is replaced by the generic message
// for the error code so internal detail never reaches clients.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error, production bool) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(requestctx.RequestID(ctx), 80)
	}

	message := err.Message
	if production || message == "" {
		message = domain.GenericMessage(err.Code)
	}

	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(err.RetryAfter))
	}

	WriteJSON(w, status, errorPayload{
		Error:     message,
		Code:      err.Code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
