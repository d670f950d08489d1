package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/moderation"
	"github.com/cloud-atlas/api/internal/platform/httpx"
	"github.com/cloud-atlas/api/internal/platform/requestctx"
	"github.com/cloud-atlas/api/internal/repositories"
	"github.com/cloud-atlas/api/internal/services"
)

const maxMemoryBodySize = 64 * 1024

// MemoryHandlers exposes the anonymous wall endpoints.
type MemoryHandlers struct {
	memories   services.MemoryService
	production bool
}

// NewMemoryHandlers constructs a new MemoryHandlers instance.
func NewMemoryHandlers(memories services.MemoryService, production bool) *MemoryHandlers {
	return &MemoryHandlers{
		memories:   memories,
		production: production,
	}
}

// Routes registers the /api endpoints.
func (h *MemoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/post-memory", h.postMemory)
	r.Get("/get-memories", h.getMemories)
}

func (h *MemoryHandlers) postMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.memories == nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeInternalError, "memory service unavailable", http.StatusServiceUnavailable), h.production)
		return
	}

	// Content-type and JSON shape are rejected before the pipeline runs so
	// malformed input never consumes rate budget or detector state.
	if !moderation.ValidContentType(r.Header.Get("Content-Type")) {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "Content-Type must be application/json", http.StatusUnsupportedMediaType), h.production)
		return
	}

	var req postMemoryRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMemoryBodySize))
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "Invalid JSON", http.StatusBadRequest), h.production)
		return
	}
	if req.Memory == nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "Memory must be a string", http.StatusBadRequest), h.production)
		return
	}

	// Advisory signal only; automation still goes through the full pipeline.
	if ua := r.UserAgent(); !moderation.ValidUserAgent(ua) {
		requestctx.Logger(ctx).Debug("bot-like user agent on write", zap.String("user_agent", ua))
	}

	result := h.memories.SubmitMemory(ctx, services.SubmitMemoryCommand{
		ClientIP: clientIdentity(r),
		Path:     "/api/post-memory",
		Memory:   *req.Memory,
	})

	httpx.SetRateLimitHeaders(w, rateHeaders(result.Rate))

	switch result.Decision {
	case services.DecisionAllowed:
		httpx.WriteJSON(w, http.StatusCreated, postMemoryResponse{
			Message:   "Saved",
			Data:      []domain.Memory{result.Memory},
			RequestID: requestctx.RequestID(ctx),
		})
	case services.DecisionInvalid:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, result.Reason, http.StatusBadRequest), h.production)
	case services.DecisionSpam:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeSpamDetected, "Content flagged as spam", http.StatusBadRequest), h.production)
	case services.DecisionDuplicate:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeDuplicateContent, "Duplicate or similar content detected", http.StatusConflict), h.production)
	case services.DecisionRateLimited:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests).WithRetryAfter(result.RetryAfter), h.production)
	case services.DecisionBlocked:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "Access denied", http.StatusForbidden), h.production)
	default:
		status := http.StatusInternalServerError
		if result.Unavailable {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeDatabaseError, "Failed to save memory", status), h.production)
	}
}

func (h *MemoryHandlers) getMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.memories == nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeInternalError, "memory service unavailable", http.StatusServiceUnavailable), h.production)
		return
	}

	check := h.memories.CheckRead(ctx, clientIdentity(r), "/api/get-memories")
	httpx.SetRateLimitHeaders(w, rateHeaders(check.Rate))

	switch check.Decision {
	case services.DecisionAllowed:
	case services.DecisionRateLimited:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests).WithRetryAfter(check.RetryAfter), h.production)
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "Access denied", http.StatusForbidden), h.production)
		return
	}

	memories, err := h.memories.ListMemories(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if repositories.IsUnavailable(err) {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeDatabaseError, "Fetch error", status), h.production)
		return
	}
	if memories == nil {
		memories = []domain.Memory{}
	}
	httpx.WriteJSON(w, http.StatusOK, memories)
}

type postMemoryRequest struct {
	// Pointer distinguishes a missing field from an empty string; the empty
	// string still reaches the validator for its own rejection message.
	Memory *string `json:"memory"`
}

type postMemoryResponse struct {
	Message   string          `json:"message"`
	Data      []domain.Memory `json:"data"`
	RequestID string          `json:"requestId"`
}

func rateHeaders(rate services.RateStatus) httpx.RateLimitState {
	state := httpx.RateLimitState{Limit: rate.Limit, Remaining: rate.Remaining}
	if !rate.ResetAt.IsZero() {
		state.ResetAt = rate.ResetAt.UTC().Format(time.RFC3339)
	}
	return state
}

// unknownClient is the shared throttling bucket for requests that arrive
// without any proxy-supplied client address.
const unknownClient = "unknown"

// clientIdentity resolves the caller identity used for throttling and
// blocking. Proxy headers are consulted in fixed precedence so a throttled
// client cannot hop buckets by adding a weaker header: X-Forwarded-For
// (first entry), then CF-Connecting-IP, then X-Real-IP.
func clientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(forwarded) != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return unknownClient
}
