package services

import (
	"context"
	"time"

	domain "github.com/cloud-atlas/api/internal/domain"
)

// Decision is the terminal outcome of an admission run.
type Decision string

const (
	DecisionAllowed     Decision = "allowed"
	DecisionBlocked     Decision = "blocked"
	DecisionRateLimited Decision = "rate_limited"
	DecisionInvalid     Decision = "invalid"
	DecisionSpam        Decision = "spam"
	DecisionDuplicate   Decision = "duplicate"
	DecisionError       Decision = "error"
)

// RateStatus carries the window state the boundary layer turns into
// X-RateLimit response headers.
type RateStatus struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// SubmitMemoryCommand is one write attempt entering the pipeline.
type SubmitMemoryCommand struct {
	ClientIP string
	Path     string
	Memory   string
}

// SubmitResult is the pipeline verdict for a write attempt. Memory is set
// only when Decision is DecisionAllowed; Reason carries the rejection detail
// for validation failures and the boundary decides what reaches the client.
type SubmitResult struct {
	Decision   Decision
	Reason     string
	Memory     domain.Memory
	Rate       RateStatus
	RetryAfter time.Duration
	// Unavailable marks a DecisionError caused by a transient persistence
	// outage, letting the boundary answer 503 instead of 500.
	Unavailable bool
}

// ReadResult is the pipeline verdict for a read attempt.
type ReadResult struct {
	Decision   Decision
	Rate       RateStatus
	RetryAfter time.Duration
}

// MemoryService runs submissions through the admission pipeline and serves
// the read path.
type MemoryService interface {
	SubmitMemory(ctx context.Context, cmd SubmitMemoryCommand) SubmitResult
	CheckRead(ctx context.Context, clientIP, path string) ReadResult
	ListMemories(ctx context.Context) ([]domain.Memory, error)
}

// BlocklistService manages the manual IP block set.
type BlocklistService interface {
	BlockIP(ip string)
	UnblockIP(ip string)
}

// MemoryCreatedMessage is the event payload broadcast after a successful
// write. Identifiers only; content never leaves the request path.
type MemoryCreatedMessage struct {
	DocumentID string    `json:"document_id"`
	MemoryID   string    `json:"memory_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemoryEventPublisher broadcasts created-memory events.
type MemoryEventPublisher interface {
	PublishMemoryCreated(ctx context.Context, message MemoryCreatedMessage) (string, error)
}
