package repositories

import (
	"context"
	"errors"

	domain "github.com/cloud-atlas/api/internal/domain"
)

// RepositoryError classifies persistence failures for the admission pipeline.
// The pipeline only needs one distinction: transient backend outages, which
// the boundary answers with a retryable status, versus everything else.
type RepositoryError interface {
	error
	IsUnavailable() bool
}

// IsUnavailable reports whether err is a transient persistence outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// MemoryRepository persists accepted wall posts.
type MemoryRepository interface {
	// Insert stores a new memory under its generated ID.
	Insert(ctx context.Context, memory domain.Memory) error
	// List returns the most recent memories, newest first, capped at limit.
	List(ctx context.Context, limit int) ([]domain.Memory, error)
}
