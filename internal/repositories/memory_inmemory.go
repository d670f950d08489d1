package repositories

import (
	"context"
	"sort"
	"sync"

	domain "github.com/cloud-atlas/api/internal/domain"
)

// InMemoryMemoryRepository keeps accepted posts in process memory. It backs
// local development and tests where no Firestore emulator is available.
type InMemoryMemoryRepository struct {
	mu       sync.RWMutex
	memories []domain.Memory
}

// NewInMemoryMemoryRepository constructs an empty in-memory repository.
func NewInMemoryMemoryRepository() *InMemoryMemoryRepository {
	return &InMemoryMemoryRepository{}
}

// Insert appends the memory.
func (r *InMemoryMemoryRepository) Insert(_ context.Context, memory domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories = append(r.memories, memory)
	return nil
}

// List returns the most recent memories, newest first, capped at limit.
func (r *InMemoryMemoryRepository) List(_ context.Context, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Memory, len(r.memories))
	copy(out, r.memories)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
