package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/cloud-atlas/api/internal/domain"
	pfirestore "github.com/cloud-atlas/api/internal/platform/firestore"
)

const defaultMemoryCollection = "memories"

type memoryRow struct {
	Memory    string `firestore:"memory"`
	MemoryID  string `firestore:"memory_id"`
	UserID    string `firestore:"user_id"`
	CreatedAt int64  `firestore:"created_at"`
}

// MemoryRepository persists wall posts in a single Firestore collection.
type MemoryRepository struct {
	base *pfirestore.BaseRepository[memoryRow]
}

// NewMemoryRepository constructs a Firestore-backed memory repository.
func NewMemoryRepository(provider *pfirestore.Provider, collection string) (*MemoryRepository, error) {
	if provider == nil {
		return nil, errors.New("memory repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultMemoryCollection
	}
	return &MemoryRepository{
		base: pfirestore.NewBaseRepository[memoryRow](provider, collection),
	}, nil
}

// Insert stores the memory under its generated document ID.
func (r *MemoryRepository) Insert(ctx context.Context, memory domain.Memory) error {
	row := memoryRow{
		Memory:    memory.Memory,
		MemoryID:  memory.MemoryID,
		UserID:    domain.AnonymousUserID,
		CreatedAt: memory.CreatedAt.UnixMilli(),
	}
	_, err := r.base.Set(ctx, memory.ID, row)
	return err
}

// List returns the most recent memories, newest first.
func (r *MemoryRepository) List(ctx context.Context, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("created_at", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	memories := make([]domain.Memory, 0, len(docs))
	for _, doc := range docs {
		memories = append(memories, decodeMemoryDocument(doc))
	}
	return memories, nil
}

func decodeMemoryDocument(doc pfirestore.Document[memoryRow]) domain.Memory {
	return domain.Memory{
		ID:        doc.ID,
		Memory:    doc.Data.Memory,
		MemoryID:  doc.Data.MemoryID,
		CreatedAt: time.UnixMilli(doc.Data.CreatedAt).UTC(),
	}
}
