package history

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Repository defines the storage contract for search histories.
type Repository interface {
	Find(ctx context.Context, userID string) (*domain.SearchHistory, error)
	Upsert(ctx context.Context, userID string, fn func(h *domain.SearchHistory) error) (*domain.SearchHistory, error)
}

// Cache reads and writes action results.
type Cache interface {
	Key(action string, params ...string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Notifier flushes cache entries made stale by a mutation.
type Notifier interface {
	SearchRecorded(userID string)
}
