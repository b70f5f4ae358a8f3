package library

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Repository defines the storage contract for user libraries.
type Repository interface {
	Find(ctx context.Context, userID string) (*domain.Library, error)
	Upsert(ctx context.Context, userID string, fn func(l *domain.Library) error) (*domain.Library, error)
}

// Books reads catalog documents for membership checks and listings.
type Books interface {
	Exists(ctx context.Context, id string) (bool, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Book, error)
}

// Cache reads and writes action results.
type Cache interface {
	Key(action string, params ...string) string
	Prefix(action string, params ...string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Notifier flushes cache entries made stale by a mutation.
type Notifier interface {
	LibraryChanged(userID string)
}
