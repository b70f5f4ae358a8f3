package catalog

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Provider searches the upstream catalog.
type Provider interface {
	Search(ctx context.Context, q string, page int) ([]domain.Candidate, error)
}

// AssetFetcher downloads cover images.
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Books is the local catalog storage contract.
type Books interface {
	Insert(ctx context.Context, b *domain.Book) error
	Get(ctx context.Context, id string) (*domain.Book, error)
	FindByKey(ctx context.Context, normalizedKey string) (*domain.Book, error)
	FindByKeys(ctx context.Context, normalizedKeys []string) (map[string]*domain.Book, error)
	Update(ctx context.Context, id string, fn func(b *domain.Book) error) (*domain.Book, error)
	SearchTokens(ctx context.Context, q string, offset, limit int) ([]*domain.Book, int, error)
}

// Libraries reads a user's saved-book set for view annotation.
type Libraries interface {
	Find(ctx context.Context, userID string) (*domain.Library, error)
}

// History records search queries.
type History interface {
	Record(ctx context.Context, userID, q string) error
}

// Assets stores fetched cover bytes.
type Assets interface {
	Set(ctx context.Context, key string, value []byte) error
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
	BookInserted(bookID string)
	CoverAttached(bookID string)
}
