package review

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Books mutates catalog documents.
type Books interface {
	Update(ctx context.Context, id string, fn func(b *domain.Book) error) (*domain.Book, error)
}

// Notifier flushes cache entries made stale by a mutation.
type Notifier interface {
	ReviewAdded(bookID string)
}
