package libraries

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/repository/docstore"
)

// store is the consumer interface for user libraries (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
}

// Repo persists per-user libraries, one document per user keyed by
// the user ID.
type Repo struct {
	coll *docstore.Collection[domain.Library, *domain.Library]
}

// New creates a library repository.
func New(s store, log *zap.Logger, keyPrefix string) *Repo {
	return &Repo{
		coll: docstore.NewCollection[domain.Library, *domain.Library](
			s, log, "library", keyPrefix+"library:"),
	}
}

// Find returns a user's library, or domain.ErrNotFound when the user
// has never saved a book.
func (r *Repo) Find(ctx context.Context, userID string) (*domain.Library, error) {
	return r.coll.FindOne(ctx, userID)
}

// Upsert applies fn to the user's library atomically, creating the
// document on first use.
func (r *Repo) Upsert(ctx context.Context, userID string, fn func(l *domain.Library) error) (*domain.Library, error) {
	return r.coll.Upsert(ctx, userID, fn)
}
