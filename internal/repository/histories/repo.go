package histories

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/repository/docstore"
)

// store is the consumer interface for search histories (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
}

// Repo persists per-user search histories. The document ID is the
// user ID, so every user has at most one history document.
type Repo struct {
	coll *docstore.Collection[domain.SearchHistory, *domain.SearchHistory]
}

// New creates a search-history repository.
func New(s store, log *zap.Logger, keyPrefix string) *Repo {
	return &Repo{
		coll: docstore.NewCollection[domain.SearchHistory, *domain.SearchHistory](
			s, log, "search-history", keyPrefix+"search-history:"),
	}
}

// Find returns a user's history, or domain.ErrNotFound when the user
// has never searched.
func (r *Repo) Find(ctx context.Context, userID string) (*domain.SearchHistory, error) {
	return r.coll.FindOne(ctx, userID)
}

// Upsert applies fn to the user's history atomically, creating the
// document on first use.
func (r *Repo) Upsert(ctx context.Context, userID string, fn func(h *domain.SearchHistory) error) (*domain.SearchHistory, error) {
	return r.coll.Upsert(ctx, userID, fn)
}
