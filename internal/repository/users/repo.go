package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/domain/token"
	"github.com/kailas-cloud/bookdex/internal/repository/docstore"
)

// store is the consumer interface for user accounts (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// Repo persists user accounts with a case-insensitive unique email,
// enforced by a SET NX index entry from normalized email to user ID.
type Repo struct {
	coll   *docstore.Collection[domain.User, *domain.User]
	store  store
	log    *zap.Logger
	prefix string
}

// New creates a user repository.
func New(s store, log *zap.Logger, keyPrefix string) *Repo {
	return &Repo{
		coll:   docstore.NewCollection[domain.User, *domain.User](s, log, "users", keyPrefix+"users:"),
		store:  s,
		log:    log.Named("repo.users"),
		prefix: keyPrefix,
	}
}

func (r *Repo) emailIndex(email string) string {
	return r.prefix + "users:email:" + token.Normalize(email)
}

// Create stores a new user. The email index entry is claimed first; a
// taken email yields domain.ErrAlreadyExists with no document written.
func (r *Repo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	idxKey := r.emailIndex(u.Email)
	ok, err := r.store.SetNX(ctx, idxKey, []byte(u.ID))
	if err != nil {
		return fmt.Errorf("claim email index: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %w", db.ErrKeyExists, domain.ErrAlreadyExists)
	}

	if err := r.coll.InsertOne(ctx, u); err != nil {
		_ = r.store.Del(ctx, idxKey)
		return err
	}
	return nil
}

// Get returns a user by ID.
func (r *Repo) Get(ctx context.Context, id string) (*domain.User, error) {
	return r.coll.FindOne(ctx, id)
}

// FindByEmail resolves an email (case-insensitively) to the user.
func (r *Repo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	idRaw, err := r.store.Get(ctx, r.emailIndex(email))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("email index lookup: %w", err)
	}
	return r.coll.FindOne(ctx, string(idRaw))
}

// Update applies fn to a user atomically.
func (r *Repo) Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error) {
	return r.coll.UpdateOne(ctx, id, fn)
}
