package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/domain/token"
	"github.com/kailas-cloud/bookdex/internal/repository/docstore"
)

// store is the consumer interface for the book catalog (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo persists books. A book's catalog key is unique case- and
// diacritic-insensitively; the arbiter is a SET NX index entry from
// normalized key to document ID, written before the document itself.
type Repo struct {
	coll   *docstore.Collection[domain.Book, *domain.Book]
	store  store
	log    *zap.Logger
	prefix string
}

// New creates a book repository. keyPrefix is the global storage
// prefix (e.g. "bookdex:").
func New(s store, log *zap.Logger, keyPrefix string) *Repo {
	return &Repo{
		coll:   docstore.NewCollection[domain.Book, *domain.Book](s, log, "books", keyPrefix+"books:"),
		store:  s,
		log:    log.Named("repo.books"),
		prefix: keyPrefix,
	}
}

// IndexName returns the FT index name for the catalog.
func (r *Repo) IndexName() string {
	return r.prefix + "books:idx"
}

// IndexDefinition describes the catalog search index: token arrays as
// TAG fields for prefix matching, rating average as NUMERIC.
func (r *Repo) IndexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:        r.IndexName(),
		StorageType: db.StorageJSON,
		Prefixes:    []string{r.prefix + "books:"},
		Fields: []db.IndexField{
			{Name: "$.titleTokens[*]", Alias: "titleTokens", Type: db.IndexFieldTag},
			{Name: "$.authorTokens[*]", Alias: "authorTokens", Type: db.IndexFieldTag},
			{Name: "$.ratingAvg", Alias: "ratingAvg", Type: db.IndexFieldNumeric},
		},
	}
}

func (r *Repo) keyIndex(normalizedKey string) string {
	return r.prefix + "books:key:" + normalizedKey
}

// Insert stores a new book. The unique-key index entry is claimed
// first; losing the claim means another writer holds this catalog key
// and the error matches both db.ErrKeyExists and
// domain.ErrAlreadyExists, with no document written.
func (r *Repo) Insert(ctx context.Context, b *domain.Book) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	idxKey := r.keyIndex(b.NormalizedKey())
	ok, err := r.store.SetNX(ctx, idxKey, []byte(b.ID))
	if err != nil {
		return fmt.Errorf("claim key index %s: %w", idxKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: %w", db.ErrKeyExists, domain.ErrAlreadyExists)
	}

	if err := r.coll.InsertOne(ctx, b); err != nil {
		// Release the arbiter so the key is not orphaned.
		_ = r.store.Del(ctx, idxKey)
		return err
	}
	return nil
}

// Get returns a book by document ID.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Book, error) {
	b, err := r.coll.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	return b, nil
}

// FindByKey returns the book holding the given normalized catalog key.
func (r *Repo) FindByKey(ctx context.Context, normalizedKey string) (*domain.Book, error) {
	idRaw, err := r.store.Get(ctx, r.keyIndex(normalizedKey))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("key index lookup %s: %w", normalizedKey, err)
	}
	return r.Get(ctx, string(idRaw))
}

// FindByKeys resolves normalized catalog keys to books in two
// round-trips: index entries, then the documents. Unknown keys are
// simply absent from the result map.
func (r *Repo) FindByKeys(ctx context.Context, normalizedKeys []string) (map[string]*domain.Book, error) {
	if len(normalizedKeys) == 0 {
		return map[string]*domain.Book{}, nil
	}

	idxKeys := make([]string, len(normalizedKeys))
	for i, nk := range normalizedKeys {
		idxKeys[i] = r.keyIndex(nk)
	}

	idRaws, err := r.store.GetMulti(ctx, idxKeys)
	if err != nil {
		return nil, fmt.Errorf("key index lookup: %w", err)
	}

	ids := make([]string, 0, len(idRaws))
	normByID := make(map[string]string, len(idRaws))
	for i, raw := range idRaws {
		if raw == nil {
			continue
		}
		id := string(raw)
		ids = append(ids, id)
		normByID[id] = normalizedKeys[i]
	}

	docs, err := r.coll.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*domain.Book, len(docs))
	for _, b := range docs {
		if b == nil {
			continue
		}
		out[normByID[b.ID]] = b
	}
	return out, nil
}

// FindByIDs returns books for the given document IDs, skipping
// missing ones.
func (r *Repo) FindByIDs(ctx context.Context, ids []string) ([]*domain.Book, error) {
	docs, err := r.coll.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Book, 0, len(docs))
	for _, b := range docs {
		if b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// Update applies fn to a book atomically.
func (r *Repo) Update(ctx context.Context, id string, fn func(b *domain.Book) error) (*domain.Book, error) {
	b, err := r.coll.UpdateOne(ctx, id, fn)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	return b, nil
}

// Exists reports whether a book document is present.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	return r.coll.Exists(ctx, id)
}

// SearchTokens runs a token-prefix search over the local catalog.
// Every query token must prefix-match a title or author token; the
// query text goes through the same normalization as write-time
// tokenization, so tokens are safe TAG literals by construction.
func (r *Repo) SearchTokens(ctx context.Context, q string, offset, limit int) ([]*domain.Book, int, error) {
	toks := token.Tokenize(q)
	if len(toks) == 0 {
		return nil, 0, nil
	}

	clauses := make([]string, len(toks))
	for i, tok := range toks {
		clauses[i] = fmt.Sprintf("(@titleTokens:{%s*} | @authorTokens:{%s*})", tok, tok)
	}
	query := strings.Join(clauses, " ")

	res, err := r.store.SearchList(ctx, r.IndexName(), query, offset, limit, []string{"$"})
	if err != nil {
		return nil, 0, fmt.Errorf("catalog search: %w", err)
	}

	out := make([]*domain.Book, 0, len(res.Entries))
	for _, entry := range res.Entries {
		raw := entry.Fields["$"]
		if raw == "" {
			continue
		}
		var b domain.Book
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			r.log.Warn("skipping undecodable search hit",
				zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		out = append(out, &b)
	}
	return out, res.Total, nil
}
