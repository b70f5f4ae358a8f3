package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
)

// store is the consumer interface for document collections (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
}

// Doc is the contract every stored document type satisfies through its
// embedded domain.Meta.
type Doc interface {
	DocMeta() *domain.Meta
	Stamp(now time.Time)
}

// docPtr constrains P to be *T implementing Doc, so the collection can
// allocate fresh documents.
type docPtr[T any] interface {
	*T
	Doc
}

// Collection provides typed JSON document access over a single key
// prefix. Every write path stamps createdAt (first write wins) and
// updatedAt, including read-modify-write updates.
type Collection[T any, P docPtr[T]] struct {
	store  store
	log    *zap.Logger
	name   string
	prefix string
	now    func() time.Time
}

// NewCollection creates a collection named name whose documents live
// under prefix (e.g. "bookdex:books:").
func NewCollection[T any, P docPtr[T]](s store, log *zap.Logger, name, prefix string) *Collection[T, P] {
	return &Collection[T, P]{
		store:  s,
		log:    log.Named("docstore." + name),
		name:   name,
		prefix: prefix,
		now:    time.Now,
	}
}

// Key returns the storage key for a document ID.
func (c *Collection[T, P]) Key(id string) string {
	return c.prefix + id
}

// InsertOne stores a new document, assigning an ID when absent and
// stamping timestamps.
func (c *Collection[T, P]) InsertOne(ctx context.Context, doc P) error {
	c.prepare(doc)

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.name, err)
	}

	key := c.Key(doc.DocMeta().ID)
	if err := c.store.JSONSet(ctx, key, "$", data); err != nil {
		c.logErr("json.set", key, err)
		return err
	}
	return nil
}

// InsertMany stores multiple documents in one pipelined round-trip.
func (c *Collection[T, P]) InsertMany(ctx context.Context, docs []P) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]db.JSONSetItem, len(docs))
	for i, doc := range docs {
		c.prepare(doc)
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", c.name, err)
		}
		items[i] = db.JSONSetItem{Key: c.Key(doc.DocMeta().ID), Path: "$", Data: data}
	}

	if err := c.store.JSONSetMulti(ctx, items); err != nil {
		c.logErr("json.set", c.prefix+"*", err)
		return err
	}
	return nil
}

// FindOne returns a document by ID. Missing documents yield
// domain.ErrNotFound.
func (c *Collection[T, P]) FindOne(ctx context.Context, id string) (P, error) {
	key := c.Key(id)
	raw, err := c.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		c.logErr("json.get", key, err)
		return nil, err
	}

	root, err := unwrapRoot(raw)
	if err != nil || root == nil {
		if err == nil {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("decode %s %s: %w", c.name, id, err)
	}

	return c.decode(id, root)
}

// FindMany returns documents for the given IDs, preserving order.
// Missing IDs yield nil entries, not errors.
func (c *Collection[T, P]) FindMany(ctx context.Context, ids []string) ([]P, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.Key(id)
	}

	raws, err := c.store.JSONGetMulti(ctx, keys)
	if err != nil {
		c.logErr("json.get", c.prefix+"*", err)
		return nil, err
	}

	out := make([]P, len(ids))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		root, err := unwrapRoot(raw)
		if err != nil || root == nil {
			continue
		}
		doc, err := c.decode(ids[i], root)
		if err != nil {
			continue
		}
		out[i] = doc
	}
	return out, nil
}

// UpdateOne applies fn to an existing document atomically. The whole
// read-apply-write runs as one optimistic transaction; a concurrent
// writer triggers a retry with the fresh document. Missing documents
// yield domain.ErrNotFound.
func (c *Collection[T, P]) UpdateOne(ctx context.Context, id string, fn func(doc P) error) (P, error) {
	return c.transform(ctx, id, false, fn)
}

// Upsert is UpdateOne that creates the document when absent. fn
// receives a fresh zero document with only the ID set in that case;
// createdAt keeps its first-write value across subsequent upserts.
func (c *Collection[T, P]) Upsert(ctx context.Context, id string, fn func(doc P) error) (P, error) {
	return c.transform(ctx, id, true, fn)
}

// Delete removes a document. Deleting a missing document is a no-op.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	key := c.Key(id)
	if err := c.store.Del(ctx, key); err != nil {
		c.logErr("del", key, err)
		return err
	}
	return nil
}

// Exists reports whether a document is present.
func (c *Collection[T, P]) Exists(ctx context.Context, id string) (bool, error) {
	key := c.Key(id)
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		c.logErr("exists", key, err)
		return false, err
	}
	return ok, nil
}

func (c *Collection[T, P]) transform(ctx context.Context, id string, createMissing bool, fn func(doc P) error) (P, error) {
	key := c.Key(id)
	var result P

	_, err := c.store.Transform(ctx, key, func(old []byte) ([]byte, error) {
		var doc P
		switch {
		case old != nil:
			doc = P(new(T))
			if err := json.Unmarshal(old, doc); err != nil {
				return nil, fmt.Errorf("decode %s %s: %w", c.name, id, err)
			}
		case createMissing:
			doc = P(new(T))
			doc.DocMeta().ID = id
		default:
			return nil, domain.ErrNotFound
		}

		if err := fn(doc); err != nil {
			return nil, err
		}

		doc.Stamp(c.now())
		result = doc
		return json.Marshal(doc)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logErr("transform", key, err)
		}
		return nil, err
	}
	return result, nil
}

// prepare assigns a fresh ID to new documents and stamps timestamps.
func (c *Collection[T, P]) prepare(doc P) {
	meta := doc.DocMeta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	doc.Stamp(c.now())
}

func (c *Collection[T, P]) decode(id string, root []byte) (P, error) {
	doc := P(new(T))
	if err := json.Unmarshal(root, doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", c.name, id, err)
	}
	return doc, nil
}

func (c *Collection[T, P]) logErr(op, key string, err error) {
	c.log.Warn("store operation failed",
		zap.String("op", op),
		zap.String("collection", c.name),
		zap.String("key", key),
		zap.Error(err))
}

// unwrapRoot strips the JSONPath array envelope returned by JSON.GET $.
// Returns nil for an empty result.
func unwrapRoot(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}
