package docstore

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/db"
)

// mockStore implements the consumer interface for tests. The docs map,
// when set, backs JSONGet/JSONGetMulti/Transform with in-memory state
// so read-modify-write paths behave like the real store.
type mockStore struct {
	docs map[string][]byte

	jsonSetFn      func(ctx context.Context, key, path string, data []byte) error
	jsonSetMultiFn func(ctx context.Context, items []db.JSONSetItem) error
	jsonGetFn      func(ctx context.Context, key string, paths ...string) ([]byte, error)
	jsonGetMultiFn func(ctx context.Context, keys []string) ([][]byte, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	transformFn    func(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error)
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	if m.docs != nil {
		m.docs[key] = data
	}
	return nil
}

func (m *mockStore) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	if m.jsonSetMultiFn != nil {
		return m.jsonSetMultiFn(ctx, items)
	}
	if m.docs != nil {
		for _, item := range items {
			m.docs[item.Key] = item.Data
		}
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	if m.docs != nil {
		data, ok := m.docs[key]
		if !ok {
			return nil, db.ErrKeyNotFound
		}
		return wrap(data), nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if m.jsonGetMultiFn != nil {
		return m.jsonGetMultiFn(ctx, keys)
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if data, ok := m.docs[key]; ok {
			out[i] = wrap(data)
		}
	}
	return out, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	delete(m.docs, key)
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	_, ok := m.docs[key]
	return ok, nil
}

func (m *mockStore) Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error) {
	if m.transformFn != nil {
		return m.transformFn(ctx, key, fn)
	}
	var old []byte
	if data, ok := m.docs[key]; ok {
		old = data
	}
	next, err := fn(old)
	if err != nil {
		return nil, err
	}
	if m.docs != nil {
		m.docs[key] = next
	}
	return next, nil
}

// wrap emulates the JSONPath array envelope of JSON.GET $.
func wrap(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, '[')
	out = append(out, data...)
	out = append(out, ']')
	return out
}
