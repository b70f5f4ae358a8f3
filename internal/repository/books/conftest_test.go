package books

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/db"
)

// mockStore backs the repository with in-memory maps: docs holds JSON
// documents, kv holds plain keys (the unique-key index entries).
type mockStore struct {
	docs map[string][]byte
	kv   map[string][]byte

	setNXFn      func(ctx context.Context, key string, value []byte) (bool, error)
	jsonSetFn    func(ctx context.Context, key, path string, data []byte) error
	searchListFn func(
		ctx context.Context, index, query string, offset, limit int, fields []string,
	) (*db.SearchResult, error)
}

func newMockStore() *mockStore {
	return &mockStore{docs: map[string][]byte{}, kv: map[string][]byte{}}
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	m.docs[key] = data
	return nil
}

func (m *mockStore) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	for _, item := range items {
		m.docs[item.Key] = item.Data
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	data, ok := m.docs[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return wrap(data), nil
}

func (m *mockStore) JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if data, ok := m.docs[key]; ok {
			out[i] = wrap(data)
		}
	}
	return out, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	delete(m.docs, key)
	delete(m.kv, key)
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.docs[key]
	return ok, nil
}

func (m *mockStore) Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error) {
	var old []byte
	if data, ok := m.docs[key]; ok {
		old = data
	}
	next, err := fn(old)
	if err != nil {
		return nil, err
	}
	m.docs[key] = next
	return next, nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockStore) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if data, ok := m.kv[key]; ok {
			out[i] = data
		}
	}
	return out, nil
}

func (m *mockStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(ctx, key, value)
	}
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *mockStore) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, index, query, offset, limit, fields)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	return 0, nil
}

func wrap(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, '[')
	out = append(out, data...)
	out = append(out, ']')
	return out
}
