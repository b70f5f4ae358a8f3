package books

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
)

func newTestRepo(s *mockStore) *Repo {
	return New(s, zap.NewNop(), "test:")
}

func mustBook(t *testing.T, key, title string, authors ...string) *domain.Book {
	t.Helper()
	b, err := domain.NewBook(domain.Candidate{Key: key, Title: title, Authors: authors})
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	return &b
}

func TestInsert_ClaimsKeyIndex(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	b := mustBook(t, "OL1M", "Dune", "Frank Herbert")
	if err := r.Insert(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idxVal, ok := s.kv["test:books:key:ol1m"]
	if !ok {
		t.Fatalf("expected key index entry, have %v", s.kv)
	}
	if string(idxVal) != b.ID {
		t.Errorf("index points at %s, want %s", idxVal, b.ID)
	}
	if _, ok := s.docs["test:books:"+b.ID]; !ok {
		t.Error("expected book document stored")
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	first := mustBook(t, "OL1M", "Dune")
	if err := r.Insert(context.Background(), first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := mustBook(t, "ol1m", "Dune reissue")
	err := r.Insert(context.Background(), second)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if !errors.Is(err, db.ErrKeyExists) {
		t.Fatalf("expected the db.ErrKeyExists claim signal, got %v", err)
	}
	if len(s.docs) != 1 {
		t.Errorf("losing insert must not write a document, have %d", len(s.docs))
	}
}

func TestInsert_ReleasesIndexOnWriteFailure(t *testing.T) {
	s := newMockStore()
	s.jsonSetFn = func(ctx context.Context, key, path string, data []byte) error {
		return context.DeadlineExceeded
	}
	r := newTestRepo(s)

	err := r.Insert(context.Background(), mustBook(t, "OL1M", "Dune"))
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.kv["test:books:key:ol1m"]; ok {
		t.Error("expected index entry released after failed document write")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	_, err := r.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func TestFindByKey_RoundTrip(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	in := mustBook(t, "OL1M", "Dune")
	if err := r.Insert(context.Background(), in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := r.FindByKey(context.Background(), "ol1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != in.ID || out.Title != "Dune" {
		t.Errorf("unexpected book: %+v", out)
	}
}

func TestFindByKeys_PartialMatches(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	dune := mustBook(t, "OL1M", "Dune")
	hobbit := mustBook(t, "OL2M", "The Hobbit")
	for _, b := range []*domain.Book{dune, hobbit} {
		if err := r.Insert(context.Background(), b); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := r.FindByKeys(context.Background(), []string{"ol1m", "ol9m", "ol2m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if got["ol1m"] == nil || got["ol1m"].Title != "Dune" {
		t.Errorf("ol1m: %+v", got["ol1m"])
	}
	if got["ol2m"] == nil || got["ol2m"].Title != "The Hobbit" {
		t.Errorf("ol2m: %+v", got["ol2m"])
	}
	if _, ok := got["ol9m"]; ok {
		t.Error("unknown key must be absent from result")
	}
}

func TestUpdate_AppliesTransform(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	in := mustBook(t, "OL1M", "Dune")
	if err := r.Insert(context.Background(), in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := r.Update(context.Background(), in.ID, func(b *domain.Book) error {
		return b.ApplyReview(domain.Review{ReviewerID: "u1", Rating: 4})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RatingCount != 1 || out.RatingAvg == nil || *out.RatingAvg != 4 {
		t.Errorf("unexpected aggregates: %+v", out)
	}
}

func TestSearchTokens_BuildsPrefixQuery(t *testing.T) {
	s := newMockStore()
	dune := mustBook(t, "OL1M", "Dune", "Frank Herbert")
	raw, _ := json.Marshal(dune)

	var gotQuery string
	s.searchListFn = func(
		ctx context.Context, index, query string, offset, limit int, fields []string,
	) (*db.SearchResult, error) {
		gotQuery = query
		return &db.SearchResult{
			Total: 1,
			Entries: []db.SearchEntry{
				{Key: "test:books:" + dune.ID, Fields: map[string]string{"$": string(raw)}},
			},
		}, nil
	}
	r := newTestRepo(s)

	out, total, err := r.SearchTokens(context.Background(), "Dún her", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(out) != 1 {
		t.Fatalf("expected one hit, got total=%d len=%d", total, len(out))
	}
	if out[0].Title != "Dune" {
		t.Errorf("unexpected title: %s", out[0].Title)
	}
	for _, want := range []string{"{dun*}", "{her*}", "authorTokens"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearchTokens_EmptyQuery(t *testing.T) {
	s := newMockStore()
	r := newTestRepo(s)

	out, total, err := r.SearchTokens(context.Background(), "  ¿¡  ", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || out != nil {
		t.Errorf("expected empty result for tokenless query, got %v (total %d)", out, total)
	}
}
