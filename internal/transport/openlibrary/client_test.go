package openlibrary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:      baseURL,
		CoverBaseURL: "https://covers.example.org",
		PageSize:     10,
		Timeout:      2 * time.Second,
		Logger:       zap.NewNop(),
	})
}

func TestSearch_MapsDocs(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"numFound": 2,
			"docs": [
				{
					"key": "/works/OL45883W",
					"title": "Dune",
					"author_name": ["Frank Herbert"],
					"first_publish_year": 1965,
					"cover_i": 123
				},
				{
					"key": "/works/OL12345W",
					"title": "Untitled Draft"
				}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Search(context.Background(), "dune", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}

	first := out[0]
	if first.Key != "OL45883W" {
		t.Errorf("expected key tail, got %q", first.Key)
	}
	if first.Title != "Dune" || first.PublicationYear != 1965 {
		t.Errorf("unexpected candidate: %+v", first)
	}
	if len(first.Authors) != 1 || first.Authors[0] != "Frank Herbert" {
		t.Errorf("unexpected authors: %v", first.Authors)
	}
	if first.CoverURL != "https://covers.example.org/b/id/123-M.jpg" {
		t.Errorf("unexpected cover URL: %q", first.CoverURL)
	}

	second := out[1]
	if second.CoverURL != "" {
		t.Errorf("expected empty cover URL without cover_i, got %q", second.CoverURL)
	}

	for _, want := range []string{"title=dune", "page=1", "limit=10"} {
		if !containsParam(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearch_ClampsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("expected page clamped to 1, got %s", got)
		}
		_, _ = w.Write([]byte(`{"numFound":0,"docs":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Search(context.Background(), "x", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearch_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "dune", 1)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "dune", 1)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAssetFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := NewAssetFetcher(2*time.Second, zap.NewNop())
	data, err := f.Fetch(context.Background(), srv.URL+"/b/id/123-M.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestAssetFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewAssetFetcher(2*time.Second, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.jpg")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func containsParam(query, param string) bool {
	for _, part := range splitQuery(query) {
		if part == param {
			return true
		}
	}
	return false
}

func splitQuery(query string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(query); i++ {
		if i == len(query) || query[i] == '&' {
			parts = append(parts, query[start:i])
			start = i + 1
		}
	}
	return parts
}
