package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/metrics"
)

const defaultCoverBaseURL = "https://covers.openlibrary.org"

// Config holds the Open Library provider settings.
type Config struct {
	BaseURL      string
	CoverBaseURL string
	PageSize     int
	Timeout      time.Duration
	Logger       *zap.Logger
}

// Client queries the Open Library search API and maps results to
// catalog candidates. Search is idempotent and safe to retry.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	coverBaseURL string
	pageSize     int
	logger       *zap.Logger
}

// NewClient creates an Open Library client.
func NewClient(cfg *Config) *Client {
	coverBase := cfg.CoverBaseURL
	if coverBase == "" {
		coverBase = defaultCoverBaseURL
	}

	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.BaseURL,
		coverBaseURL: coverBase,
		pageSize:     cfg.PageSize,
		logger:       cfg.Logger,
	}
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	CoverID          int64    `json:"cover_i"`
}

// Search queries /search.json by title and returns one page of
// candidates.
func (c *Client) Search(ctx context.Context, q string, page int) ([]domain.Candidate, error) {
	if page < 1 {
		page = 1
	}

	endpoint := fmt.Sprintf("%s/search.json?%s", c.baseURL, url.Values{
		"title": []string{q},
		"page":  []string{strconv.Itoa(page)},
		"limit": []string{strconv.Itoa(c.pageSize)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("provider search: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("provider search status %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("decode provider response: %w: %w", domain.ErrProviderUnavailable, err)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("search", "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())

	out := make([]domain.Candidate, 0, len(body.Docs))
	for _, doc := range body.Docs {
		out = append(out, c.mapDoc(doc))
	}

	c.logger.Debug("provider search completed",
		zap.String("query", q),
		zap.Int("page", page),
		zap.Int("num_found", body.NumFound),
		zap.Int("returned", len(out)))

	return out, nil
}

// mapDoc turns a provider document into a candidate. The catalog key
// is the tail of the work path ("/works/OL45883W" -> "OL45883W").
func (c *Client) mapDoc(doc searchDoc) domain.Candidate {
	cand := domain.Candidate{
		Key:             path.Base(doc.Key),
		Title:           doc.Title,
		Authors:         doc.AuthorName,
		PublicationYear: doc.FirstPublishYear,
	}
	if doc.CoverID > 0 {
		cand.CoverURL = fmt.Sprintf("%s/b/id/%d-M.jpg", c.coverBaseURL, doc.CoverID)
	}
	return cand
}
