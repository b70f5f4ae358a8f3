package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/bookdex/internal/cache"
	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Service tracks per-user search queries, keeping the most recent
// first with a bounded, duplicate-free window.
type Service struct {
	repo     Repository
	cache    Cache
	notifier Notifier
}

// New creates a search-history service.
func New(repo Repository, c Cache, notifier Notifier) *Service {
	return &Service{repo: repo, cache: c, notifier: notifier}
}

// Record pushes a query onto the user's history. The whole
// read-dedupe-truncate-write runs as one atomic transform, so
// concurrent searches by the same user never lose entries or exceed
// the window.
func (s *Service) Record(ctx context.Context, userID, q string) error {
	q = strings.TrimSpace(q)
	if userID == "" || q == "" {
		return fmt.Errorf("user id and query are required: %w", domain.ErrValidation)
	}

	_, err := s.repo.Upsert(ctx, userID, func(h *domain.SearchHistory) error {
		if h.UserID == "" {
			h.UserID = userID
		}
		h.Push(q)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}

	s.notifier.SearchRecorded(userID)
	return nil
}

// Last returns the user's recent queries, most recent first. A user
// who has never searched gets an empty slice, not an error.
func (s *Service) Last(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}

	key := s.cache.Key(cache.ActionLastSearch, userID)
	var queries []string
	if s.cache.Get(ctx, key, &queries) {
		return queries, nil
	}

	h, err := s.repo.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}

	queries = h.Queries
	if queries == nil {
		queries = []string{}
	}
	s.cache.Set(ctx, key, queries)
	return queries, nil
}
