package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/bookdex/internal/cache"
	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Service manages per-user saved-book sets.
type Service struct {
	repo     Repository
	books    Books
	cache    Cache
	notifier Notifier
}

// New creates a library service.
func New(repo Repository, books Books, c Cache, notifier Notifier) *Service {
	return &Service{repo: repo, books: books, cache: c, notifier: notifier}
}

// Add saves a book into the user's library. The book must exist in
// the local catalog. Membership is a set: re-adding is a no-op that
// still succeeds.
func (s *Service) Add(ctx context.Context, userID, bookID string) error {
	if userID == "" || bookID == "" {
		return fmt.Errorf("user id and book id are required: %w", domain.ErrValidation)
	}

	ok, err := s.books.Exists(ctx, bookID)
	if err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	if !ok {
		return domain.ErrBookNotFound
	}

	_, err = s.repo.Upsert(ctx, userID, func(l *domain.Library) error {
		if l.UserID == "" {
			l.UserID = userID
		}
		l.Add(bookID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add to library: %w", err)
	}

	s.notifier.LibraryChanged(userID)
	return nil
}

// Remove drops a book from the user's library. Removing an absent
// book succeeds.
func (s *Service) Remove(ctx context.Context, userID, bookID string) error {
	if userID == "" || bookID == "" {
		return fmt.Errorf("user id and book id are required: %w", domain.ErrValidation)
	}

	_, err := s.repo.Upsert(ctx, userID, func(l *domain.Library) error {
		if l.UserID == "" {
			l.UserID = userID
		}
		l.Remove(bookID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove from library: %w", err)
	}

	s.notifier.LibraryChanged(userID)
	return nil
}

// List returns the user's saved books as views with inLibrary set.
// A user with no library gets an empty slice.
func (s *Service) List(ctx context.Context, userID string) ([]domain.BookView, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}

	key := s.cache.Key(cache.ActionLibrary, userID)
	var views []domain.BookView
	if s.cache.Get(ctx, key, &views) {
		return views, nil
	}

	lib, err := s.repo.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.BookView{}, nil
		}
		return nil, fmt.Errorf("load library: %w", err)
	}

	books, err := s.books.FindByIDs(ctx, lib.Books)
	if err != nil {
		return nil, fmt.Errorf("load library books: %w", err)
	}

	views = make([]domain.BookView, 0, len(books))
	for _, b := range books {
		v := b.View()
		v.InLibrary = true
		views = append(views, v)
	}

	s.cache.Set(ctx, key, views)
	return views, nil
}
