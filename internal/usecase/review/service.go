package review

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Service appends reviews and keeps rating aggregates consistent with
// the review slice.
type Service struct {
	books    Books
	notifier Notifier
}

// New creates a review service.
func New(books Books, notifier Notifier) *Service {
	return &Service{books: books, notifier: notifier}
}

// Add appends a review to a book. Invalid input is rejected before
// any write; the append and the aggregate recompute happen inside one
// atomic transform, so concurrent reviews both land and the
// aggregates always match the final slice.
func (s *Service) Add(ctx context.Context, bookID, reviewerID string, rating int, comment string) (domain.BookView, error) {
	r := domain.Review{ReviewerID: reviewerID, Rating: rating, Comment: comment}
	if err := r.Validate(); err != nil {
		return domain.BookView{}, err
	}

	b, err := s.books.Update(ctx, bookID, func(b *domain.Book) error {
		return b.ApplyReview(r)
	})
	if err != nil {
		return domain.BookView{}, fmt.Errorf("add review: %w", err)
	}

	s.notifier.ReviewAdded(bookID)
	return b.View(), nil
}
