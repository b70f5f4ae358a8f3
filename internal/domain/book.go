package domain

import (
	"fmt"

	"github.com/kailas-cloud/bookdex/internal/domain/token"
)

// Candidate is an externally fetched book reference, not yet validated
// against the local catalog.
type Candidate struct {
	Key             string   `json:"key"`
	Title           string   `json:"title"`
	Authors         []string `json:"author"`
	PublicationYear int      `json:"publicationYear"`
	CoverURL        string   `json:"coverUrl,omitempty"`
}

// Review is a single reader review embedded in a book document.
type Review struct {
	ReviewerID string `json:"userId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

// Book is the catalog aggregate. The rating fields (RatingCount,
// RatingSum, RatingAvg, HasReviews) are derived from Reviews and are
// recomputed together whenever Reviews changes, never written
// independently.
type Book struct {
	Meta

	Key             string   `json:"key"`
	Title           string   `json:"title"`
	Authors         []string `json:"author,omitempty"`
	PublicationYear int      `json:"publicationYear,omitempty"`
	CoverAsset      *string  `json:"cover"`

	Reviews     []Review `json:"reviews"`
	RatingCount int      `json:"ratingCount"`
	RatingSum   int      `json:"ratingSum"`
	RatingAvg   *float64 `json:"ratingAvg"`
	HasReviews  bool     `json:"hasReviews"`

	TitleTokens  []string `json:"titleTokens"`
	AuthorTokens []string `json:"authorTokens"`
}

// NewBook validates a candidate and builds a book with zero-valued
// rating aggregates and write-time token indexes.
func NewBook(c Candidate) (Book, error) {
	if c.Key == "" {
		return Book{}, fmt.Errorf("candidate key is required: %w", ErrValidation)
	}
	if c.Title == "" {
		return Book{}, fmt.Errorf("candidate %q has no title: %w", c.Key, ErrValidation)
	}

	b := Book{
		Key:             c.Key,
		Title:           c.Title,
		Authors:         c.Authors,
		PublicationYear: c.PublicationYear,
		Reviews:         []Review{},
		TitleTokens:     token.Tokenize(c.Title),
		AuthorTokens:    token.TokenizeMany(c.Authors...),
	}
	b.recalculate()
	return b, nil
}

// NormalizedKey returns the case/diacritic-insensitive form of the
// external key, used by the store's uniqueness index.
func (b *Book) NormalizedKey() string {
	return token.Normalize(b.Key)
}

// Validate checks the review's rating bounds and reviewer.
func (r Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d: %w", r.Rating, ErrValidation)
	}
	if r.ReviewerID == "" {
		return fmt.Errorf("reviewer id is required: %w", ErrValidation)
	}
	return nil
}

// ApplyReview appends a review and recomputes all rating aggregates
// from the post-append slice. Callers run this inside a store-side
// atomic transform so no reader observes an append without its
// consistent aggregates.
func (b *Book) ApplyReview(r Review) error {
	if err := r.Validate(); err != nil {
		return err
	}
	b.Reviews = append(b.Reviews, r)
	b.recalculate()
	return nil
}

// recalculate derives RatingCount/RatingSum/RatingAvg/HasReviews from
// the Reviews slice.
func (b *Book) recalculate() {
	b.RatingCount = len(b.Reviews)
	b.RatingSum = 0
	for _, r := range b.Reviews {
		b.RatingSum += r.Rating
	}
	b.HasReviews = b.RatingCount > 0
	if b.RatingCount == 0 {
		b.RatingAvg = nil
		return
	}
	avg := float64(b.RatingSum) / float64(b.RatingCount)
	b.RatingAvg = &avg
}

// BookView is the display projection returned to callers. InLibrary is
// a per-request annotation and is never persisted on the book.
type BookView struct {
	ID              string   `json:"id"`
	Key             string   `json:"key"`
	Title           string   `json:"title"`
	Authors         []string `json:"author,omitempty"`
	PublicationYear int      `json:"publicationYear,omitempty"`
	CoverAsset      *string  `json:"cover"`
	RatingCount     int      `json:"ratingCount"`
	RatingAvg       *float64 `json:"ratingAvg"`
	HasReviews      bool     `json:"hasReviews"`
	InLibrary       bool     `json:"inLibrary,omitempty"`
}

// View projects the book onto its display fields.
func (b *Book) View() BookView {
	return BookView{
		ID:              b.ID,
		Key:             b.Key,
		Title:           b.Title,
		Authors:         b.Authors,
		PublicationYear: b.PublicationYear,
		CoverAsset:      b.CoverAsset,
		RatingCount:     b.RatingCount,
		RatingAvg:       b.RatingAvg,
		HasReviews:      b.HasReviews,
	}
}
