package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/cache"
	"github.com/kailas-cloud/bookdex/internal/domain"
	"github.com/kailas-cloud/bookdex/internal/domain/token"
	"github.com/kailas-cloud/bookdex/internal/metrics"
)

const defaultCoverTimeout = 10 * time.Second

// The insert winner claims the key index before writing the document,
// so a loser's re-read can run inside that window. Bounded retries
// cover it.
const (
	survivorReadAttempts = 4
	survivorReadBackoff  = 25 * time.Millisecond
)

// Deps holds the catalog service dependencies.
type Deps struct {
	Provider    Provider
	Fetcher     AssetFetcher
	Books       Books
	Libraries   Libraries
	History     History
	Assets      Assets
	AssetPrefix string
	Cache       Cache
	Notifier    Notifier
	Logger      *zap.Logger
}

// Service reconciles upstream search results into the local catalog
// and serves reads over it.
type Service struct {
	provider    Provider
	fetcher     AssetFetcher
	books       Books
	libs        Libraries
	history     History
	assets      Assets
	assetPrefix string
	cache       Cache
	notifier    Notifier
	log         *zap.Logger

	defaultPageSize int
	maxPageSize     int
	coverTimeout    time.Duration

	// runDetached executes cover fetches off the request path; tests
	// swap it for a synchronous runner.
	runDetached func(fn func())

	// survivorBackoff paces re-reads after a lost insert race; tests
	// shrink it.
	survivorBackoff time.Duration
}

// New creates a catalog service.
func New(deps Deps) *Service {
	return &Service{
		provider:        deps.Provider,
		fetcher:         deps.Fetcher,
		books:           deps.Books,
		libs:            deps.Libraries,
		history:         deps.History,
		assets:          deps.Assets,
		assetPrefix:     deps.AssetPrefix,
		cache:           deps.Cache,
		notifier:        deps.Notifier,
		log:             deps.Logger,
		defaultPageSize: 20,
		maxPageSize:     100,
		coverTimeout:    defaultCoverTimeout,
		runDetached:     func(fn func()) { go fn() },
		survivorBackoff: survivorReadBackoff,
	}
}

// WithPagination configures page size limits for local search.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Search queries the upstream provider, imports unknown books into
// the local catalog and returns the page as views. The provider call
// and the user's history record run concurrently. Results are cached
// un-annotated; the inLibrary flag is computed per request after
// cache retrieval.
func (s *Service) Search(ctx context.Context, userID, q string, page int) ([]domain.BookView, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if page < 1 {
		page = 1
	}

	var wg sync.WaitGroup
	if userID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.history.Record(ctx, userID, q); err != nil {
				s.log.Warn("recording search failed",
					zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}
	defer wg.Wait()

	key := s.cache.Key(cache.ActionFetch, q, strconv.Itoa(page))
	var views []domain.BookView
	if s.cache.Get(ctx, key, &views) {
		return s.annotate(ctx, userID, views), nil
	}

	candidates, err := s.provider.Search(ctx, q, page)
	if err != nil {
		return nil, err
	}

	views, err = s.reconcile(ctx, candidates)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, key, views)
	return s.annotate(ctx, userID, views), nil
}

// Reconcile folds externally fetched candidates into the local
// catalog: known books are returned as stored, unknown valid ones are
// inserted, invalid ones are skipped. When userID is set the returned
// views carry the inLibrary annotation.
func (s *Service) Reconcile(ctx context.Context, candidates []domain.Candidate, userID string) ([]domain.BookView, error) {
	views, err := s.reconcile(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, userID, views), nil
}

// Local runs a token-prefix search over the local catalog only.
func (s *Service) Local(ctx context.Context, q string, limit int) ([]domain.BookView, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	books, _, err := s.books.SearchTokens(ctx, q, 0, limit)
	if err != nil {
		return nil, err
	}

	views := make([]domain.BookView, 0, len(books))
	for _, b := range books {
		views = append(views, b.View())
	}
	return views, nil
}

// Get returns a single book view, read through the per-book cache.
func (s *Service) Get(ctx context.Context, userID, id string) (domain.BookView, error) {
	if id == "" {
		return domain.BookView{}, fmt.Errorf("book id is required: %w", domain.ErrValidation)
	}

	key := s.cache.Key(cache.ActionBook, id)
	var view domain.BookView
	if s.cache.Get(ctx, key, &view) {
		return s.annotateOne(ctx, userID, view), nil
	}

	b, err := s.books.Get(ctx, id)
	if err != nil {
		return domain.BookView{}, err
	}

	view = b.View()
	s.cache.Set(ctx, key, view)
	return s.annotateOne(ctx, userID, view), nil
}

func (s *Service) reconcile(ctx context.Context, candidates []domain.Candidate) ([]domain.BookView, error) {
	norms := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		if norm := token.Normalize(cand.Key); norm != "" {
			norms = append(norms, norm)
		}
	}

	known, err := s.books.FindByKeys(ctx, norms)
	if err != nil {
		return nil, fmt.Errorf("resolve candidates: %w", err)
	}
	if known == nil {
		known = make(map[string]*domain.Book)
	}

	views := make([]domain.BookView, 0, len(candidates))
	for _, cand := range candidates {
		norm := token.Normalize(cand.Key)
		if b, ok := known[norm]; ok {
			views = append(views, b.View())
			continue
		}

		b, err := domain.NewBook(cand)
		if err != nil {
			metrics.CatalogImportsTotal.WithLabelValues("invalid").Inc()
			s.log.Debug("skipping invalid candidate",
				zap.String("key", cand.Key), zap.Error(err))
			continue
		}

		if err := s.books.Insert(ctx, &b); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				// Lost the insert race; the surviving document is the
				// answer either way.
				metrics.CatalogImportsTotal.WithLabelValues("conflict").Inc()
				survivor, rerr := s.awaitSurvivor(ctx, norm)
				if rerr != nil {
					// The winner's document is still in flight. The
					// candidate carries the same display fields, so the
					// caller still gets a reference for this key.
					s.log.Warn("re-read after insert conflict failed",
						zap.String("key", cand.Key), zap.Error(rerr))
					views = append(views, b.View())
					continue
				}
				known[norm] = survivor
				views = append(views, survivor.View())
				continue
			}
			return nil, fmt.Errorf("import %q: %w", cand.Key, err)
		}

		metrics.CatalogImportsTotal.WithLabelValues("inserted").Inc()
		known[norm] = &b
		views = append(views, b.View())
		s.notifier.BookInserted(b.ID)

		if cand.CoverURL != "" {
			s.fetchCover(b.ID, cand.CoverURL)
		}
	}
	return views, nil
}

// awaitSurvivor re-reads the document that won an insert race. The
// winner claims the key index before its document write, so the first
// re-reads may miss; retries are bounded and the last error is
// returned.
func (s *Service) awaitSurvivor(ctx context.Context, norm string) (*domain.Book, error) {
	var err error
	for attempt := 0; attempt < survivorReadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.survivorBackoff):
			}
		}

		var b *domain.Book
		b, err = s.books.FindByKey(ctx, norm)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, domain.ErrBookNotFound) {
			return nil, err
		}
	}
	return nil, err
}

// fetchCover downloads and attaches a cover off the request path. A
// failure leaves the book without a cover; the import has already
// succeeded.
func (s *Service) fetchCover(bookID, coverURL string) {
	s.runDetached(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.coverTimeout)
		defer cancel()

		data, err := s.fetcher.Fetch(ctx, coverURL)
		if err != nil {
			metrics.CoverFetchesTotal.WithLabelValues("error").Inc()
			s.log.Warn("cover fetch failed",
				zap.String("book_id", bookID), zap.String("url", coverURL), zap.Error(err))
			return
		}

		assetKey := s.assetPrefix + bookID
		if err := s.assets.Set(ctx, assetKey, data); err != nil {
			metrics.CoverFetchesTotal.WithLabelValues("error").Inc()
			s.log.Warn("cover store failed",
				zap.String("book_id", bookID), zap.Error(err))
			return
		}

		if _, err := s.books.Update(ctx, bookID, func(b *domain.Book) error {
			b.CoverAsset = &assetKey
			return nil
		}); err != nil {
			metrics.CoverFetchesTotal.WithLabelValues("error").Inc()
			s.log.Warn("cover attach failed",
				zap.String("book_id", bookID), zap.Error(err))
			return
		}

		metrics.CoverFetchesTotal.WithLabelValues("ok").Inc()
		s.notifier.CoverAttached(bookID)
	})
}

// annotate computes the per-request inLibrary flags. Annotation never
// fails a read: a library load error degrades to un-annotated views.
func (s *Service) annotate(ctx context.Context, userID string, views []domain.BookView) []domain.BookView {
	if userID == "" || len(views) == 0 {
		return views
	}

	lib, err := s.libs.Find(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("library annotation failed",
				zap.String("user_id", userID), zap.Error(err))
		}
		return views
	}

	out := make([]domain.BookView, len(views))
	copy(out, views)
	for i := range out {
		out[i].InLibrary = lib.Has(out[i].ID)
	}
	return out
}

func (s *Service) annotateOne(ctx context.Context, userID string, view domain.BookView) domain.BookView {
	out := s.annotate(ctx, userID, []domain.BookView{view})
	return out[0]
}
