package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/metrics"
)

// Cache action names shared by readers and the invalidator.
const (
	ActionFetch      = "fetch"
	ActionBook       = "book"
	ActionLibrary    = "library"
	ActionLastSearch = "lastSearch"
)

const invalidateTimeout = 5 * time.Second

// Invalidator maps catalog mutations to the cache entries they make
// stale. Invalidation is fire-and-forget: it runs detached from the
// triggering request, failures are logged and counted, and the
// mutation's result is never affected.
type Invalidator struct {
	cache *Cache
	log   *zap.Logger

	// run executes the detached invalidation; tests swap it for a
	// synchronous runner.
	run func(fn func())
}

// NewInvalidator creates an invalidator over c.
func NewInvalidator(c *Cache, log *zap.Logger) *Invalidator {
	return &Invalidator{
		cache: c,
		log:   log.Named("invalidator"),
		run:   func(fn func()) { go fn() },
	}
}

// BookInserted flushes every cached fetch result and the book's entry.
func (i *Invalidator) BookInserted(bookID string) {
	i.fire(i.cache.Prefix(ActionFetch), i.cache.Key(ActionBook, bookID))
}

// CoverAttached flushes the same targets as an insert: the cover lands
// after the book is already visible in fetch results.
func (i *Invalidator) CoverAttached(bookID string) {
	i.fire(i.cache.Prefix(ActionFetch), i.cache.Key(ActionBook, bookID))
}

// ReviewAdded flushes the book's cached entry.
func (i *Invalidator) ReviewAdded(bookID string) {
	i.fire(i.cache.Key(ActionBook, bookID))
}

// LibraryChanged flushes the user's cached library listing.
func (i *Invalidator) LibraryChanged(userID string) {
	i.fire(i.cache.Prefix(ActionLibrary, userID))
}

// SearchRecorded flushes the user's cached last-search queries.
func (i *Invalidator) SearchRecorded(userID string) {
	i.fire(i.cache.Key(ActionLastSearch, userID))
}

func (i *Invalidator) fire(targets ...string) {
	i.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()

		for _, target := range targets {
			if err := i.cache.Invalidate(ctx, target); err != nil {
				i.log.Warn("cache invalidation failed",
					zap.String("target", target), zap.Error(err))
				metrics.CacheInvalidationsTotal.WithLabelValues("error").Inc()
				continue
			}
			metrics.CacheInvalidationsTotal.WithLabelValues("ok").Inc()
		}
	})
}
