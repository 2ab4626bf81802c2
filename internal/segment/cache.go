package segment

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/observability"
)

// PredicateCache keeps compiled predicates for saved segments. Entries are keyed by
// segment ID and UpdatedAt, so an edited segment never hits a stale predicate.
type PredicateCache struct {
	store otter.Cache[string, Predicate]
}

// NewPredicateCache creates a bounded cache; ttl is a safety net for abandoned versions.
func NewPredicateCache(capacity int, ttl time.Duration) (*PredicateCache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	store, err := otter.MustBuilder[string, Predicate](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build predicate cache: %w", err)
	}

	return &PredicateCache{store: store}, nil
}

// Compile returns the cached predicate for the segment's current version, compiling it on a miss.
func (c *PredicateCache) Compile(seg *models.Segment) (Predicate, error) {
	key := cacheKey(seg)
	if pred, ok := c.store.Get(key); ok {
		observability.PredicateCacheHits.Inc()
		return pred, nil
	}
	observability.PredicateCacheMisses.Inc()

	pred, err := Compile(seg.Conditions, seg.Combinator)
	if err != nil {
		return nil, err
	}

	c.store.Set(key, pred)
	return pred, nil
}

// Forget drops the predicate cached for the segment's current version.
func (c *PredicateCache) Forget(seg *models.Segment) {
	c.store.Delete(cacheKey(seg))
}

// Close stops the cache's background goroutines.
func (c *PredicateCache) Close() {
	c.store.Close()
}

func cacheKey(seg *models.Segment) string {
	return fmt.Sprintf("%d:%d", seg.ID, seg.UpdatedAt.UnixNano())
}
