package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/genres"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

// ErrUnknownGenre is returned for a genre outside the browse taxonomy.
var ErrUnknownGenre = errors.New("unknown genre")

// cacheEntry is one user's candidate pool. byGenre and byMediaType hold
// pointers into all; every structure is only mutated under the cache lock, so
// partition membership implies membership in all at every unlock.
type cacheEntry struct {
	all         []*models.UnifiedContent
	index       map[string]*models.UnifiedContent
	byGenre     map[string][]*models.UnifiedContent
	byMediaType map[models.MediaType][]*models.UnifiedContent
	lastFetched time.Time
}

func newCacheEntry() *cacheEntry {
	return &cacheEntry{
		index:       make(map[string]*models.UnifiedContent),
		byGenre:     make(map[string][]*models.UnifiedContent),
		byMediaType: make(map[models.MediaType][]*models.UnifiedContent),
	}
}

// merge adds presentable items not already present. Returns the number added.
func (e *cacheEntry) merge(items []models.UnifiedContent) int {
	added := 0
	for i := range items {
		item := items[i]
		if !item.Presentable() || !item.Type.Valid() {
			continue
		}
		key := item.Key()
		if _, ok := e.index[key]; ok {
			continue
		}
		ptr := &item
		e.all = append(e.all, ptr)
		e.index[key] = ptr
		e.byMediaType[item.Type] = append(e.byMediaType[item.Type], ptr)
		for _, bucket := range genres.BucketsFor(item) {
			e.byGenre[bucket] = append(e.byGenre[bucket], ptr)
		}
		added++
	}
	return added
}

// filter starts from the narrowest partition and intersects the rest.
func (e *cacheEntry) filter(mediaType models.MediaType, bucket string) []models.UnifiedContent {
	var base []*models.UnifiedContent
	switch {
	case bucket != "":
		base = e.byGenre[bucket]
	case mediaType.Valid():
		base = e.byMediaType[mediaType]
	default:
		base = e.all
	}

	out := make([]models.UnifiedContent, 0, len(base))
	for _, item := range base {
		if bucket != "" && mediaType.Valid() && item.Type != mediaType {
			continue
		}
		out = append(out, *item)
	}
	return out
}

func (e *cacheEntry) stats() *models.CacheStats {
	st := &models.CacheStats{
		Total:       len(e.all),
		ByMediaType: make(map[string]int, len(e.byMediaType)),
		ByGenre:     make(map[string]int, len(e.byGenre)),
		LastFetched: e.lastFetched,
	}
	for mt, items := range e.byMediaType {
		st.ByMediaType[string(mt)] = len(items)
	}
	for g, items := range e.byGenre {
		st.ByGenre[g] = len(items)
	}
	return st
}

// RecommendationCache is a per-user read-through cache over a large candidate
// pool, partitioned for instant filtered reads and topped up on demand.
type RecommendationCache struct {
	content ContentAPI
	config  config.RecommendationCacheConfig
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.RWMutex
	entries  map[uuid.UUID]*cacheEntry
	prefetch singleflight.Group
}

func NewRecommendationCache(content ContentAPI, cfg config.RecommendationCacheConfig, logger *logrus.Logger) *RecommendationCache {
	if cfg.PrefetchPages <= 0 {
		cfg.PrefetchPages = 3
	}
	if cfg.TopUpThreshold <= 0 {
		cfg.TopUpThreshold = 10
	}
	if cfg.TopUpPages <= 0 {
		cfg.TopUpPages = 1
	}
	return &RecommendationCache{
		content: content,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
		entries: make(map[uuid.UUID]*cacheEntry),
	}
}

// Prefetch loads the candidate pool once per user. Concurrent callers for the
// same user share a single fetch.
func (c *RecommendationCache) Prefetch(ctx context.Context, userID uuid.UUID) (*models.CacheStats, error) {
	v, err, _ := c.prefetch.Do(userID.String(), func() (interface{}, error) {
		c.mu.RLock()
		existing, ok := c.entries[userID]
		c.mu.RUnlock()
		if ok {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return existing.stats(), nil
		}
		return c.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CacheStats), nil
}

type prefetchSlot struct {
	mediaType models.MediaType
	page      int
	trending  bool
}

func (c *RecommendationCache) load(ctx context.Context, userID uuid.UUID) (*models.CacheStats, error) {
	var slots []prefetchSlot
	for _, mt := range models.MediaTypes {
		for page := 1; page <= c.config.PrefetchPages; page++ {
			slots = append(slots, prefetchSlot{mediaType: mt, page: page})
		}
	}
	slots = append(slots, prefetchSlot{trending: true, page: 1})

	results := make([][]models.UnifiedContent, len(slots))
	failures := make([]error, len(slots))
	var g errgroup.Group
	for i, slot := range slots {
		g.Go(func() error {
			var items []models.UnifiedContent
			var err error
			if slot.trending {
				items, err = c.content.Trending(ctx, "", "week", slot.page)
			} else {
				items, err = c.content.Discover(ctx, slot.mediaType, tmdb.DiscoverParams{Page: slot.page})
			}
			results[i], failures[i] = items, err
			return nil
		})
	}
	_ = g.Wait()

	entry := newCacheEntry()
	failed := 0
	for i, items := range results {
		if failures[i] != nil {
			failed++
			c.logger.WithError(failures[i]).WithFields(logrus.Fields{
				"user_id":    userID,
				"media_type": slots[i].mediaType,
				"page":       slots[i].page,
			}).Warn("Cache prefetch query failed")
			continue
		}
		entry.merge(items)
	}
	if failed == len(slots) {
		return nil, fmt.Errorf("failed to prefetch candidates: all %d queries failed", failed)
	}
	entry.lastFetched = c.now()

	c.mu.Lock()
	c.entries[userID] = entry
	stats := entry.stats()
	users := len(c.entries)
	c.mu.Unlock()

	metrics.CacheUsers.Set(float64(users))
	c.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"items":   stats.Total,
	}).Info("Recommendation cache prefetched")
	return stats, nil
}

// GetFiltered reads from the cache, prefetching on first use. When a genre is
// given and fewer than the top-up threshold remain, the partition is topped up
// from the network before re-filtering.
func (c *RecommendationCache) GetFiltered(ctx context.Context, userID uuid.UUID, mediaType models.MediaType, genre string) (*models.FilteredContentResponse, error) {
	bucket := ""
	if genre != "" {
		name, ok := genres.CanonicalBucket(genre)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGenre, genre)
		}
		bucket = name
	}

	c.mu.RLock()
	_, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		metrics.CacheReads.WithLabelValues("prefetch").Inc()
		if _, err := c.Prefetch(ctx, userID); err != nil {
			return nil, err
		}
	}

	items, lastFetched, ok := c.read(userID, mediaType, bucket)
	if !ok {
		// invalidated between prefetch and read
		items = []models.UnifiedContent{}
	}

	resp := &models.FilteredContentResponse{
		UserID:      userID,
		MediaType:   string(mediaType),
		Genre:       bucket,
		Items:       items,
		LastFetched: lastFetched,
	}

	if bucket != "" && len(items) < c.config.TopUpThreshold {
		metrics.CacheReads.WithLabelValues("top_up").Inc()
		if added := c.topUp(ctx, userID, mediaType, bucket); added > 0 {
			resp.ToppedUp = true
			if refreshed, fetched, ok := c.read(userID, mediaType, bucket); ok {
				resp.Items, resp.LastFetched = refreshed, fetched
			}
		}
		return resp, nil
	}

	metrics.CacheReads.WithLabelValues("hit").Inc()
	return resp, nil
}

func (c *RecommendationCache) read(userID uuid.UUID, mediaType models.MediaType, bucket string) ([]models.UnifiedContent, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.filter(mediaType, bucket), entry.lastFetched, true
}

// topUp fetches the bucket's genres outside the lock and merges the results
// into all three structures under a single lock.
func (c *RecommendationCache) topUp(ctx context.Context, userID uuid.UUID, mediaType models.MediaType, bucket string) int {
	mediaTypes := models.MediaTypes
	if mediaType.Valid() {
		mediaTypes = []models.MediaType{mediaType}
	}

	var fetched []models.UnifiedContent
	for _, mt := range mediaTypes {
		var ids []int
		for _, id := range genres.BucketIDs(bucket) {
			if cp, ok := genres.Counterpart(id, mt); ok && cp == id {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		params := tmdb.DiscoverParams{GenreIDs: ids}
		if bucket == genres.BucketAnime {
			params.Language = "ja"
		}
		for page := 1; page <= c.config.TopUpPages; page++ {
			params.Page = page
			items, err := c.content.Discover(ctx, mt, params)
			if err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":    userID,
					"genre":      bucket,
					"media_type": mt,
				}).Warn("Cache top-up query failed")
				break
			}
			fetched = append(fetched, items...)
		}
	}
	if len(fetched) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return 0
	}
	added := entry.merge(fetched)
	c.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"genre":   bucket,
		"added":   added,
	}).Debug("Cache partition topped up")
	return added
}

// Ingest merges recommendation results into an already populated cache.
func (c *RecommendationCache) Ingest(userID uuid.UUID, items []models.UnifiedContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[userID]; ok {
		entry.merge(items)
	}
}

func (c *RecommendationCache) Stats(userID uuid.UUID) (*models.CacheStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.stats(), true
}

// Invalidate drops the user's pool; the next read prefetches again.
func (c *RecommendationCache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, userID)
	users := len(c.entries)
	c.mu.Unlock()
	metrics.CacheUsers.Set(float64(users))
}
