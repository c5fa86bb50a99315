package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/genres"
	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

// poolPage returns five titles per page: action, comedy, drama, western
// animation and anime, plus one without a poster.
func poolPage(mt models.MediaType, page int) []models.UnifiedContent {
	base := page * 100
	anime := makeContent(mt, base+4, genres.Animation)
	anime.Language = "ja"
	noPoster := makeContent(mt, base+9, genres.Drama)
	noPoster.PosterPath = nil
	return []models.UnifiedContent{
		makeContent(mt, base, genres.Action),
		makeContent(mt, base+1, genres.Comedy),
		makeContent(mt, base+2, genres.Drama),
		makeContent(mt, base+3, genres.Animation),
		anime,
		noPoster,
	}
}

func poolContent() *fakeContent {
	return &fakeContent{
		discover: func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
			if len(p.GenreIDs) > 0 {
				items := batch(mt, 9000+p.Page*10, 3, p.GenreIDs...)
				for i := range items {
					if p.Language != "" {
						items[i].Language = p.Language
					}
				}
				return items, nil
			}
			return poolPage(mt, p.Page), nil
		},
		trending: func(mt models.MediaType, page int) ([]models.UnifiedContent, error) {
			return []models.UnifiedContent{
				makeContent(models.MediaTypeMovie, 100, genres.Action),
				makeContent(models.MediaTypeTV, 999, genres.Horror),
			}, nil
		},
	}
}

func newTestCache(api ContentAPI) *RecommendationCache {
	return NewRecommendationCache(api, config.RecommendationCacheConfig{
		PrefetchPages:  3,
		TopUpThreshold: 10,
		TopUpPages:     2,
	}, testLogger())
}

func prefetchCalls(api *fakeContent) int {
	n := 0
	for _, call := range api.calls() {
		if len(call.Params.GenreIDs) == 0 {
			n++
		}
	}
	return n
}

func TestRecommendationCache_Prefetch(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)
	userID := uuid.New()

	stats, err := cache.Prefetch(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, 31, stats.Total)
	assert.Equal(t, 15, stats.ByMediaType["movie"])
	assert.Equal(t, 16, stats.ByMediaType["tv"])
	assert.Equal(t, 6, stats.ByGenre[genres.BucketAnime])
	assert.Equal(t, 6, stats.ByGenre[genres.BucketAnimation])
	assert.Equal(t, 1, stats.ByGenre[genres.BucketHorror])
	assert.False(t, stats.LastFetched.IsZero())
	assert.Equal(t, 6, prefetchCalls(api))
	assert.Equal(t, 1, api.trendingCalls)

	// a second prefetch is served from the cache
	_, err = cache.Prefetch(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 6, prefetchCalls(api))
}

func TestRecommendationCache_PartitionsReferenceAll(t *testing.T) {
	cache := newTestCache(poolContent())
	userID := uuid.New()
	_, err := cache.Prefetch(context.Background(), userID)
	require.NoError(t, err)
	cache.Ingest(userID, []models.UnifiedContent{makeContent(models.MediaTypeMovie, 7777, genres.Mystery)})

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	entry := cache.entries[userID]
	require.NotNil(t, entry)

	inAll := make(map[*models.UnifiedContent]bool, len(entry.all))
	for _, item := range entry.all {
		inAll[item] = true
	}
	for bucket, items := range entry.byGenre {
		for _, item := range items {
			assert.True(t, inAll[item], "%s in %s is missing from the pool", item.Key(), bucket)
			assert.True(t, genres.InBucket(*item, bucket))
		}
	}
	total := 0
	for mt, items := range entry.byMediaType {
		for _, item := range items {
			assert.True(t, inAll[item])
			assert.Equal(t, mt, item.Type)
		}
		total += len(items)
	}
	assert.Equal(t, len(entry.all), total)
	assert.Len(t, entry.index, len(entry.all))
}

func TestRecommendationCache_GetFiltered(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)
	userID := uuid.New()
	ctx := context.Background()

	all, err := cache.GetFiltered(ctx, userID, "", "")
	require.NoError(t, err)
	assert.Len(t, all.Items, 31)
	assert.False(t, all.ToppedUp)

	movies, err := cache.GetFiltered(ctx, userID, models.MediaTypeMovie, "")
	require.NoError(t, err)
	assert.Len(t, movies.Items, 15)
	for _, item := range movies.Items {
		assert.Equal(t, models.MediaTypeMovie, item.Type)
	}

	for _, item := range all.Items {
		assert.True(t, item.Presentable())
	}
}

func TestRecommendationCache_UnknownGenre(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)

	_, err := cache.GetFiltered(context.Background(), uuid.New(), "", "Polka")
	assert.ErrorIs(t, err, ErrUnknownGenre)
	assert.Empty(t, api.calls(), "validation happens before any fetch")
}

func TestRecommendationCache_TopUp(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)
	userID := uuid.New()

	resp, err := cache.GetFiltered(context.Background(), userID, "", "horror")
	require.NoError(t, err)

	assert.Equal(t, genres.BucketHorror, resp.Genre)
	assert.True(t, resp.ToppedUp)
	assert.Len(t, resp.Items, 7)
	for _, item := range resp.Items {
		assert.True(t, item.HasGenre(genres.Horror))
	}

	var topUps []discoverCall
	for _, call := range api.calls() {
		if len(call.Params.GenreIDs) > 0 {
			topUps = append(topUps, call)
		}
	}
	// horror has no TV counterpart
	require.Len(t, topUps, 2)
	for _, call := range topUps {
		assert.Equal(t, models.MediaTypeMovie, call.MediaType)
		assert.Equal(t, []int{genres.Horror}, call.Params.GenreIDs)
		assert.Empty(t, call.Params.Language)
	}

	stats, ok := cache.Stats(userID)
	require.True(t, ok)
	assert.Equal(t, 37, stats.Total)
	assert.Equal(t, 7, stats.ByGenre[genres.BucketHorror])
}

func TestRecommendationCache_AnimeTopUp(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)

	resp, err := cache.GetFiltered(context.Background(), uuid.New(), models.MediaTypeTV, "anime")
	require.NoError(t, err)
	assert.Equal(t, genres.BucketAnime, resp.Genre)

	var topUps []discoverCall
	for _, call := range api.calls() {
		if len(call.Params.GenreIDs) > 0 {
			topUps = append(topUps, call)
		}
	}
	require.NotEmpty(t, topUps)
	for _, call := range topUps {
		assert.Equal(t, models.MediaTypeTV, call.MediaType)
		assert.Equal(t, "ja", call.Params.Language)
		assert.Equal(t, []int{genres.Animation}, call.Params.GenreIDs)
	}
	assert.True(t, resp.ToppedUp)
	assert.Len(t, resp.Items, 9)
	for _, item := range resp.Items {
		assert.Equal(t, models.MediaTypeTV, item.Type)
		assert.True(t, genres.IsJapaneseOrigin(item))
	}
}

func TestRecommendationCache_NoTopUpAboveThreshold(t *testing.T) {
	api := poolContent()
	cache := NewRecommendationCache(api, config.RecommendationCacheConfig{PrefetchPages: 3, TopUpThreshold: 3, TopUpPages: 1}, testLogger())

	resp, err := cache.GetFiltered(context.Background(), uuid.New(), "", "Drama")
	require.NoError(t, err)
	assert.Len(t, resp.Items, 6)
	assert.False(t, resp.ToppedUp)
	assert.Equal(t, 6, len(api.calls()))
}

func TestRecommendationCache_PrefetchFailures(t *testing.T) {
	t.Run("all queries fail", func(t *testing.T) {
		api := &fakeContent{
			discover: func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
				return nil, errors.New("timeout")
			},
			trending: func(mt models.MediaType, page int) ([]models.UnifiedContent, error) {
				return nil, errors.New("timeout")
			},
		}
		cache := newTestCache(api)
		userID := uuid.New()

		_, err := cache.GetFiltered(context.Background(), userID, "", "")
		assert.Error(t, err)
		_, ok := cache.Stats(userID)
		assert.False(t, ok)
	})

	t.Run("partial failure keeps the rest", func(t *testing.T) {
		api := poolContent()
		api.trending = func(mt models.MediaType, page int) ([]models.UnifiedContent, error) {
			return nil, errors.New("timeout")
		}
		cache := newTestCache(api)

		resp, err := cache.GetFiltered(context.Background(), uuid.New(), "", "")
		require.NoError(t, err)
		assert.Len(t, resp.Items, 30)
	})
}

func TestRecommendationCache_ConcurrentFirstReads(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := cache.GetFiltered(context.Background(), userID, "", "")
			assert.NoError(t, err)
			assert.Len(t, resp.Items, 31)
		}()
	}
	wg.Wait()
	assert.Equal(t, 6, prefetchCalls(api))
}

func TestRecommendationCache_InvalidateAndIngest(t *testing.T) {
	api := poolContent()
	cache := newTestCache(api)
	userID := uuid.New()
	ctx := context.Background()

	cache.Ingest(userID, []models.UnifiedContent{makeContent(models.MediaTypeMovie, 1)})
	_, ok := cache.Stats(userID)
	assert.False(t, ok, "ingest does not create a pool")

	_, err := cache.Prefetch(ctx, userID)
	require.NoError(t, err)

	hidden := makeContent(models.MediaTypeMovie, 2)
	hidden.Title = " "
	cache.Ingest(userID, []models.UnifiedContent{makeContent(models.MediaTypeMovie, 1, genres.Mystery), hidden, makeContent(models.MediaTypeMovie, 100)})
	stats, ok := cache.Stats(userID)
	require.True(t, ok)
	assert.Equal(t, 32, stats.Total)
	assert.Equal(t, 1, stats.ByGenre[genres.BucketMystery])

	cache.Invalidate(userID)
	_, ok = cache.Stats(userID)
	assert.False(t, ok)

	_, err = cache.GetFiltered(ctx, userID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 12, prefetchCalls(api))
}
