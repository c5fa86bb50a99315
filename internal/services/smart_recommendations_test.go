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

type stubPreferences struct {
	prefs *models.UserPreferences
	err   error
}

func (s stubPreferences) GetUserPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	if s.prefs == nil {
		return nil, s.err
	}
	p := *s.prefs
	p.UserID = userID
	return &p, s.err
}

type recordingSink struct {
	mu    sync.Mutex
	items map[uuid.UUID][]models.UnifiedContent
}

func (r *recordingSink) Ingest(userID uuid.UUID, items []models.UnifiedContent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[uuid.UUID][]models.UnifiedContent)
	}
	r.items[userID] = append(r.items[userID], items...)
}

func testRecommendationConfig() config.RecommendationConfig {
	return config.RecommendationConfig{
		RelevanceWeight:     0.7,
		DefaultLimit:        20,
		MaxLimit:            100,
		TopGenreQueryCount:  3,
		GroupSize:           6,
		ForYouMaxPage:       10,
		ForYouFloor:         config.QualityFloor{MinVoteCount: 100, MinVoteAverage: 6.5},
		DiscoveryMaxPage:    5,
		DiscoveryFloor:      config.QualityFloor{MinVoteCount: 500, MinVoteAverage: 7.5},
		DiscoveryGenreCount: 3,
		DiscoveryMinHistory: 5,
		DeepCutCombos:       2,
		TrendingWindow:      "week",
	}
}

func batch(mt models.MediaType, start, n int, genreIDs ...int) []models.UnifiedContent {
	out := make([]models.UnifiedContent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, makeContent(mt, start+i, genreIDs...))
	}
	return out
}

// categorizedContent hands out disjoint id ranges per kind of query.
func categorizedContent() *fakeContent {
	return &fakeContent{
		discover: func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
			switch {
			case p.MatchAll:
				return batch(mt, 300, 4, p.GenreIDs...), nil
			case p.MinVoteCount == 500:
				return batch(mt, 400, 4, p.GenreIDs...), nil
			case len(p.GenreIDs) == 1:
				return batch(mt, 100000+p.GenreIDs[0]*10, 3, p.GenreIDs...), nil
			default:
				return batch(mt, 100, 10, p.GenreIDs...), nil
			}
		},
		trending: func(mt models.MediaType, page int) ([]models.UnifiedContent, error) {
			return []models.UnifiedContent{
				makeContent(models.MediaTypeMovie, 100),
				makeContent(models.MediaTypeMovie, 101),
				makeContent(models.MediaTypeMovie, 500),
			}, nil
		},
	}
}

func establishedPreferences() *models.UserPreferences {
	prefs := models.NewUserPreferences(uuid.Nil)
	prefs.TotalInteractions = 10
	prefs.PreferredMediaType = models.PreferMovie
	prefs.TopGenres = []models.GenreScore{
		{ID: genres.Action, Name: "Action", Score: 5, Weight: 5},
		{ID: genres.Drama, Name: "Drama", Score: 3, Weight: 3},
	}
	prefs.GenreCombos = []models.GenreCombo{{GenreIDs: []int{genres.Action, genres.Drama}, Count: 2}}
	prefs.WatchlistContentIDs.Add("movie-100")
	return prefs
}

func newSmartService(prefs PreferenceServiceInterface, api ContentAPI, sink ContentSink) *SmartRecommendationService {
	return NewSmartRecommendationService(prefs, api, NewSessionCache(), fixedRand{f: 0.5}, sink, testRecommendationConfig(), testLogger())
}

func allKeys(r *models.SmartRecommendations) []string {
	var keys []string
	for _, item := range r.Items() {
		keys = append(keys, item.Key())
	}
	return keys
}

func TestSmartRecommendations_ColdStart(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: models.NewUserPreferences(uuid.Nil)}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{IncludeDiscovery: true})

	assert.True(t, result.ColdStart)
	assert.Empty(t, api.calls(), "cold start only queries trending")
	assert.Len(t, result.Trending, 3)
	assert.NotNil(t, result.ForYou)
	assert.NotNil(t, result.BecauseYouLiked)
	assert.NotNil(t, result.DeepCuts)
	assert.NotNil(t, result.Discovery)
	assert.Empty(t, result.ForYou)
}

func TestSmartRecommendations_PreferenceFailureServesColdStart(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{err: errors.New("db down")}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{})
	assert.True(t, result.ColdStart)
	assert.NotEmpty(t, result.Trending)
}

func TestSmartRecommendations_Categories(t *testing.T) {
	api := categorizedContent()
	sink := &recordingSink{}
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, sink)
	userID := uuid.New()

	result := svc.GetSmartRecommendations(context.Background(), userID, SmartOptions{IncludeDiscovery: true})

	assert.False(t, result.ColdStart)
	assert.Len(t, result.ForYou, 9, "the watchlisted title is excluded")
	require.Len(t, result.BecauseYouLiked, 2)
	assert.Equal(t, "Action", result.BecauseYouLiked[0].Label)
	assert.Len(t, result.BecauseYouLiked[0].Items, 3)
	require.Len(t, result.DeepCuts, 1)
	assert.Equal(t, []int{genres.Action, genres.Drama}, result.DeepCuts[0].GenreIDs)
	assert.Len(t, result.DeepCuts[0].Items, 4)
	assert.Len(t, result.Discovery, 4)
	require.Len(t, result.Trending, 1, "trending keeps only unclaimed titles")
	assert.Equal(t, "movie-500", result.Trending[0].Key())

	keys := allKeys(result)
	seen := make(map[string]struct{})
	for _, k := range keys {
		_, dup := seen[k]
		assert.False(t, dup, "duplicate %s", k)
		seen[k] = struct{}{}
		assert.NotEqual(t, "movie-100", k)
	}

	for _, call := range api.calls() {
		assert.Equal(t, models.MediaTypeMovie, call.MediaType, "preferred media type limits queries")
	}
	assert.Len(t, sink.items[userID], len(keys))
}

func TestSmartRecommendations_DeepCutQuery(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, nil)

	svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{})

	var deep []discoverCall
	for _, call := range api.calls() {
		if call.Params.MatchAll {
			deep = append(deep, call)
		}
	}
	require.Len(t, deep, 1)
	assert.Equal(t, "vote_average.desc", deep[0].Params.SortBy)
	assert.Equal(t, []int{genres.Drama, genres.Action}, deep[0].Params.GenreIDs)
	assert.Equal(t, 100, deep[0].Params.MinVoteCount)
}

func TestSmartRecommendations_DiscoveryRequiresHistory(t *testing.T) {
	prefs := establishedPreferences()
	prefs.TotalInteractions = 5
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: prefs}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{IncludeDiscovery: true})

	assert.Empty(t, result.Discovery)
	for _, call := range api.calls() {
		assert.NotEqual(t, 500, call.Params.MinVoteCount)
	}
}

func TestSmartRecommendations_DiscoveryAvoidsKnownGenres(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, nil)

	svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{IncludeDiscovery: true})

	known := map[int]bool{}
	for _, id := range append(genres.Equivalents(genres.Action), genres.Equivalents(genres.Drama)...) {
		known[id] = true
	}
	found := false
	for _, call := range api.calls() {
		if call.Params.MinVoteCount != 500 {
			continue
		}
		found = true
		assert.LessOrEqual(t, len(call.Params.GenreIDs), 3)
		assert.InDelta(t, 7.5, call.Params.MinVoteAverage, 1e-9)
		for _, id := range call.Params.GenreIDs {
			assert.False(t, known[id], "genre %d is already a top genre", id)
		}
	}
	assert.True(t, found)
}

func TestSmartRecommendations_QualityFloors(t *testing.T) {
	weak := makeContent(models.MediaTypeMovie, 1, genres.Action)
	weak.VoteCount = 50
	lowRated := makeContent(models.MediaTypeMovie, 2, genres.Action)
	lowRated.Rating = 6
	good := makeContent(models.MediaTypeMovie, 3, genres.Action)
	nearlyGreat := makeContent(models.MediaTypeMovie, 4, genres.Comedy)
	nearlyGreat.Rating = 7.2

	api := &fakeContent{
		discover: func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
			if p.MinVoteCount == 500 {
				return []models.UnifiedContent{nearlyGreat}, nil
			}
			if len(p.GenreIDs) > 1 || p.MatchAll {
				return nil, nil
			}
			if p.GenreIDs[0] == genres.Action {
				return []models.UnifiedContent{weak, lowRated, good}, nil
			}
			return nil, nil
		},
	}
	prefs := establishedPreferences()
	prefs.TopGenres = prefs.TopGenres[:1]
	prefs.GenreCombos = nil
	svc := newSmartService(stubPreferences{prefs: prefs}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{IncludeDiscovery: true})

	require.Len(t, result.ForYou, 1)
	assert.Equal(t, "movie-3", result.ForYou[0].Key())
	assert.Empty(t, result.Discovery, "discovery applies the stricter floor")
}

func TestSmartRecommendations_SessionExclusion(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, nil)
	userID := uuid.New()
	ctx := context.Background()

	first := svc.GetSmartRecommendations(ctx, userID, SmartOptions{})
	require.NotEmpty(t, first.ForYou)

	second := svc.GetSmartRecommendations(ctx, userID, SmartOptions{})
	firstKeys := map[string]bool{}
	for _, k := range allKeys(first) {
		firstKeys[k] = true
	}
	for _, k := range allKeys(second) {
		assert.False(t, firstKeys[k], "%s was already shown", k)
	}

	other := svc.GetSmartRecommendations(ctx, uuid.New(), SmartOptions{})
	assert.Len(t, other.ForYou, len(first.ForYou), "sessions are per user")

	refreshed := svc.GetSmartRecommendations(ctx, userID, SmartOptions{ForceRefresh: true})
	assert.ElementsMatch(t, allKeys(first), allKeys(refreshed))

	svc.ClearSession(userID)
	assert.Equal(t, 1, scopeCount(svc.session), "the cleared user's scope is released")
	cleared := svc.GetSmartRecommendations(ctx, userID, SmartOptions{})
	assert.ElementsMatch(t, allKeys(first), allKeys(cleared))
}

func TestSmartRecommendations_SubQueryFailure(t *testing.T) {
	api := &fakeContent{
		discover: func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
			return nil, errors.New("upstream unavailable")
		},
		trending: func(mt models.MediaType, page int) ([]models.UnifiedContent, error) {
			return batch(models.MediaTypeTV, 1, 5), nil
		},
	}
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{IncludeDiscovery: true})

	assert.Empty(t, result.ForYou)
	assert.Empty(t, result.BecauseYouLiked)
	assert.Empty(t, result.DeepCuts)
	assert.Len(t, result.Trending, 5)
}

func TestSmartRecommendations_LimitAndMediaType(t *testing.T) {
	api := categorizedContent()
	svc := newSmartService(stubPreferences{prefs: establishedPreferences()}, api, nil)

	result := svc.GetSmartRecommendations(context.Background(), uuid.New(), SmartOptions{MediaType: models.MediaTypeTV, Limit: 4})

	assert.Len(t, result.ForYou, 4)
	for _, call := range api.calls() {
		assert.Equal(t, models.MediaTypeTV, call.MediaType)
	}
}

func TestSmartRecommendations_RankFavorsRelevance(t *testing.T) {
	prefs := establishedPreferences()
	svc := newSmartService(stubPreferences{prefs: prefs}, &fakeContent{}, nil)

	plain := makeContent(models.MediaTypeMovie, 1, genres.Comedy)
	plain.Rating, plain.Popularity = 5, 1
	match := makeContent(models.MediaTypeMovie, 2, genres.Action, genres.Drama)

	ranked := svc.rank([]models.UnifiedContent{plain, match}, prefs)
	require.Len(t, ranked, 2)
	assert.Equal(t, 2, ranked[0].ID)
}

func TestRelevance(t *testing.T) {
	top := []models.GenreScore{{ID: genres.Action, Weight: 4}, {ID: genres.ScienceFiction, Weight: 2}}

	tests := []struct {
		name     string
		item     models.UnifiedContent
		expected float64
	}{
		{
			name:     "no match, no rating",
			item:     models.UnifiedContent{GenreIDs: []int{genres.Comedy}},
			expected: 0,
		},
		{
			name:     "direct genre match",
			item:     models.UnifiedContent{GenreIDs: []int{genres.Action}},
			expected: 4,
		},
		{
			name:     "alias counts once",
			item:     models.UnifiedContent{GenreIDs: []int{genres.ActionAdventure, genres.Adventure, genres.SciFiFantasy}},
			expected: 6,
		},
		{
			name:     "rating bonus is capped",
			item:     models.UnifiedContent{Rating: 15},
			expected: 20,
		},
		{
			name:     "popularity is log scaled",
			item:     models.UnifiedContent{Popularity: 99},
			expected: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Relevance(tt.item, top), 1e-9)
		})
	}
}

func TestDedupe(t *testing.T) {
	items := []models.UnifiedContent{
		makeContent(models.MediaTypeMovie, 1),
		makeContent(models.MediaTypeTV, 1),
		makeContent(models.MediaTypeMovie, 1),
	}
	out := dedupe(items)
	require.Len(t, out, 2)
	assert.Equal(t, "movie-1", out[0].Key())
	assert.Equal(t, "tv-1", out[1].Key())
}
