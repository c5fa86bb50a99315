package services

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/genres"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

const (
	maxRatingBonus = 20.0
	groupMaxPage   = 3
)

// SmartOptions controls one recommendation call. An empty MediaType follows
// the user's computed preference.
type SmartOptions struct {
	MediaType        models.MediaType
	Limit            int
	IncludeDiscovery bool
	ForceRefresh     bool
}

// ContentSink receives every item returned to a user, e.g. the recommendation cache.
type ContentSink interface {
	Ingest(userID uuid.UUID, items []models.UnifiedContent)
}

// SmartRecommendationService issues scoped content queries for a preference
// profile and merges them into deduplicated, ranked categories.
type SmartRecommendationService struct {
	preferences PreferenceServiceInterface
	content     ContentAPI
	session     *SessionCache
	rng         RandomSource
	sink        ContentSink
	config      config.RecommendationConfig
	logger      *logrus.Logger
}

func NewSmartRecommendationService(
	preferences PreferenceServiceInterface,
	content ContentAPI,
	session *SessionCache,
	rng RandomSource,
	sink ContentSink,
	cfg config.RecommendationConfig,
	logger *logrus.Logger,
) *SmartRecommendationService {
	if session == nil {
		session = NewSessionCache()
	}
	if rng == nil {
		rng = NewRandomSource(cfg.RandomSeed)
	}
	return &SmartRecommendationService{
		preferences: preferences,
		content:     content,
		session:     session,
		rng:         rng,
		sink:        sink,
		config:      cfg,
		logger:      logger,
	}
}

// ClearSession forgets everything shown to the user so far and releases the
// user's scope.
func (s *SmartRecommendationService) ClearSession(userID uuid.UUID) {
	s.session.DropScope(userID.String())
}

// candidateSet holds the raw sub-query results. Each field is written by
// exactly one goroutine and read only after the group finishes.
type candidateSet struct {
	forYou    []models.UnifiedContent
	liked     []models.GenreGroup
	deepCuts  []models.GenreGroup
	discovery []models.UnifiedContent
	trending  []models.UnifiedContent
}

// GetSmartRecommendations always returns a well-formed result. Sub-query
// failures are logged and contribute no items.
func (s *SmartRecommendationService) GetSmartRecommendations(ctx context.Context, userID uuid.UUID, opts SmartOptions) *models.SmartRecommendations {
	start := time.Now()
	defer metrics.ObserveSince(metrics.RecommendationDuration, start)

	result := models.NewSmartRecommendations(userID)
	limit := s.normalizeLimit(opts.Limit)

	session := s.session.Scope(userID.String())
	if opts.ForceRefresh {
		session.Clear()
	}

	prefs, err := s.preferences.GetUserPreferences(ctx, userID)
	if err != nil || prefs == nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load preferences, serving cold start")
		prefs = models.NewUserPreferences(userID)
	}
	result.ColdStart = prefs.ColdStart()
	metrics.RecommendationRequests.WithLabelValues(strconv.FormatBool(result.ColdStart)).Inc()

	mediaTypes := s.mediaTypesFor(opts.MediaType, prefs.PreferredMediaType)
	top := prefs.TopGenres
	if len(top) > s.config.TopGenreQueryCount {
		top = top[:s.config.TopGenreQueryCount]
	}

	var c candidateSet
	var g errgroup.Group
	if !result.ColdStart {
		g.Go(func() error {
			c.forYou = s.fetchForYou(ctx, mediaTypes, top)
			return nil
		})
		g.Go(func() error {
			c.liked = s.fetchBecauseYouLiked(ctx, mediaTypes, top)
			return nil
		})
		g.Go(func() error {
			c.deepCuts = s.fetchDeepCuts(ctx, mediaTypes, prefs.GenreCombos)
			return nil
		})
		if opts.IncludeDiscovery && prefs.TotalInteractions > s.config.DiscoveryMinHistory {
			g.Go(func() error {
				c.discovery = s.fetchDiscovery(ctx, mediaTypes, prefs.TopGenres)
				return nil
			})
		}
	}
	g.Go(func() error {
		c.trending = s.fetchTrending(ctx, opts.MediaType)
		return nil
	})
	_ = g.Wait()

	s.assemble(result, &c, prefs, session, limit)

	keys := make([]string, 0, limit*4)
	items := result.Items()
	for _, item := range items {
		keys = append(keys, item.Key())
	}
	session.AddAll(keys)
	if s.sink != nil && len(items) > 0 {
		s.sink.Ingest(userID, items)
	}

	metrics.RecommendationItems.WithLabelValues("for_you").Observe(float64(len(result.ForYou)))
	metrics.RecommendationItems.WithLabelValues("because_you_liked").Observe(float64(countGroupItems(result.BecauseYouLiked)))
	metrics.RecommendationItems.WithLabelValues("deep_cuts").Observe(float64(countGroupItems(result.DeepCuts)))
	metrics.RecommendationItems.WithLabelValues("discovery").Observe(float64(len(result.Discovery)))
	metrics.RecommendationItems.WithLabelValues("trending").Observe(float64(len(result.Trending)))

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"cold_start": result.ColdStart,
		"for_you":    len(result.ForYou),
		"groups":     len(result.BecauseYouLiked),
		"deep_cuts":  len(result.DeepCuts),
		"discovery":  len(result.Discovery),
		"trending":   len(result.Trending),
		"duration":   time.Since(start),
	}).Debug("Generated smart recommendations")

	return result
}

// assemble filters and ranks the candidates single-threaded. Categories claim
// items in order, so an item appears in at most one category.
func (s *SmartRecommendationService) assemble(result *models.SmartRecommendations, c *candidateSet, prefs *models.UserPreferences, session *SessionCache, limit int) {
	claimed := models.KeySet{}
	forYouFloor := s.config.ForYouFloor
	discoveryFloor := s.config.DiscoveryFloor

	eligible := func(item models.UnifiedContent, floor *config.QualityFloor) bool {
		key := item.Key()
		if prefs.WatchlistContentIDs.Has(key) || session.Has(key) || claimed.Has(key) {
			return false
		}
		if floor != nil && (item.VoteCount < floor.MinVoteCount || item.Rating < floor.MinVoteAverage) {
			return false
		}
		return true
	}

	take := func(items []models.UnifiedContent, floor *config.QualityFloor, max int) []models.UnifiedContent {
		out := []models.UnifiedContent{}
		for _, item := range items {
			if len(out) >= max {
				break
			}
			if !eligible(item, floor) {
				continue
			}
			claimed.Add(item.Key())
			out = append(out, item)
		}
		return out
	}

	groups := func(in []models.GenreGroup, floor *config.QualityFloor) []models.GenreGroup {
		out := []models.GenreGroup{}
		for _, group := range in {
			items := take(group.Items, floor, s.config.GroupSize)
			if len(items) == 0 {
				continue
			}
			group.Items = items
			out = append(out, group)
		}
		return out
	}

	result.ForYou = take(s.rank(dedupe(c.forYou), prefs), &forYouFloor, limit)
	result.BecauseYouLiked = groups(c.liked, &forYouFloor)
	result.DeepCuts = groups(c.deepCuts, &forYouFloor)
	result.Discovery = take(dedupe(c.discovery), &discoveryFloor, limit)
	result.Trending = take(dedupe(c.trending), nil, limit)
}

// rank orders candidates by w*relevance + (1-w)*random. Relevance is scaled
// into [0,1] by the best candidate so the blend weight keeps its meaning.
func (s *SmartRecommendationService) rank(items []models.UnifiedContent, prefs *models.UserPreferences) []models.UnifiedContent {
	if len(items) == 0 {
		return items
	}
	w := s.config.RelevanceWeight
	relevance := make([]float64, len(items))
	best := 0.0
	for i, item := range items {
		relevance[i] = Relevance(item, prefs.TopGenres)
		best = math.Max(best, relevance[i])
	}

	type scored struct {
		item  models.UnifiedContent
		score float64
	}
	ranked := make([]scored, len(items))
	for i, item := range items {
		r := 0.0
		if best > 0 {
			r = relevance[i] / best
		}
		ranked[i] = scored{item: item, score: w*r + (1-w)*s.rng.Float64()}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]models.UnifiedContent, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

// Relevance sums the weights of matched top genres (aliases count as a match),
// a rating bonus of rating*2 capped at 20, and a log-scaled popularity bonus.
func Relevance(item models.UnifiedContent, top []models.GenreScore) float64 {
	score := 0.0
	for _, g := range top {
		for _, id := range genres.Equivalents(g.ID) {
			if item.HasGenre(id) {
				score += float64(g.Weight)
				break
			}
		}
	}
	score += math.Min(item.Rating*2, maxRatingBonus)
	score += math.Log10(item.Popularity+1) * 2
	return score
}

func (s *SmartRecommendationService) fetchForYou(ctx context.Context, mediaTypes []models.MediaType, top []models.GenreScore) []models.UnifiedContent {
	var out []models.UnifiedContent
	for _, mt := range mediaTypes {
		ids := genreIDsFor(mt, top)
		if len(ids) == 0 {
			continue
		}
		items, err := s.content.Discover(ctx, mt, tmdb.DiscoverParams{
			GenreIDs:       ids,
			MinVoteCount:   s.config.ForYouFloor.MinVoteCount,
			MinVoteAverage: s.config.ForYouFloor.MinVoteAverage,
			Page:           randomPage(s.rng, s.config.ForYouMaxPage),
		})
		if err != nil {
			s.subQueryFailed("for_you", mt, err)
			continue
		}
		out = append(out, items...)
	}
	return out
}

func (s *SmartRecommendationService) fetchBecauseYouLiked(ctx context.Context, mediaTypes []models.MediaType, top []models.GenreScore) []models.GenreGroup {
	out := make([]models.GenreGroup, 0, len(top))
	for _, g := range top {
		group := models.GenreGroup{GenreIDs: []int{g.ID}, Label: g.Name}
		if group.Label == "" {
			group.Label = genres.Name(g.ID)
		}
		for _, mt := range mediaTypes {
			id, ok := genres.Counterpart(g.ID, mt)
			if !ok {
				continue
			}
			items, err := s.content.Discover(ctx, mt, tmdb.DiscoverParams{
				GenreIDs:       []int{id},
				MinVoteCount:   s.config.ForYouFloor.MinVoteCount,
				MinVoteAverage: s.config.ForYouFloor.MinVoteAverage,
				Page:           randomPage(s.rng, groupMaxPage),
			})
			if err != nil {
				s.subQueryFailed("because_you_liked", mt, err)
				continue
			}
			group.Items = append(group.Items, items...)
		}
		group.Items = dedupe(group.Items)
		out = append(out, group)
	}
	return out
}

func (s *SmartRecommendationService) fetchDeepCuts(ctx context.Context, mediaTypes []models.MediaType, combos []models.GenreCombo) []models.GenreGroup {
	if len(combos) > s.config.DeepCutCombos {
		combos = combos[:s.config.DeepCutCombos]
	}
	out := make([]models.GenreGroup, 0, len(combos))
	for _, combo := range combos {
		group := models.GenreGroup{GenreIDs: combo.GenreIDs, Label: genres.Label(combo.GenreIDs)}
		for _, mt := range mediaTypes {
			ids, ok := counterparts(combo.GenreIDs, mt)
			if !ok {
				continue
			}
			items, err := s.content.Discover(ctx, mt, tmdb.DiscoverParams{
				GenreIDs:       ids,
				MatchAll:       true,
				SortBy:         "vote_average.desc",
				MinVoteCount:   s.config.ForYouFloor.MinVoteCount,
				MinVoteAverage: s.config.ForYouFloor.MinVoteAverage,
				Page:           randomPage(s.rng, groupMaxPage),
			})
			if err != nil {
				s.subQueryFailed("deep_cuts", mt, err)
				continue
			}
			group.Items = append(group.Items, items...)
		}
		group.Items = dedupe(group.Items)
		out = append(out, group)
	}
	return out
}

// fetchDiscovery samples genres outside the user's top list and applies the
// stricter discovery quality floor.
func (s *SmartRecommendationService) fetchDiscovery(ctx context.Context, mediaTypes []models.MediaType, top []models.GenreScore) []models.UnifiedContent {
	known := make(map[int]struct{})
	for _, g := range top {
		for _, id := range genres.Equivalents(g.ID) {
			known[id] = struct{}{}
		}
	}
	var unexplored []int
	for _, mt := range mediaTypes {
		for _, id := range genres.AllIDs(mt) {
			if _, ok := known[id]; ok {
				continue
			}
			known[id] = struct{}{}
			unexplored = append(unexplored, id)
		}
	}
	picked := sample(s.rng, unexplored, s.config.DiscoveryGenreCount)
	if len(picked) == 0 {
		return nil
	}

	var out []models.UnifiedContent
	for _, mt := range mediaTypes {
		var ids []int
		for _, id := range picked {
			if cp, ok := genres.Counterpart(id, mt); ok && cp == id {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		items, err := s.content.Discover(ctx, mt, tmdb.DiscoverParams{
			GenreIDs:       ids,
			MinVoteCount:   s.config.DiscoveryFloor.MinVoteCount,
			MinVoteAverage: s.config.DiscoveryFloor.MinVoteAverage,
			Page:           randomPage(s.rng, s.config.DiscoveryMaxPage),
		})
		if err != nil {
			s.subQueryFailed("discovery", mt, err)
			continue
		}
		out = append(out, items...)
	}
	return out
}

func (s *SmartRecommendationService) fetchTrending(ctx context.Context, requested models.MediaType) []models.UnifiedContent {
	items, err := s.content.Trending(ctx, requested, s.config.TrendingWindow, 1)
	if err != nil {
		s.subQueryFailed("trending", requested, err)
		return nil
	}
	return items
}

func (s *SmartRecommendationService) subQueryFailed(category string, mt models.MediaType, err error) {
	metrics.SubQueryFailures.WithLabelValues(category).Inc()
	s.logger.WithError(err).WithFields(logrus.Fields{
		"category":   category,
		"media_type": mt,
	}).Warn("Recommendation sub-query failed")
}

func (s *SmartRecommendationService) normalizeLimit(limit int) int {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return limit
}

// mediaTypesFor honours an explicit request, else the computed lean, else both.
func (s *SmartRecommendationService) mediaTypesFor(requested models.MediaType, preferred models.PreferredMediaType) []models.MediaType {
	if requested.Valid() {
		return []models.MediaType{requested}
	}
	switch preferred {
	case models.PreferMovie:
		return []models.MediaType{models.MediaTypeMovie}
	case models.PreferTV:
		return []models.MediaType{models.MediaTypeTV}
	default:
		return models.MediaTypes
	}
}

// genreIDsFor maps the top genres onto the media type's table, without duplicates.
func genreIDsFor(mt models.MediaType, top []models.GenreScore) []int {
	var ids []int
	seen := make(map[int]struct{})
	for _, g := range top {
		id, ok := genres.Counterpart(g.ID, mt)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func counterparts(ids []int, mt models.MediaType) ([]int, bool) {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		cp, ok := genres.Counterpart(id, mt)
		if !ok {
			return nil, false
		}
		out = append(out, cp)
	}
	return uniqueSorted(out), true
}

func dedupe(items []models.UnifiedContent) []models.UnifiedContent {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.UnifiedContent, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Key()]; ok {
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return out
}

func countGroupItems(groups []models.GenreGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	return n
}
