package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/genres"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/internal/repository"
	"github.com/streamsense/recengine/pkg/models"
)

// ErrRebuildInProgress is returned when a rebuild for the user is already running.
var ErrRebuildInProgress = errors.New("taste profile rebuild already in progress")

const (
	rebuildTimeout      = 2 * time.Minute
	watchedWeight       = 0.6
	plannedWeight       = 0.3
	topGenresProfile    = 5
	topDirectorsProfile = 5
	topActorsProfile    = 10
	topKeywordsProfile  = 10
)

type TasteProfileStatus string

const (
	TasteProfileFresh   TasteProfileStatus = "fresh"
	TasteProfileStale   TasteProfileStatus = "stale"
	TasteProfileLoading TasteProfileStatus = "loading"
)

// TasteProfileState is what callers observe: the profile (possibly stale)
// plus whether a background rebuild is running.
type TasteProfileState struct {
	Profile      *models.UserTasteProfile `json:"profile"`
	Status       TasteProfileStatus       `json:"status"`
	IsStale      bool                     `json:"is_stale"`
	IsRefreshing bool                     `json:"is_refreshing"`
}

// TasteProfileService serves persisted taste profiles stale-while-revalidate.
// At most one rebuild per user runs at a time; further requests are dropped.
type TasteProfileService struct {
	store     TasteProfileStore
	watchlist WatchlistStore
	dna       DNAStore
	config    config.TasteProfileConfig
	logger    *logrus.Logger
	now       func() time.Time

	mu        sync.Mutex
	inFlight  map[uuid.UUID]struct{}
	tracked   map[uuid.UUID]struct{}
	lastKnown map[uuid.UUID]*models.UserTasteProfile

	background context.Context
	wg         sync.WaitGroup
}

func NewTasteProfileService(
	store TasteProfileStore,
	watchlist WatchlistStore,
	dna DNAStore,
	cfg config.TasteProfileConfig,
	logger *logrus.Logger,
) *TasteProfileService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 6 * time.Hour
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 24 * time.Hour
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = 0.9
	}
	if cfg.ConfidenceTarget <= 0 {
		cfg.ConfidenceTarget = 50
	}
	return &TasteProfileService{
		store:      store,
		watchlist:  watchlist,
		dna:        dna,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		inFlight:   make(map[uuid.UUID]struct{}),
		tracked:    make(map[uuid.UUID]struct{}),
		lastKnown:  make(map[uuid.UUID]*models.UserTasteProfile),
		background: context.Background(),
	}
}

// WithClock replaces the time source.
func (s *TasteProfileService) WithClock(now func() time.Time) *TasteProfileService {
	s.now = now
	return s
}

// Load serves the persisted profile immediately. A missing profile is built
// synchronously; a profile older than the staleness threshold is returned as
// is while one background rebuild is started.
func (s *TasteProfileService) Load(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error) {
	s.track(userID)

	profile, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if !s.acquire(userID) {
			return &TasteProfileState{Status: TasteProfileLoading, IsRefreshing: true}, nil
		}
		defer s.release(userID)
		profile, err = s.rebuild(ctx, userID, "initial")
		if err != nil {
			return nil, err
		}
		return &TasteProfileState{Profile: profile, Status: TasteProfileFresh}, nil

	case err != nil:
		if cached := s.cached(userID); cached != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Taste profile store unavailable, serving last known profile")
			return s.stateFor(cached, s.isRefreshing(userID)), nil
		}
		return nil, fmt.Errorf("failed to load taste profile: %w", err)
	}

	s.remember(profile)
	refreshing := false
	if s.isStale(profile) {
		refreshing = s.rebuildAsync(userID, "stale")
	}
	return s.stateFor(profile, refreshing || s.isRefreshing(userID)), nil
}

// Refresh forces a synchronous rebuild.
func (s *TasteProfileService) Refresh(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error) {
	s.track(userID)
	if !s.acquire(userID) {
		return nil, ErrRebuildInProgress
	}
	defer s.release(userID)

	profile, err := s.rebuild(ctx, userID, "manual")
	if err != nil {
		return nil, err
	}
	return &TasteProfileState{Profile: profile, Status: TasteProfileFresh}, nil
}

// ApplyInteraction folds a single watched or rated title into the profile:
// existing weights decay, the title's DNA is added scaled by the rating, and
// every vector is renormalized. Watched count and average rating are taken
// from the watch history so repeated events for a title are not counted
// twice. Without a profile or DNA for the title it falls back to a background
// rebuild. While a rebuild is running the interaction is left to it.
func (s *TasteProfileService) ApplyInteraction(ctx context.Context, userID uuid.UUID, ref models.ContentRef, rating *int) (*TasteProfileState, error) {
	s.track(userID)

	if !s.acquire(userID) {
		metrics.TasteProfileIncrementalUpdates.WithLabelValues("rebuild_running").Inc()
		if cached := s.cached(userID); cached != nil {
			return s.stateFor(cached, true), nil
		}
		return &TasteProfileState{Status: TasteProfileLoading, IsRefreshing: true}, nil
	}
	state, needsRebuild, err := s.applyIncremental(ctx, userID, ref, rating)
	s.release(userID)

	if needsRebuild {
		started := s.rebuildAsync(userID, "interaction")
		state.IsRefreshing = started || s.isRefreshing(userID)
	}
	return state, err
}

// applyIncremental runs with the user's rebuild guard held. It reports
// whether a full rebuild is needed instead.
func (s *TasteProfileService) applyIncremental(ctx context.Context, userID uuid.UUID, ref models.ContentRef, rating *int) (*TasteProfileState, bool, error) {
	profile, err := s.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to load taste profile: %w", err)
		}
		metrics.TasteProfileIncrementalUpdates.WithLabelValues("no_profile").Inc()
		return &TasteProfileState{Status: TasteProfileLoading}, true, nil
	}

	dna, err := s.dna.Get(ctx, ref)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithError(err).WithField("content", ref.Key()).Warn("Failed to load content DNA for incremental update")
		}
		metrics.TasteProfileIncrementalUpdates.WithLabelValues("no_dna").Inc()
		return s.stateFor(profile, false), true, nil
	}

	updated := s.applyDNA(profile, dna, rating)
	if items, err := s.watchlist.ListByUser(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load watch history, keeping previous counts")
	} else {
		updated.WatchedCount, updated.AvgRating = historyStats(items)
	}
	s.finish(updated)

	if err := s.store.Upsert(ctx, updated); err != nil {
		metrics.TasteProfileIncrementalUpdates.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to save taste profile: %w", err)
	}
	s.remember(updated)
	metrics.TasteProfileIncrementalUpdates.WithLabelValues("applied").Inc()

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"content": ref.Key(),
	}).Debug("Applied interaction to taste profile")

	return s.stateFor(updated, false), false, nil
}

// historyStats counts watched titles and averages ratings over rated titles.
func historyStats(items []models.WatchlistItem) (watched int, avgRating float64) {
	var rated, sum int
	for _, item := range items {
		if item.Status == models.WatchStatusWatched {
			watched++
		}
		if item.Rating != nil && *item.Rating >= 1 && *item.Rating <= 5 {
			rated++
			sum += *item.Rating
		}
	}
	if rated > 0 {
		avgRating = float64(sum) / float64(rated)
	}
	return watched, avgRating
}

func (s *TasteProfileService) applyDNA(current *models.UserTasteProfile, dna *models.ContentDNA, rating *int) *models.UserTasteProfile {
	p := *current
	p.TasteVectors = models.NewTasteVectors()
	weight := interactionWeight(rating, models.WatchStatusWatched)

	src := current.TasteVectors
	for i, d := range p.TasteVectors.Dimensions() {
		from := *src.Dimensions()[i].Vector
		for _, k := range d.Keys {
			(*d.Vector)[k] = from[k]
		}
		decayVector(*d.Vector, d.Keys, s.config.Decay)
		addScaled(*d.Vector, *dna.TasteVectors.Dimensions()[i].Vector, d.Keys, weight)
		normalizeVector(*d.Vector, d.Keys)
	}

	genreNames := make([]string, 0, len(dna.GenreIDs))
	for _, id := range dna.GenreIDs {
		genreNames = append(genreNames, genres.Name(id))
	}
	p.TopGenres = mergeTop(current.TopGenres, genreNames, topGenresProfile)
	p.TopDirectors = mergeTop(current.TopDirectors, dna.Directors, topDirectorsProfile)
	p.TopActors = mergeTop(current.TopActors, dna.Actors, topActorsProfile)
	p.TopKeywords = mergeTop(current.TopKeywords, dna.Keywords, topKeywordsProfile)
	return &p
}

// rebuild recomputes the profile from the full watch history and persists it.
func (s *TasteProfileService) rebuild(ctx context.Context, userID uuid.UUID, trigger string) (*models.UserTasteProfile, error) {
	start := time.Now()

	items, err := s.watchlist.ListByUser(ctx, userID)
	if err != nil {
		metrics.TasteProfileRebuilds.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("failed to load watch history: %w", err)
	}

	refs := make([]models.ContentRef, 0, len(items))
	for _, item := range items {
		if ref, ok := item.Ref(); ok {
			refs = append(refs, ref)
		}
	}
	dnaByKey, err := s.dna.GetMany(ctx, refs)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load content DNA, building genre-only profile")
		dnaByKey = map[string]*models.ContentDNA{}
	}

	p := &models.UserTasteProfile{
		UserID:       userID,
		TasteVectors: models.NewTasteVectors(),
	}
	p.WatchedCount, p.AvgRating = historyStats(items)
	genreCounts, directors, actors, keywords := newCounter(), newCounter(), newCounter(), newCounter()

	for _, item := range items {
		weight := interactionWeight(item.Rating, item.Status)
		for _, g := range item.GenreIDs {
			genreCounts.add(genres.Name(g), weight)
		}

		ref, ok := item.Ref()
		if !ok {
			continue
		}
		dna, ok := dnaByKey[ref.Key()]
		if !ok {
			continue
		}
		for i, d := range p.TasteVectors.Dimensions() {
			addScaled(*d.Vector, *dna.TasteVectors.Dimensions()[i].Vector, d.Keys, weight)
		}
		for _, name := range dna.Directors {
			directors.add(name, weight)
		}
		for _, name := range dna.Actors {
			actors.add(name, weight)
		}
		for _, name := range dna.Keywords {
			keywords.add(name, weight)
		}
	}

	for _, d := range p.TasteVectors.Dimensions() {
		normalizeVector(*d.Vector, d.Keys)
	}
	p.TopGenres = genreCounts.top(topGenresProfile)
	p.TopDirectors = directors.top(topDirectorsProfile)
	p.TopActors = actors.top(topActorsProfile)
	p.TopKeywords = keywords.top(topKeywordsProfile)
	s.finish(p)

	if err := s.store.Upsert(ctx, p); err != nil {
		metrics.TasteProfileRebuilds.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("failed to save taste profile: %w", err)
	}
	s.remember(p)
	metrics.TasteProfileRebuilds.WithLabelValues(trigger, "success").Inc()

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"trigger":  trigger,
		"items":    len(items),
		"with_dna": len(dnaByKey),
		"duration": time.Since(start),
	}).Info("Rebuilt taste profile")

	return p, nil
}

// finish derives signature, confidence and discovery suggestions and stamps the profile.
func (s *TasteProfileService) finish(p *models.UserTasteProfile) {
	p.TasteSignature = tasteSignature(&p.TasteVectors)
	p.Confidence = math.Min(1, float64(p.WatchedCount)/float64(s.config.ConfidenceTarget))
	p.DiscoveryOpportunities = discoveryOpportunities(&p.TasteVectors)
	for _, list := range []*[]string{&p.TopGenres, &p.TopDirectors, &p.TopActors, &p.TopKeywords} {
		if *list == nil {
			*list = []string{}
		}
	}
	p.UpdatedAt = s.now()
}

// rebuildAsync starts a detached rebuild unless one is already running for the
// user. Reports whether it started one.
func (s *TasteProfileService) rebuildAsync(userID uuid.UUID, trigger string) bool {
	if !s.acquire(userID) {
		return false
	}
	s.mu.Lock()
	parent := s.background
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(userID)
		ctx, cancel := context.WithTimeout(parent, rebuildTimeout)
		defer cancel()
		if _, err := s.rebuild(ctx, userID, trigger); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"trigger": trigger,
			}).Error("Background taste profile rebuild failed")
		}
	}()
	return true
}

// StartScheduler rebuilds every tracked user on each refresh interval,
// regardless of staleness, until ctx is cancelled.
func (s *TasteProfileService) StartScheduler(ctx context.Context) {
	s.mu.Lock()
	s.background = ctx
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.config.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RefreshTracked()
			}
		}
	}()
}

// RefreshTracked starts a background rebuild for every user seen so far.
// Returns how many rebuilds were started.
func (s *TasteProfileService) RefreshTracked() int {
	s.mu.Lock()
	users := make([]uuid.UUID, 0, len(s.tracked))
	for id := range s.tracked {
		users = append(users, id)
	}
	s.mu.Unlock()

	started := 0
	for _, id := range users {
		if s.rebuildAsync(id, "scheduled") {
			started++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"users":   len(users),
		"started": started,
	}).Info("Scheduled taste profile refresh")
	return started
}

// Wait blocks until every background rebuild has finished.
func (s *TasteProfileService) Wait() {
	s.wg.Wait()
}

func (s *TasteProfileService) isStale(p *models.UserTasteProfile) bool {
	return s.now().Sub(p.UpdatedAt) > s.config.StaleAfter
}

func (s *TasteProfileService) stateFor(p *models.UserTasteProfile, refreshing bool) *TasteProfileState {
	stale := s.isStale(p)
	status := TasteProfileFresh
	if stale {
		status = TasteProfileStale
	}
	return &TasteProfileState{Profile: p, Status: status, IsStale: stale, IsRefreshing: refreshing}
}

func (s *TasteProfileService) acquire(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *TasteProfileService) release(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

func (s *TasteProfileService) isRefreshing(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[userID]
	return busy
}

func (s *TasteProfileService) track(userID uuid.UUID) {
	s.mu.Lock()
	s.tracked[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *TasteProfileService) remember(p *models.UserTasteProfile) {
	s.mu.Lock()
	s.lastKnown[p.UserID] = p
	s.mu.Unlock()
}

func (s *TasteProfileService) cached(userID uuid.UUID) *models.UserTasteProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKnown[userID]
}

// interactionWeight scales a title's contribution: rating/5 when rated, a
// fixed weight for watched titles, and a smaller one for planned titles.
func interactionWeight(rating *int, status models.WatchStatus) float64 {
	if rating != nil && *rating >= 1 && *rating <= 5 {
		return float64(*rating) / 5
	}
	if status == models.WatchStatusWatched || status == models.WatchStatusWatching {
		return watchedWeight
	}
	return plannedWeight
}
