package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/genres"
	"github.com/streamsense/recengine/pkg/models"
)

const (
	recentWindow        = 30 * 24 * time.Hour
	recentAffinityBoost = 1.5
	topGenreLimit       = 10
	mediaTypeMinSample  = 5
	mediaTypeLeanShare  = 0.7
	genreComboMinCount  = 2
	genreComboLimit     = 5
	genreComboMinRating = 4
)

// ratingBoost is added to every genre tag of a watchlist item with that rating.
var ratingBoost = map[int]float64{5: 2, 4: 1.5}

// PreferenceService aggregates genre affinity and watchlist history into a
// scored preference profile.
type PreferenceService struct {
	watchlist WatchlistStore
	affinity  AffinityStore
	logger    *logrus.Logger
	now       func() time.Time
}

func NewPreferenceService(watchlist WatchlistStore, affinity AffinityStore, logger *logrus.Logger) *PreferenceService {
	return &PreferenceService{
		watchlist: watchlist,
		affinity:  affinity,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *PreferenceService) WithClock(now func() time.Time) *PreferenceService {
	s.now = now
	return s
}

// GetUserPreferences never fails on empty history; a zero TotalInteractions is
// the cold-start signal. A failed read of either collection is logged and
// treated as empty.
func (s *PreferenceService) GetUserPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	prefs := models.NewUserPreferences(userID)
	if userID == uuid.Nil {
		return prefs, nil
	}

	affinity, err := s.affinity.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load genre affinity, continuing without it")
		affinity = nil
	}
	items, err := s.watchlist.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load watchlist, continuing without it")
		items = nil
	}

	cutoff := s.now().Add(-recentWindow)
	scores := newGenreAccumulator()

	for _, a := range affinity {
		score := a.AffinityScore
		if a.LastInteractionAt != nil && a.LastInteractionAt.After(cutoff) {
			score *= recentAffinityBoost
			prefs.RecentGenres.Add(a.GenreID)
		}
		name := a.GenreName
		if name == "" {
			name = genres.Name(a.GenreID)
		}
		scores.add(a.GenreID, name, score, a.InteractionCount)
	}

	var movies, shows, rated, ratingSum int
	for _, item := range items {
		prefs.TotalInteractions++
		if ref, ok := item.Ref(); ok {
			prefs.WatchlistContentIDs.Add(ref.Key())
		}

		switch item.MediaType {
		case models.MediaTypeMovie:
			movies++
		case models.MediaTypeTV:
			shows++
		}

		recent := item.UpdatedAt.After(cutoff)
		boost := 0.0
		if item.Rating != nil && *item.Rating >= 1 && *item.Rating <= 5 {
			rated++
			ratingSum += *item.Rating
			boost = ratingBoost[*item.Rating]
		}
		for _, g := range item.GenreIDs {
			scores.add(g, genres.Name(g), boost, 1)
			if recent {
				prefs.RecentGenres.Add(g)
			}
		}
	}

	prefs.TopGenres = scores.top(topGenreLimit)
	prefs.PreferredMediaType = classifyMediaType(movies, shows)
	if rated > 0 {
		prefs.AverageRating = float64(ratingSum) / float64(rated)
	}
	prefs.GenreCombos = genreCombos(items)

	s.logger.WithFields(logrus.Fields{
		"user_id":            userID,
		"total_interactions": prefs.TotalInteractions,
		"top_genres":         len(prefs.TopGenres),
		"preferred_type":     prefs.PreferredMediaType,
	}).Debug("Aggregated user preferences")

	return prefs, nil
}

// classifyMediaType leans to a type only with at least mediaTypeMinSample
// categorized items and a share strictly above mediaTypeLeanShare.
func classifyMediaType(movies, shows int) models.PreferredMediaType {
	total := movies + shows
	if total < mediaTypeMinSample {
		return models.PreferBalanced
	}
	switch {
	case float64(movies)/float64(total) > mediaTypeLeanShare:
		return models.PreferMovie
	case float64(shows)/float64(total) > mediaTypeLeanShare:
		return models.PreferTV
	default:
		return models.PreferBalanced
	}
}

// genreCombos counts genre pairs on highly rated (or watched, unrated) items.
func genreCombos(items []models.WatchlistItem) []models.GenreCombo {
	counts := make(map[[2]int]int)
	var order [][2]int
	for _, item := range items {
		liked := item.Rating != nil && *item.Rating >= genreComboMinRating
		if item.Rating == nil && item.Status == models.WatchStatusWatched {
			liked = true
		}
		if !liked || len(item.GenreIDs) < 2 {
			continue
		}
		ids := uniqueSorted(item.GenreIDs)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pair := [2]int{ids[i], ids[j]}
				if _, ok := counts[pair]; !ok {
					order = append(order, pair)
				}
				counts[pair]++
			}
		}
	}

	combos := []models.GenreCombo{}
	for _, pair := range order {
		if counts[pair] >= genreComboMinCount {
			combos = append(combos, models.GenreCombo{GenreIDs: []int{pair[0], pair[1]}, Count: counts[pair]})
		}
	}
	sort.SliceStable(combos, func(i, j int) bool { return combos[i].Count > combos[j].Count })
	if len(combos) > genreComboLimit {
		combos = combos[:genreComboLimit]
	}
	return combos
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// genreAccumulator keeps first-seen order so ties rank stably.
type genreAccumulator struct {
	order  []int
	scores map[int]*models.GenreScore
}

func newGenreAccumulator() *genreAccumulator {
	return &genreAccumulator{scores: make(map[int]*models.GenreScore)}
}

func (a *genreAccumulator) add(id int, name string, score float64, weight int) {
	gs, ok := a.scores[id]
	if !ok {
		gs = &models.GenreScore{ID: id, Name: name}
		a.scores[id] = gs
		a.order = append(a.order, id)
	}
	if gs.Name == "" {
		gs.Name = name
	}
	gs.Score += score
	gs.Weight += weight
}

func (a *genreAccumulator) top(n int) []models.GenreScore {
	out := make([]models.GenreScore, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.scores[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
