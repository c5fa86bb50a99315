package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type WatchStatus string

const (
	WatchStatusWantToWatch WatchStatus = "want_to_watch"
	WatchStatusWatching    WatchStatus = "watching"
	WatchStatusWatched     WatchStatus = "watched"
)

// PreferredMediaType is the user's historical movie/tv lean.
type PreferredMediaType string

const (
	PreferMovie    PreferredMediaType = "movie"
	PreferTV       PreferredMediaType = "tv"
	PreferBalanced PreferredMediaType = "balanced"
)

// WatchlistItem is a row of watchlist_items joined with its content metadata.
// TMDbID is kept raw because legacy rows may hold null or non-numeric values.
type WatchlistItem struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    uuid.UUID   `json:"user_id" db:"user_id"`
	TMDbID    *string     `json:"tmdb_id" db:"tmdb_id"`
	MediaType MediaType   `json:"media_type" db:"media_type"`
	Status    WatchStatus `json:"status" db:"status"`
	Rating    *int        `json:"rating,omitempty" db:"rating"`
	Title     string      `json:"title" db:"title"`
	GenreIDs  []int       `json:"genre_ids" db:"genre_ids"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// NumericTMDbID parses the raw external id. Rows with a missing or malformed
// id are reported as not ok and must be skipped by batch operations.
func (w WatchlistItem) NumericTMDbID() (int, bool) {
	if w.TMDbID == nil {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(*w.TMDbID))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (w WatchlistItem) Ref() (ContentRef, bool) {
	id, ok := w.NumericTMDbID()
	if !ok || !w.MediaType.Valid() {
		return ContentRef{}, false
	}
	return ContentRef{TMDbID: id, MediaType: w.MediaType}, true
}

// GenreAffinity is a row of user_genre_affinity.
type GenreAffinity struct {
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	GenreID           int        `json:"genre_id" db:"genre_id"`
	GenreName         string     `json:"genre_name" db:"genre_name"`
	AffinityScore     float64    `json:"affinity_score" db:"affinity_score"`
	InteractionCount  int        `json:"interaction_count" db:"interaction_count"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty" db:"last_interaction_at"`
}

type GenreScore struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight int     `json:"weight"`
}

// GenreCombo is a multi-genre combination repeatedly seen on highly rated titles.
type GenreCombo struct {
	GenreIDs []int `json:"genre_ids"`
	Count    int   `json:"count"`
}

// UserPreferences is derived per request and never persisted.
type UserPreferences struct {
	UserID              uuid.UUID          `json:"user_id"`
	TopGenres           []GenreScore       `json:"top_genres"`
	PreferredMediaType  PreferredMediaType `json:"preferred_media_type"`
	AverageRating       float64            `json:"average_rating"`
	TotalInteractions   int                `json:"total_interactions"`
	RecentGenres        IntSet             `json:"recent_genres"`
	WatchlistContentIDs KeySet             `json:"watchlist_content_ids"`
	GenreCombos         []GenreCombo       `json:"genre_combos"`
}

func NewUserPreferences(userID uuid.UUID) *UserPreferences {
	return &UserPreferences{
		UserID:              userID,
		TopGenres:           []GenreScore{},
		PreferredMediaType:  PreferBalanced,
		RecentGenres:        IntSet{},
		WatchlistContentIDs: KeySet{},
		GenreCombos:         []GenreCombo{},
	}
}

// ColdStart reports whether there is no interaction history to personalize on.
func (p *UserPreferences) ColdStart() bool {
	return p == nil || p.TotalInteractions == 0
}
