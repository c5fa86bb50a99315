package models

import (
	"time"

	"github.com/google/uuid"
)

// Fixed taxonomies for the weighted preference vectors. Every vector stored on a
// profile or DNA record uses exactly these keys.
var (
	ToneKeys       = []string{"dark", "light", "serious", "humorous", "suspenseful", "heartwarming"}
	ThemeKeys      = []string{"love", "survival", "justice", "identity", "power", "family", "friendship", "revenge"}
	SettingKeys    = []string{"urban", "rural", "space", "historical", "fantasy_world", "contemporary"}
	PacingKeys     = []string{"slow", "moderate", "fast"}
	ComplexityKeys = []string{"simple", "moderate", "complex"}
)

// WeightVector maps a taxonomy key to a 0-1 weight.
type WeightVector map[string]float64

// Dominant returns the highest weighted key, ties resolved by the order of keys.
func (v WeightVector) Dominant(keys []string) (string, float64) {
	best, bestWeight := "", 0.0
	for _, k := range keys {
		if w := v[k]; w > bestWeight {
			best, bestWeight = k, w
		}
	}
	return best, bestWeight
}

// TasteVectors groups the five taxonomy vectors shared by profiles and DNA records.
type TasteVectors struct {
	Tone       WeightVector `json:"tone"`
	Theme      WeightVector `json:"theme"`
	Setting    WeightVector `json:"setting"`
	Pacing     WeightVector `json:"pacing"`
	Complexity WeightVector `json:"complexity"`
}

func NewTasteVectors() TasteVectors {
	return TasteVectors{
		Tone:       zeroVector(ToneKeys),
		Theme:      zeroVector(ThemeKeys),
		Setting:    zeroVector(SettingKeys),
		Pacing:     zeroVector(PacingKeys),
		Complexity: zeroVector(ComplexityKeys),
	}
}

// Dimensions pairs each vector with its key set, in a fixed order.
func (t *TasteVectors) Dimensions() []struct {
	Keys   []string
	Vector *WeightVector
} {
	return []struct {
		Keys   []string
		Vector *WeightVector
	}{
		{ToneKeys, &t.Tone},
		{ThemeKeys, &t.Theme},
		{SettingKeys, &t.Setting},
		{PacingKeys, &t.Pacing},
		{ComplexityKeys, &t.Complexity},
	}
}

func zeroVector(keys []string) WeightVector {
	v := make(WeightVector, len(keys))
	for _, k := range keys {
		v[k] = 0
	}
	return v
}

// UserTasteProfile is the flattened row of user_taste_profiles. It is always
// written wholesale by a rebuild or by an incremental interaction update.
type UserTasteProfile struct {
	UserID uuid.UUID `json:"user_id" db:"user_id"`
	TasteVectors
	TopGenres              []string  `json:"top_genres" db:"top_genres"`
	TopDirectors           []string  `json:"top_directors" db:"top_directors"`
	TopActors              []string  `json:"top_actors" db:"top_actors"`
	TopKeywords            []string  `json:"top_keywords" db:"top_keywords"`
	WatchedCount           int       `json:"watched_count" db:"watched_count"`
	AvgRating              float64   `json:"avg_rating" db:"avg_rating"`
	TasteSignature         string    `json:"taste_signature" db:"taste_signature"`
	Confidence             float64   `json:"confidence" db:"confidence"`
	DiscoveryOpportunities []string  `json:"discovery_opportunities" db:"discovery_opportunities"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// ContentDNA is the per-title profile stored in content_dna, keyed by (media_type, tmdb_id).
type ContentDNA struct {
	TMDbID    int       `json:"tmdb_id" db:"tmdb_id"`
	MediaType MediaType `json:"media_type" db:"media_type"`
	TasteVectors
	GenreIDs   []int     `json:"genre_ids" db:"genre_ids"`
	Directors  []string  `json:"directors" db:"directors"`
	Actors     []string  `json:"actors" db:"actors"`
	Keywords   []string  `json:"keywords" db:"keywords"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

func (d ContentDNA) Ref() ContentRef {
	return ContentRef{TMDbID: d.TMDbID, MediaType: d.MediaType}
}
