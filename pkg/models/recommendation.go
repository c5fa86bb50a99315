package models

import (
	"time"

	"github.com/google/uuid"
)

// GenreGroup is a labeled row of recommendations sharing a genre or genre combination.
type GenreGroup struct {
	GenreIDs []int            `json:"genre_ids"`
	Label    string           `json:"label"`
	Items    []UnifiedContent `json:"items"`
}

// SmartRecommendations is always fully populated with non-nil slices so that an
// empty result renders as empty lists rather than nulls.
type SmartRecommendations struct {
	UserID          uuid.UUID        `json:"user_id"`
	ForYou          []UnifiedContent `json:"forYou"`
	BecauseYouLiked []GenreGroup     `json:"becauseYouLiked"`
	DeepCuts        []GenreGroup     `json:"deepCuts"`
	Discovery       []UnifiedContent `json:"discovery"`
	Trending        []UnifiedContent `json:"trending"`
	ColdStart       bool             `json:"coldStart"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

func NewSmartRecommendations(userID uuid.UUID) *SmartRecommendations {
	return &SmartRecommendations{
		UserID:          userID,
		ForYou:          []UnifiedContent{},
		BecauseYouLiked: []GenreGroup{},
		DeepCuts:        []GenreGroup{},
		Discovery:       []UnifiedContent{},
		Trending:        []UnifiedContent{},
		GeneratedAt:     time.Now(),
	}
}

// Items flattens every category in presentation order.
func (r *SmartRecommendations) Items() []UnifiedContent {
	out := make([]UnifiedContent, 0, len(r.ForYou)+len(r.Discovery)+len(r.Trending))
	out = append(out, r.ForYou...)
	for _, g := range r.BecauseYouLiked {
		out = append(out, g.Items...)
	}
	for _, g := range r.DeepCuts {
		out = append(out, g.Items...)
	}
	out = append(out, r.Discovery...)
	out = append(out, r.Trending...)
	return out
}

// FilteredContentResponse is returned by the partitioned cache read.
type FilteredContentResponse struct {
	UserID      uuid.UUID        `json:"user_id"`
	MediaType   string           `json:"media_type,omitempty"`
	Genre       string           `json:"genre,omitempty"`
	Items       []UnifiedContent `json:"items"`
	ToppedUp    bool             `json:"topped_up"`
	LastFetched time.Time        `json:"last_fetched"`
}

type CacheStats struct {
	Total       int            `json:"total"`
	ByMediaType map[string]int `json:"by_media_type"`
	ByGenre     map[string]int `json:"by_genre"`
	LastFetched time.Time      `json:"last_fetched"`
}
