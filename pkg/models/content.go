package models

import (
	"fmt"
	"strings"
)

type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// MediaTypes lists the media types the content API can be queried for.
var MediaTypes = []MediaType{MediaTypeMovie, MediaTypeTV}

func (m MediaType) Valid() bool {
	return m == MediaTypeMovie || m == MediaTypeTV
}

// ParseMediaType accepts "movie" and "tv" (case-insensitive). An empty string
// is reported as not ok so callers can treat it as "both".
func ParseMediaType(s string) (MediaType, bool) {
	mt := MediaType(strings.ToLower(strings.TrimSpace(s)))
	return mt, mt.Valid()
}

// UnifiedContent is the normalized shape of a movie or TV title, regardless of
// which content API endpoint produced it.
type UnifiedContent struct {
	ID            int       `json:"id"`
	Type          MediaType `json:"type"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"originalTitle"`
	PosterPath    *string   `json:"posterPath"`
	BackdropPath  *string   `json:"backdropPath"`
	Overview      string    `json:"overview"`
	ReleaseDate   *string   `json:"releaseDate"`
	Rating        float64   `json:"rating"`
	VoteCount     int       `json:"voteCount"`
	Popularity    float64   `json:"popularity"`
	Language      string    `json:"language"`
	OriginCountry []string  `json:"originCountry,omitempty"`
	GenreIDs      []int     `json:"genre_ids"`
}

// ContentKey builds the "{type}-{id}" identity used for exclusion and dedup.
// Movie and TV identifier spaces overlap, so the id alone is not an identity.
func ContentKey(mediaType MediaType, id int) string {
	return fmt.Sprintf("%s-%d", mediaType, id)
}

func (c UnifiedContent) Key() string {
	return ContentKey(c.Type, c.ID)
}

func (c UnifiedContent) HasGenre(id int) bool {
	for _, g := range c.GenreIDs {
		if g == id {
			return true
		}
	}
	return false
}

// Presentable reports whether the item has both a poster and a title.
func (c UnifiedContent) Presentable() bool {
	return c.PosterPath != nil && *c.PosterPath != "" && strings.TrimSpace(c.Title) != ""
}

// ContentRef identifies a title without carrying its metadata.
type ContentRef struct {
	TMDbID    int       `json:"tmdb_id"`
	MediaType MediaType `json:"media_type"`
}

func (r ContentRef) Key() string {
	return ContentKey(r.MediaType, r.TMDbID)
}
