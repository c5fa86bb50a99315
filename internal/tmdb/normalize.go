package tmdb

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/streamsense/recengine/pkg/models"
)

// Normalize maps a raw result row to UnifiedContent. The row's own media_type
// wins over fallback, which is needed for mixed trending results. ok is false
// for people, unknown types and non-positive ids.
func Normalize(raw RawContentItem, fallback models.MediaType) (models.UnifiedContent, bool) {
	mediaType := fallback
	if raw.MediaType != "" {
		mediaType = models.MediaType(raw.MediaType)
	}
	if !mediaType.Valid() || raw.ID <= 0 {
		return models.UnifiedContent{}, false
	}

	title, originalTitle, date := raw.Title, raw.OriginalTitle, raw.ReleaseDate
	if mediaType == models.MediaTypeTV || title == "" {
		if raw.Name != "" {
			title = raw.Name
		}
		if raw.OriginalName != "" {
			originalTitle = raw.OriginalName
		}
		if raw.FirstAirDate != "" {
			date = raw.FirstAirDate
		}
	}

	genreIDs := []int(raw.GenreIDs)
	if len(genreIDs) == 0 {
		genreIDs = []int(raw.Genres)
	}
	if genreIDs == nil {
		genreIDs = []int{}
	}

	title = cleanText(title)
	originalTitle = cleanText(originalTitle)
	if originalTitle == "" {
		originalTitle = title
	}

	return models.UnifiedContent{
		ID:            raw.ID,
		Type:          mediaType,
		Title:         title,
		OriginalTitle: originalTitle,
		PosterPath:    nonEmpty(raw.PosterPath),
		BackdropPath:  nonEmpty(raw.BackdropPath),
		Overview:      cleanText(raw.Overview),
		ReleaseDate:   nonEmptyString(date),
		Rating:        raw.VoteAverage,
		VoteCount:     raw.VoteCount,
		Popularity:    raw.Popularity,
		Language:      strings.ToLower(strings.TrimSpace(raw.OriginalLanguage)),
		OriginCountry: raw.OriginCountry,
		GenreIDs:      append([]int(nil), genreIDs...),
	}, true
}

// NormalizeAll normalizes rows in order, dropping rows Normalize rejects and
// repeated (type, id) identities.
func NormalizeAll(raws []RawContentItem, fallback models.MediaType) []models.UnifiedContent {
	out := make([]models.UnifiedContent, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		item, ok := Normalize(raw, fallback)
		if !ok {
			continue
		}
		if _, dup := seen[item.Key()]; dup {
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return out
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	return nonEmptyString(*s)
}

func nonEmptyString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
