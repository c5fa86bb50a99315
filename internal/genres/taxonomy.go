package genres

import (
	"strings"

	"github.com/streamsense/recengine/pkg/models"
)

// Browse buckets used to partition the recommendation cache.
const (
	BucketAction      = "Action"
	BucketComedy      = "Comedy"
	BucketDrama       = "Drama"
	BucketHorror      = "Horror"
	BucketSciFi       = "Sci-Fi"
	BucketRomance     = "Romance"
	BucketThriller    = "Thriller"
	BucketDocumentary = "Documentary"
	BucketAnimation   = "Animation"
	BucketAnime       = "Anime"
	BucketCrime       = "Crime"
	BucketFantasy     = "Fantasy"
	BucketFamily      = "Family"
	BucketMystery     = "Mystery"
)

// Buckets lists the taxonomy in display order.
var Buckets = []string{
	BucketAction, BucketComedy, BucketDrama, BucketHorror, BucketSciFi, BucketRomance,
	BucketThriller, BucketDocumentary, BucketAnimation, BucketAnime, BucketCrime,
	BucketFantasy, BucketFamily, BucketMystery,
}

var bucketIDs = map[string][]int{
	BucketAction:      {Action, ActionAdventure},
	BucketComedy:      {Comedy},
	BucketDrama:       {Drama},
	BucketHorror:      {Horror},
	BucketSciFi:       {ScienceFiction, SciFiFantasy},
	BucketRomance:     {Romance},
	BucketThriller:    {Thriller},
	BucketDocumentary: {Documentary},
	BucketAnimation:   {Animation},
	BucketAnime:       {Animation},
	BucketCrime:       {Crime},
	BucketFantasy:     {Fantasy, SciFiFantasy},
	BucketFamily:      {Family, Kids},
	BucketMystery:     {Mystery},
}

// BucketIDs returns the genre ids mapped to a bucket. Lookup is case-insensitive.
func BucketIDs(bucket string) []int {
	name, ok := CanonicalBucket(bucket)
	if !ok {
		return nil
	}
	return append([]int(nil), bucketIDs[name]...)
}

// CanonicalBucket resolves a user supplied bucket name to its display form.
func CanonicalBucket(bucket string) (string, bool) {
	for _, b := range Buckets {
		if strings.EqualFold(b, strings.TrimSpace(bucket)) {
			return b, true
		}
	}
	return "", false
}

// IsJapaneseOrigin reports the language/country signal separating anime from
// western animation. Both carry the same Animation genre id.
func IsJapaneseOrigin(c models.UnifiedContent) bool {
	if strings.EqualFold(c.Language, "ja") {
		return true
	}
	for _, country := range c.OriginCountry {
		if strings.EqualFold(country, "JP") {
			return true
		}
	}
	return false
}

// BucketsFor returns every bucket the item belongs to, in taxonomy order.
// The anime/animation split is decided before generic id matching so an
// animated title lands in exactly one of the two.
func BucketsFor(c models.UnifiedContent) []string {
	var out []string
	animated := c.HasGenre(Animation)
	for _, bucket := range Buckets {
		switch bucket {
		case BucketAnime:
			if animated && IsJapaneseOrigin(c) {
				out = append(out, bucket)
			}
			continue
		case BucketAnimation:
			if animated && !IsJapaneseOrigin(c) {
				out = append(out, bucket)
			}
			continue
		}
		for _, id := range bucketIDs[bucket] {
			if c.HasGenre(id) {
				out = append(out, bucket)
				break
			}
		}
	}
	return out
}

// InBucket reports whether the item belongs to the bucket under BucketsFor.
func InBucket(c models.UnifiedContent, bucket string) bool {
	for _, b := range BucketsFor(c) {
		if b == bucket {
			return true
		}
	}
	return false
}
