package genres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamsense/recengine/pkg/models"
)

func TestName(t *testing.T) {
	assert.Equal(t, "Science Fiction", Name(ScienceFiction))
	assert.Equal(t, "Sci-Fi & Fantasy", Name(SciFiFantasy))
	assert.Equal(t, "Animation", Name(Animation))
	assert.Equal(t, "", Name(1))
	assert.False(t, Known(1))
}

func TestEquivalents(t *testing.T) {
	assert.Equal(t, []int{Adventure, Action, ActionAdventure}, Equivalents(Action))
	assert.Equal(t, []int{Fantasy, ScienceFiction, SciFiFantasy}, Equivalents(SciFiFantasy))
	assert.Equal(t, []int{War, WarPolitics}, Equivalents(WarPolitics))
	assert.Equal(t, []int{Drama}, Equivalents(Drama))
}

func TestCounterpart(t *testing.T) {
	id, ok := Counterpart(Action, models.MediaTypeTV)
	assert.True(t, ok)
	assert.Equal(t, ActionAdventure, id)

	id, ok = Counterpart(ActionAdventure, models.MediaTypeMovie)
	assert.True(t, ok)
	assert.Equal(t, Action, id)

	id, ok = Counterpart(Drama, models.MediaTypeTV)
	assert.True(t, ok)
	assert.Equal(t, Drama, id)

	_, ok = Counterpart(Horror, models.MediaTypeTV)
	assert.False(t, ok)
}

func TestAllIDs(t *testing.T) {
	movie := AllIDs(models.MediaTypeMovie)
	tv := AllIDs(models.MediaTypeTV)
	both := AllIDs("")

	assert.Len(t, movie, 19)
	assert.Len(t, tv, 16)
	assert.Contains(t, both, Horror)
	assert.Contains(t, both, Reality)
	assert.IsIncreasing(t, both)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Crime + Thriller", Label([]int{Crime, Thriller}))
	assert.Equal(t, "Drama", Label([]int{Drama, 1}))
}

func TestBucketsFor(t *testing.T) {
	tests := []struct {
		name    string
		content models.UnifiedContent
		want    []string
	}{
		{
			name:    "japanese animation is anime",
			content: models.UnifiedContent{GenreIDs: []int{Animation, Action}, Language: "ja"},
			want:    []string{BucketAction, BucketAnime},
		},
		{
			name:    "origin country alone marks anime",
			content: models.UnifiedContent{GenreIDs: []int{Animation}, Language: "en", OriginCountry: []string{"JP"}},
			want:    []string{BucketAnime},
		},
		{
			name:    "western animation",
			content: models.UnifiedContent{GenreIDs: []int{Animation, Family}, Language: "en"},
			want:    []string{BucketAnimation, BucketFamily},
		},
		{
			name:    "japanese live action is not anime",
			content: models.UnifiedContent{GenreIDs: []int{Drama}, Language: "ja"},
			want:    []string{BucketDrama},
		},
		{
			name:    "tv combined genre fans out",
			content: models.UnifiedContent{GenreIDs: []int{SciFiFantasy}},
			want:    []string{BucketSciFi, BucketFantasy},
		},
		{
			name:    "unmapped genre",
			content: models.UnifiedContent{GenreIDs: []int{Western}},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketsFor(tt.content))
		})
	}
}

func TestBucketIDs(t *testing.T) {
	assert.Equal(t, []int{Action, ActionAdventure}, BucketIDs("action"))
	assert.Nil(t, BucketIDs("Polka"))

	name, ok := CanonicalBucket(" sci-fi ")
	assert.True(t, ok)
	assert.Equal(t, BucketSciFi, name)
}
