package tmdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsense/recengine/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestNormalize_Movie(t *testing.T) {
	raw := RawContentItem{
		ID:               603,
		Title:            " The Matrix ",
		OriginalTitle:    "The Matrix",
		ReleaseDate:      "1999-03-30",
		PosterPath:       strPtr("/matrix.jpg"),
		BackdropPath:     strPtr(""),
		VoteAverage:      8.2,
		VoteCount:        25000,
		OriginalLanguage: "EN",
		GenreIDs:         GenreList{28, 878},
	}

	item, ok := Normalize(raw, models.MediaTypeMovie)

	require.True(t, ok)
	assert.Equal(t, "The Matrix", item.Title)
	assert.Equal(t, models.MediaTypeMovie, item.Type)
	assert.Equal(t, "en", item.Language)
	assert.Nil(t, item.BackdropPath)
	assert.Equal(t, "/matrix.jpg", *item.PosterPath)
	assert.Equal(t, []int{28, 878}, item.GenreIDs)
}

func TestNormalize_TV(t *testing.T) {
	raw := RawContentItem{
		ID:           1396,
		Name:         "Breaking Bad",
		OriginalName: "Breaking Bad",
		FirstAirDate: "",
		Genres:       GenreList{18, 80},
	}

	item, ok := Normalize(raw, models.MediaTypeTV)

	require.True(t, ok)
	assert.Equal(t, "Breaking Bad", item.Title)
	assert.Nil(t, item.ReleaseDate)
	assert.Nil(t, item.PosterPath)
	assert.Equal(t, []int{18, 80}, item.GenreIDs)
	assert.False(t, item.Presentable())
}

func TestNormalize_Rejects(t *testing.T) {
	_, ok := Normalize(RawContentItem{ID: 1, MediaType: "person"}, models.MediaTypeMovie)
	assert.False(t, ok)

	_, ok = Normalize(RawContentItem{ID: -3, Title: "x"}, models.MediaTypeMovie)
	assert.False(t, ok)

	_, ok = Normalize(RawContentItem{ID: 3, Title: "x"}, "")
	assert.False(t, ok)
}

func TestNormalize_NFC(t *testing.T) {
	item, ok := Normalize(RawContentItem{ID: 194, Title: "Ame\u0301lie"}, models.MediaTypeMovie)

	require.True(t, ok)
	assert.Equal(t, "Am\u00e9lie", item.Title)
	assert.Equal(t, item.Title, item.OriginalTitle)
}

func TestGenreList_Unmarshal(t *testing.T) {
	var ids GenreList
	require.NoError(t, json.Unmarshal([]byte(`[18, 80]`), &ids))
	assert.Equal(t, GenreList{18, 80}, ids)

	var objects GenreList
	require.NoError(t, json.Unmarshal([]byte(`[{"id":35,"name":"Comedy"}]`), &objects))
	assert.Equal(t, GenreList{35}, objects)

	var bad GenreList
	assert.Error(t, json.Unmarshal([]byte(`"drama"`), &bad))
}
