// Package genres holds the static content API genre tables, the movie/TV
// alias groups and the browse taxonomy used to partition cached content.
package genres

import (
	"sort"
	"strings"

	"github.com/streamsense/recengine/pkg/models"
)

const (
	Action         = 28
	Adventure      = 12
	Animation      = 16
	Comedy         = 35
	Crime          = 80
	Documentary    = 99
	Drama          = 18
	Family         = 10751
	Fantasy        = 14
	History        = 36
	Horror         = 27
	Music          = 10402
	Mystery        = 9648
	Romance        = 10749
	ScienceFiction = 878
	TVMovie        = 10770
	Thriller       = 53
	War            = 10752
	Western        = 37

	ActionAdventure = 10759
	Kids            = 10762
	News            = 10763
	Reality         = 10764
	SciFiFantasy    = 10765
	Soap            = 10766
	Talk            = 10767
	WarPolitics     = 10768
)

var movieGenres = map[int]string{
	Action:         "Action",
	Adventure:      "Adventure",
	Animation:      "Animation",
	Comedy:         "Comedy",
	Crime:          "Crime",
	Documentary:    "Documentary",
	Drama:          "Drama",
	Family:         "Family",
	Fantasy:        "Fantasy",
	History:        "History",
	Horror:         "Horror",
	Music:          "Music",
	Mystery:        "Mystery",
	Romance:        "Romance",
	ScienceFiction: "Science Fiction",
	TVMovie:        "TV Movie",
	Thriller:       "Thriller",
	War:            "War",
	Western:        "Western",
}

var tvGenres = map[int]string{
	ActionAdventure: "Action & Adventure",
	Animation:       "Animation",
	Comedy:          "Comedy",
	Crime:           "Crime",
	Documentary:     "Documentary",
	Drama:           "Drama",
	Family:          "Family",
	Kids:            "Kids",
	Mystery:         "Mystery",
	News:            "News",
	Reality:         "Reality",
	SciFiFantasy:    "Sci-Fi & Fantasy",
	Soap:            "Soap",
	Talk:            "Talk",
	WarPolitics:     "War & Politics",
	Western:         "Western",
}

// aliasGroups link movie genres to the combined TV genres that cover them.
var aliasGroups = [][]int{
	{Action, Adventure, ActionAdventure},
	{ScienceFiction, Fantasy, SciFiFantasy},
	{War, WarPolitics},
	{Family, Kids},
}

// Name returns the display name of a genre id from either table, or "" when unknown.
func Name(id int) string {
	if name, ok := movieGenres[id]; ok {
		return name
	}
	return tvGenres[id]
}

// Known reports whether id belongs to the movie or TV table.
func Known(id int) bool {
	return Name(id) != ""
}

// Equivalents returns id together with every alias of it, in ascending order.
func Equivalents(id int) []int {
	set := map[int]struct{}{id: {}}
	for _, group := range aliasGroups {
		for _, g := range group {
			if g == id {
				for _, alias := range group {
					set[alias] = struct{}{}
				}
				break
			}
		}
	}
	out := make([]int, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// Counterpart returns the single id that stands for id in the media type's
// table: id itself when valid there, otherwise the first alias in group order.
func Counterpart(id int, mediaType models.MediaType) (int, bool) {
	table := movieGenres
	if mediaType == models.MediaTypeTV {
		table = tvGenres
	}
	if _, ok := table[id]; ok {
		return id, true
	}
	for _, group := range aliasGroups {
		for _, g := range group {
			if g != id {
				continue
			}
			for _, alias := range group {
				if _, ok := table[alias]; ok {
					return alias, true
				}
			}
		}
	}
	return 0, false
}

// AllIDs returns every genre id of the media type in ascending order. An empty
// media type returns the union of both tables.
func AllIDs(mediaType models.MediaType) []int {
	set := map[int]struct{}{}
	if mediaType != models.MediaTypeTV {
		for id := range movieGenres {
			set[id] = struct{}{}
		}
	}
	if mediaType != models.MediaTypeMovie {
		for id := range tvGenres {
			set[id] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Label joins genre names for display, e.g. "Crime + Thriller".
func Label(ids []int) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name := Name(id); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, " + ")
}
