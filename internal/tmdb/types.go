package tmdb

import (
	"encoding/json"
	"fmt"
)

// RawContentItem is a result row as returned by discover, trending and search.
// Movie rows use title/release_date, TV rows use name/first_air_date, and
// trending rows carry an explicit media_type.
type RawContentItem struct {
	ID               int       `json:"id"`
	MediaType        string    `json:"media_type,omitempty"`
	Title            string    `json:"title,omitempty"`
	OriginalTitle    string    `json:"original_title,omitempty"`
	ReleaseDate      string    `json:"release_date,omitempty"`
	Name             string    `json:"name,omitempty"`
	OriginalName     string    `json:"original_name,omitempty"`
	FirstAirDate     string    `json:"first_air_date,omitempty"`
	PosterPath       *string   `json:"poster_path"`
	BackdropPath     *string   `json:"backdrop_path"`
	Overview         string    `json:"overview"`
	VoteAverage      float64   `json:"vote_average"`
	VoteCount        int       `json:"vote_count"`
	Popularity       float64   `json:"popularity"`
	OriginalLanguage string    `json:"original_language"`
	OriginCountry    []string  `json:"origin_country,omitempty"`
	GenreIDs         GenreList `json:"genre_ids,omitempty"`
	Genres           GenreList `json:"genres,omitempty"`
}

// GenreList decodes either a list of ids or a list of {id, name} objects.
type GenreList []int

func (g *GenreList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = nil
		return nil
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err == nil {
		*g = ids
		return nil
	}
	var objects []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return fmt.Errorf("failed to decode genre list: %w", err)
	}
	out := make([]int, 0, len(objects))
	for _, o := range objects {
		out = append(out, o.ID)
	}
	*g = out
	return nil
}

type pagedResponse struct {
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
	Results      []RawContentItem `json:"results"`
}

// Page is one page of normalized results.
type Page struct {
	Page       int
	TotalPages int
	Raw        []RawContentItem
}

type Keyword struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

type CrewMember struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// Details is the subset of the movie/tv details payload used to derive
// content DNA. Requested with append_to_response=keywords,credits.
type Details struct {
	RawContentItem
	Tagline          string `json:"tagline"`
	Runtime          int    `json:"runtime"`
	EpisodeRunTime   []int  `json:"episode_run_time"`
	NumberOfSeasons  int    `json:"number_of_seasons"`
	NumberOfEpisodes int    `json:"number_of_episodes"`
	CreatedBy        []struct {
		Name string `json:"name"`
	} `json:"created_by"`
	Keywords struct {
		// movies
		Keywords []Keyword `json:"keywords"`
		// tv
		Results []Keyword `json:"results"`
	} `json:"keywords"`
	Credits struct {
		Cast []CastMember `json:"cast"`
		Crew []CrewMember `json:"crew"`
	} `json:"credits"`
}

// KeywordNames returns the keyword names regardless of media type.
func (d *Details) KeywordNames() []string {
	list := d.Keywords.Keywords
	if len(list) == 0 {
		list = d.Keywords.Results
	}
	out := make([]string, 0, len(list))
	for _, k := range list {
		out = append(out, k.Name)
	}
	return out
}

// Directors returns directors for movies and creators for TV.
func (d *Details) Directors() []string {
	var out []string
	for _, c := range d.Credits.Crew {
		if c.Job == "Director" {
			out = append(out, c.Name)
		}
	}
	for _, c := range d.CreatedBy {
		out = append(out, c.Name)
	}
	return out
}

// TopCast returns up to n cast names in billing order.
func (d *Details) TopCast(n int) []string {
	out := make([]string, 0, n)
	for _, c := range d.Credits.Cast {
		if len(out) == n {
			break
		}
		out = append(out, c.Name)
	}
	return out
}
