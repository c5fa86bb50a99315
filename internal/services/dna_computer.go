package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

const (
	dnaTopActors   = 5
	dnaTopKeywords = 15
	genreSignal    = 1.0
	keywordSignal  = 0.6
	overviewSignal = 0.3
)

// signal adds weight to one key of one dimension.
type signal struct {
	dim    string
	key    string
	weight float64
}

const (
	dimTone       = "tone"
	dimTheme      = "theme"
	dimSetting    = "setting"
	dimPacing     = "pacing"
	dimComplexity = "complexity"
)

// genreSignals maps movie and TV genre ids to taxonomy weights.
var genreSignals = map[int][]signal{
	28:    {{dimPacing, "fast", 1}, {dimTone, "suspenseful", 0.5}, {dimTheme, "power", 0.4}},
	10759: {{dimPacing, "fast", 1}, {dimTone, "suspenseful", 0.5}, {dimTheme, "survival", 0.4}},
	12:    {{dimTheme, "survival", 0.6}, {dimPacing, "fast", 0.5}, {dimTone, "light", 0.3}},
	16:    {{dimTone, "light", 0.6}, {dimSetting, "fantasy_world", 0.4}, {dimComplexity, "simple", 0.4}},
	35:    {{dimTone, "humorous", 1}, {dimTone, "light", 0.5}, {dimComplexity, "simple", 0.3}},
	80:    {{dimTheme, "justice", 1}, {dimTone, "dark", 0.6}, {dimSetting, "urban", 0.6}},
	99:    {{dimTone, "serious", 0.8}, {dimSetting, "contemporary", 0.6}, {dimPacing, "slow", 0.5}},
	18:    {{dimTone, "serious", 1}, {dimPacing, "slow", 0.5}, {dimTheme, "identity", 0.4}},
	10751: {{dimTheme, "family", 1}, {dimTone, "heartwarming", 0.8}, {dimComplexity, "simple", 0.5}},
	14:    {{dimSetting, "fantasy_world", 1}, {dimTheme, "power", 0.4}},
	36:    {{dimSetting, "historical", 1}, {dimTone, "serious", 0.5}, {dimComplexity, "complex", 0.3}},
	27:    {{dimTone, "dark", 1}, {dimTone, "suspenseful", 0.8}, {dimTheme, "survival", 0.6}},
	10402: {{dimTone, "heartwarming", 0.5}, {dimTheme, "identity", 0.4}},
	9648:  {{dimTone, "suspenseful", 1}, {dimComplexity, "complex", 0.8}},
	10749: {{dimTheme, "love", 1}, {dimTone, "heartwarming", 0.6}},
	878:   {{dimSetting, "space", 0.8}, {dimComplexity, "complex", 0.6}},
	10765: {{dimSetting, "space", 0.5}, {dimSetting, "fantasy_world", 0.5}, {dimComplexity, "complex", 0.5}},
	53:    {{dimTone, "suspenseful", 1}, {dimPacing, "fast", 0.6}, {dimTone, "dark", 0.4}},
	10752: {{dimSetting, "historical", 0.8}, {dimTheme, "survival", 0.8}, {dimTone, "serious", 0.6}},
	10768: {{dimSetting, "historical", 0.6}, {dimTheme, "power", 0.6}, {dimTone, "serious", 0.6}},
	37:    {{dimSetting, "rural", 1}, {dimTheme, "justice", 0.5}, {dimSetting, "historical", 0.4}},
	10762: {{dimTone, "light", 0.8}, {dimComplexity, "simple", 1}, {dimTheme, "friendship", 0.5}},
	10764: {{dimSetting, "contemporary", 1}, {dimComplexity, "simple", 0.6}},
	10767: {{dimSetting, "contemporary", 1}, {dimTone, "humorous", 0.5}},
	10763: {{dimSetting, "contemporary", 1}, {dimTone, "serious", 0.6}},
	10766: {{dimTheme, "love", 0.6}, {dimTheme, "family", 0.6}, {dimPacing, "slow", 0.4}},
}

// keywordSignals is matched by substring against lowercased keywords and the overview.
var keywordSignals = []struct {
	term    string
	signals []signal
}{
	{"revenge", []signal{{dimTheme, "revenge", 1}, {dimTone, "dark", 0.3}}},
	{"vengeance", []signal{{dimTheme, "revenge", 1}}},
	{"love", []signal{{dimTheme, "love", 0.8}}},
	{"romance", []signal{{dimTheme, "love", 0.8}}},
	{"friendship", []signal{{dimTheme, "friendship", 1}}},
	{"friends", []signal{{dimTheme, "friendship", 0.6}}},
	{"family", []signal{{dimTheme, "family", 0.8}}},
	{"father", []signal{{dimTheme, "family", 0.5}}},
	{"mother", []signal{{dimTheme, "family", 0.5}}},
	{"survival", []signal{{dimTheme, "survival", 1}}},
	{"post-apocalyptic", []signal{{dimTheme, "survival", 0.8}, {dimTone, "dark", 0.5}}},
	{"dystopia", []signal{{dimTheme, "power", 0.6}, {dimTone, "dark", 0.6}}},
	{"murder", []signal{{dimTheme, "justice", 0.6}, {dimTone, "dark", 0.5}}},
	{"detective", []signal{{dimTheme, "justice", 0.8}, {dimComplexity, "complex", 0.4}}},
	{"police", []signal{{dimTheme, "justice", 0.6}, {dimSetting, "urban", 0.4}}},
	{"corruption", []signal{{dimTheme, "power", 0.8}, {dimTheme, "justice", 0.4}}},
	{"politics", []signal{{dimTheme, "power", 0.8}, {dimComplexity, "complex", 0.5}}},
	{"king", []signal{{dimTheme, "power", 0.6}}},
	{"identity", []signal{{dimTheme, "identity", 1}}},
	{"coming of age", []signal{{dimTheme, "identity", 1}, {dimTone, "heartwarming", 0.4}}},
	{"self-discovery", []signal{{dimTheme, "identity", 1}}},
	{"space", []signal{{dimSetting, "space", 1}}},
	{"alien", []signal{{dimSetting, "space", 0.6}}},
	{"magic", []signal{{dimSetting, "fantasy_world", 0.8}}},
	{"dragon", []signal{{dimSetting, "fantasy_world", 0.8}}},
	{"new york", []signal{{dimSetting, "urban", 0.8}}},
	{"city", []signal{{dimSetting, "urban", 0.5}}},
	{"small town", []signal{{dimSetting, "rural", 0.8}}},
	{"village", []signal{{dimSetting, "rural", 0.6}}},
	{"farm", []signal{{dimSetting, "rural", 0.6}}},
	{"period piece", []signal{{dimSetting, "historical", 1}}},
	{"based on true story", []signal{{dimSetting, "historical", 0.4}, {dimTone, "serious", 0.5}}},
	{"nonlinear timeline", []signal{{dimComplexity, "complex", 1}}},
	{"time travel", []signal{{dimComplexity, "complex", 0.8}}},
	{"twist", []signal{{dimComplexity, "complex", 0.6}, {dimTone, "suspenseful", 0.4}}},
	{"psychological", []signal{{dimComplexity, "complex", 0.8}, {dimTone, "dark", 0.4}}},
	{"satire", []signal{{dimTone, "humorous", 0.8}, {dimComplexity, "complex", 0.3}}},
	{"parody", []signal{{dimTone, "humorous", 1}}},
	{"feel-good", []signal{{dimTone, "heartwarming", 1}, {dimTone, "light", 0.5}}},
	{"heartwarming", []signal{{dimTone, "heartwarming", 1}}},
	{"tragedy", []signal{{dimTone, "serious", 0.8}, {dimTone, "dark", 0.4}}},
	{"serial killer", []signal{{dimTone, "dark", 1}, {dimTone, "suspenseful", 0.6}}},
	{"chase", []signal{{dimPacing, "fast", 0.6}}},
	{"heist", []signal{{dimPacing, "fast", 0.6}, {dimComplexity, "complex", 0.4}}},
	{"slow burn", []signal{{dimPacing, "slow", 1}}},
}

// DNAComputer derives a content DNA record from title details using genre and
// keyword lookup tables.
type DNAComputer struct {
	content ContentAPI
	logger  *logrus.Logger
	now     func() time.Time
}

func NewDNAComputer(content ContentAPI, logger *logrus.Logger) *DNAComputer {
	return &DNAComputer{content: content, logger: logger, now: time.Now}
}

// Compute fetches details for the title and derives its DNA.
func (c *DNAComputer) Compute(ctx context.Context, ref models.ContentRef) (*models.ContentDNA, error) {
	details, err := c.content.Details(ctx, ref.MediaType, ref.TMDbID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch details for %s: %w", ref.Key(), err)
	}
	dna := DeriveDNA(ref, details)
	dna.ComputedAt = c.now()

	c.logger.WithFields(logrus.Fields{
		"content":  ref.Key(),
		"keywords": len(dna.Keywords),
	}).Debug("Derived content DNA")
	return dna, nil
}

// DeriveDNA is the pure part of Compute. Every vector is normalized to sum to 1;
// a dimension with no signal falls back to its neutral key.
func DeriveDNA(ref models.ContentRef, d *tmdb.Details) *models.ContentDNA {
	dna := &models.ContentDNA{
		TMDbID:       ref.TMDbID,
		MediaType:    ref.MediaType,
		TasteVectors: models.NewTasteVectors(),
		GenreIDs:     append([]int{}, d.Genres...),
		Directors:    nonNil(d.Directors()),
		Actors:       d.TopCast(dnaTopActors),
		Keywords:     d.KeywordNames(),
	}
	if len(dna.GenreIDs) == 0 {
		dna.GenreIDs = append([]int{}, d.GenreIDs...)
	}
	if len(dna.Keywords) > dnaTopKeywords {
		dna.Keywords = dna.Keywords[:dnaTopKeywords]
	}

	vectors := map[string]models.WeightVector{
		dimTone:       dna.Tone,
		dimTheme:      dna.Theme,
		dimSetting:    dna.Setting,
		dimPacing:     dna.Pacing,
		dimComplexity: dna.Complexity,
	}
	apply := func(signals []signal, scale float64) {
		for _, s := range signals {
			vectors[s.dim][s.key] += s.weight * scale
		}
	}

	for _, id := range dna.GenreIDs {
		apply(genreSignals[id], genreSignal)
	}
	for _, kw := range d.KeywordNames() {
		kw = strings.ToLower(kw)
		for _, entry := range keywordSignals {
			if strings.Contains(kw, entry.term) {
				apply(entry.signals, keywordSignal)
			}
		}
	}
	overview := strings.ToLower(d.Overview + " " + d.Tagline)
	for _, entry := range keywordSignals {
		if strings.Contains(overview, entry.term) {
			apply(entry.signals, overviewSignal)
		}
	}
	apply(pacingFromRuntime(d), 1)
	apply(complexityFromLength(d), 0.5)

	neutral := map[string]string{
		dimTone:       "serious",
		dimTheme:      "identity",
		dimSetting:    "contemporary",
		dimPacing:     "moderate",
		dimComplexity: "moderate",
	}
	names := []string{dimTone, dimTheme, dimSetting, dimPacing, dimComplexity}
	for i, dim := range dna.TasteVectors.Dimensions() {
		v := *dim.Vector
		normalizeVector(v, dim.Keys)
		if _, w := v.Dominant(dim.Keys); w == 0 {
			v[neutral[names[i]]] = 1
		}
	}
	return dna
}

// pacingFromRuntime reads long runtimes as slow and short ones as fast.
func pacingFromRuntime(d *tmdb.Details) []signal {
	runtime := d.Runtime
	if runtime == 0 && len(d.EpisodeRunTime) > 0 {
		runtime = d.EpisodeRunTime[0]
	}
	switch {
	case runtime == 0:
		return nil
	case d.NumberOfEpisodes == 0 && runtime >= 150, d.NumberOfEpisodes > 0 && runtime >= 55:
		return []signal{{dimPacing, "slow", 0.6}}
	case d.NumberOfEpisodes == 0 && runtime <= 95, d.NumberOfEpisodes > 0 && runtime <= 25:
		return []signal{{dimPacing, "fast", 0.6}}
	default:
		return []signal{{dimPacing, "moderate", 0.6}}
	}
}

// complexityFromLength treats long-running series and sprawling films as more complex.
func complexityFromLength(d *tmdb.Details) []signal {
	switch {
	case d.NumberOfSeasons >= 4 || d.Runtime >= 150:
		return []signal{{dimComplexity, "complex", 1}}
	case d.NumberOfSeasons == 1 || (d.Runtime > 0 && d.Runtime <= 95):
		return []signal{{dimComplexity, "simple", 1}}
	case d.NumberOfSeasons > 0 || d.Runtime > 0:
		return []signal{{dimComplexity, "moderate", 1}}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
