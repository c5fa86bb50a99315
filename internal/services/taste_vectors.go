package services

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/floats"

	"github.com/streamsense/recengine/pkg/models"
)

// normalizeVector rescales v so its weights over keys sum to 1. An all-zero
// vector is left as is.
func normalizeVector(v models.WeightVector, keys []string) {
	values := make([]float64, len(keys))
	for i, k := range keys {
		values[i] = v[k]
	}
	sum := floats.Sum(values)
	if sum <= 0 {
		for _, k := range keys {
			v[k] = 0
		}
		return
	}
	floats.Scale(1/sum, values)
	for i, k := range keys {
		v[k] = values[i]
	}
}

// addScaled accumulates weight*src into dst over keys.
func addScaled(dst, src models.WeightVector, keys []string, weight float64) {
	a := make([]float64, len(keys))
	b := make([]float64, len(keys))
	for i, k := range keys {
		a[i] = dst[k]
		b[i] = src[k]
	}
	floats.AddScaled(a, weight, b)
	for i, k := range keys {
		dst[k] = a[i]
	}
}

// decayVector multiplies every weight by factor.
func decayVector(v models.WeightVector, keys []string, factor float64) {
	for _, k := range keys {
		v[k] *= factor
	}
}

func humanize(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// tasteSignature labels a profile by its dominant tone and theme, e.g.
// "Dark Justice".
func tasteSignature(v *models.TasteVectors) string {
	tone, _ := v.Tone.Dominant(models.ToneKeys)
	theme, _ := v.Theme.Dominant(models.ThemeKeys)
	var parts []string
	if tone != "" {
		parts = append(parts, humanize(tone))
	}
	if theme != "" {
		parts = append(parts, humanize(theme))
	}
	if len(parts) == 0 {
		return "Still Discovering"
	}
	// Casers are stateful, so one per call.
	return cases.Title(language.English).String(strings.Join(parts, " "))
}

const discoveryWeightCeiling = 0.05

// discoveryOpportunities phrases the least explored tone, theme and setting as
// suggestions. A dimension with nothing below the ceiling yields nothing.
func discoveryOpportunities(v *models.TasteVectors) []string {
	out := []string{}
	if k, ok := weakest(v.Tone, models.ToneKeys); ok {
		out = append(out, "Try something more "+humanize(k))
	}
	if k, ok := weakest(v.Theme, models.ThemeKeys); ok {
		out = append(out, "Explore stories about "+humanize(k))
	}
	if k, ok := weakest(v.Setting, models.SettingKeys); ok {
		out = append(out, "Visit a "+humanize(k)+" setting")
	}
	return out
}

func weakest(v models.WeightVector, keys []string) (string, bool) {
	best, bestWeight := "", 2.0
	for _, k := range keys {
		if w := v[k]; w < bestWeight {
			best, bestWeight = k, w
		}
	}
	return best, best != "" && bestWeight <= discoveryWeightCeiling
}

// counter ranks names by accumulated weight, ties by first appearance.
type counter struct {
	order  []string
	weight map[string]float64
}

func newCounter() *counter {
	return &counter{weight: make(map[string]float64)}
}

func (c *counter) add(name string, w float64) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, ok := c.weight[name]; !ok {
		c.order = append(c.order, name)
	}
	c.weight[name] += w
}

func (c *counter) top(n int) []string {
	names := append([]string(nil), c.order...)
	sort.SliceStable(names, func(i, j int) bool { return c.weight[names[i]] > c.weight[names[j]] })
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// mergeTop appends unseen names to an existing ranked list, capped at n.
func mergeTop(existing, incoming []string, n int) []string {
	out := append([]string{}, existing...)
	seen := make(map[string]struct{}, len(out))
	for _, name := range out {
		seen[name] = struct{}{}
	}
	for _, name := range incoming {
		if len(out) >= n {
			break
		}
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
