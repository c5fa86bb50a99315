package services

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource supplies the randomness used for page selection and the
// variety component of ranking. Seed it for deterministic tests.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a goroutine-safe source. A zero seed uses the clock.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // variety, not security
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// randomPage picks a page in [1, maxPage].
func randomPage(r RandomSource, maxPage int) int {
	if maxPage <= 1 {
		return 1
	}
	return 1 + r.Intn(maxPage)
}

// sample returns up to n elements of values in random order without modifying values.
func sample[T any](r RandomSource, values []T, n int) []T {
	pool := append([]T(nil), values...)
	for i := len(pool) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}
