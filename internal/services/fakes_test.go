package services

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/streamsense/recengine/internal/repository"
	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

// makeContent builds a presentable item with enough votes to pass every floor.
func makeContent(mt models.MediaType, id int, genreIDs ...int) models.UnifiedContent {
	return models.UnifiedContent{
		ID:         id,
		Type:       mt,
		Title:      "Title " + strconv.Itoa(id),
		PosterPath: strPtr("/p" + strconv.Itoa(id) + ".jpg"),
		Rating:     8,
		VoteCount:  1000,
		Popularity: 50,
		Language:   "en",
		GenreIDs:   genreIDs,
	}
}

func watchlistItem(mt models.MediaType, id string, status models.WatchStatus, rating *int, genreIDs ...int) models.WatchlistItem {
	var tmdbID *string
	if id != "" {
		tmdbID = strPtr(id)
	}
	return models.WatchlistItem{
		ID:        uuid.New(),
		TMDbID:    tmdbID,
		MediaType: mt,
		Status:    status,
		Rating:    rating,
		GenreIDs:  genreIDs,
		UpdatedAt: time.Now(),
	}
}

type discoverCall struct {
	MediaType models.MediaType
	Params    tmdb.DiscoverParams
}

// fakeContent answers content API calls from handler funcs and records them.
type fakeContent struct {
	mu            sync.Mutex
	discover      func(mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error)
	trending      func(mt models.MediaType, page int) ([]models.UnifiedContent, error)
	details       func(mt models.MediaType, id int) (*tmdb.Details, error)
	discoverCalls []discoverCall
	trendingCalls int
	detailsCalls  int
}

func (f *fakeContent) Discover(ctx context.Context, mt models.MediaType, p tmdb.DiscoverParams) ([]models.UnifiedContent, error) {
	f.mu.Lock()
	f.discoverCalls = append(f.discoverCalls, discoverCall{MediaType: mt, Params: p})
	fn := f.discover
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(mt, p)
}

func (f *fakeContent) Trending(ctx context.Context, mt models.MediaType, window string, page int) ([]models.UnifiedContent, error) {
	f.mu.Lock()
	f.trendingCalls++
	fn := f.trending
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(mt, page)
}

func (f *fakeContent) Details(ctx context.Context, mt models.MediaType, id int) (*tmdb.Details, error) {
	f.mu.Lock()
	f.detailsCalls++
	fn := f.details
	f.mu.Unlock()
	if fn == nil {
		return &tmdb.Details{}, nil
	}
	return fn(mt, id)
}

func (f *fakeContent) calls() []discoverCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]discoverCall(nil), f.discoverCalls...)
}

type MockWatchlistStore struct {
	mock.Mock
}

func (m *MockWatchlistStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WatchlistItem, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]models.WatchlistItem)
	return items, args.Error(1)
}

type MockAffinityStore struct {
	mock.Mock
}

func (m *MockAffinityStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenreAffinity, error) {
	args := m.Called(ctx, userID)
	rows, _ := args.Get(0).([]models.GenreAffinity)
	return rows, args.Error(1)
}

// memoryProfiles is an in-memory TasteProfileStore.
type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.UserTasteProfile
	getErr   error
	upserts  int
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{profiles: make(map[uuid.UUID]*models.UserTasteProfile)}
}

func (m *memoryProfiles) Get(ctx context.Context, userID uuid.UUID) (*models.UserTasteProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProfiles) Upsert(ctx context.Context, p *models.UserTasteProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	m.upserts++
	return nil
}

func (m *memoryProfiles) put(p *models.UserTasteProfile) {
	m.mu.Lock()
	m.profiles[p.UserID] = p
	m.mu.Unlock()
}

func (m *memoryProfiles) failGets(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

func (m *memoryProfiles) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// memoryDNA is an in-memory DNAStore.
type memoryDNA struct {
	mu        sync.Mutex
	records   map[string]*models.ContentDNA
	existsErr error
	upserts   int
}

func newMemoryDNA(records ...*models.ContentDNA) *memoryDNA {
	m := &memoryDNA{records: make(map[string]*models.ContentDNA)}
	for _, r := range records {
		m.records[r.Ref().Key()] = r
	}
	return m
}

func (m *memoryDNA) Exists(ctx context.Context, ref models.ContentRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.records[ref.Key()]
	return ok, nil
}

func (m *memoryDNA) ExistingKeys(ctx context.Context, refs []models.ContentRef) (models.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.KeySet{}
	for _, ref := range refs {
		if _, ok := m.records[ref.Key()]; ok {
			out.Add(ref.Key())
		}
	}
	return out, nil
}

func (m *memoryDNA) Get(ctx context.Context, ref models.ContentRef) (*models.ContentDNA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dna, ok := m.records[ref.Key()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return dna, nil
}

func (m *memoryDNA) GetMany(ctx context.Context, refs []models.ContentRef) (map[string]*models.ContentDNA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.ContentDNA)
	for _, ref := range refs {
		if dna, ok := m.records[ref.Key()]; ok {
			out[ref.Key()] = dna
		}
	}
	return out, nil
}

func (m *memoryDNA) Upsert(ctx context.Context, dna *models.ContentDNA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[dna.Ref().Key()] = dna
	m.upserts++
	return nil
}

func (m *memoryDNA) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok
}

// dnaWith returns a record whose every dimension is fully weighted on one key.
func dnaWith(mt models.MediaType, id int, tone, theme string) *models.ContentDNA {
	v := models.NewTasteVectors()
	v.Tone[tone] = 1
	v.Theme[theme] = 1
	v.Setting["urban"] = 1
	v.Pacing["fast"] = 1
	v.Complexity["complex"] = 1
	return &models.ContentDNA{
		TMDbID:       id,
		MediaType:    mt,
		TasteVectors: v,
		GenreIDs:     []int{80},
		Directors:    []string{"Director " + strconv.Itoa(id)},
		Actors:       []string{"Actor " + strconv.Itoa(id)},
		Keywords:     []string{"heist"},
	}
}

// fixedRand returns a constant float and always the lowest index.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int   { return 0 }
