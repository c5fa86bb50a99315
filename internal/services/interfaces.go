package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/pkg/models"
)

// ContentAPI is the content metadata API as used by the recommendation core.
type ContentAPI interface {
	Discover(ctx context.Context, mediaType models.MediaType, params tmdb.DiscoverParams) ([]models.UnifiedContent, error)
	Trending(ctx context.Context, mediaType models.MediaType, window string, page int) ([]models.UnifiedContent, error)
	Details(ctx context.Context, mediaType models.MediaType, id int) (*tmdb.Details, error)
}

type WatchlistStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WatchlistItem, error)
}

type AffinityStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenreAffinity, error)
}

type TasteProfileStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserTasteProfile, error)
	Upsert(ctx context.Context, profile *models.UserTasteProfile) error
}

type DNAStore interface {
	Exists(ctx context.Context, ref models.ContentRef) (bool, error)
	ExistingKeys(ctx context.Context, refs []models.ContentRef) (models.KeySet, error)
	Get(ctx context.Context, ref models.ContentRef) (*models.ContentDNA, error)
	GetMany(ctx context.Context, refs []models.ContentRef) (map[string]*models.ContentDNA, error)
	Upsert(ctx context.Context, dna *models.ContentDNA) error
}

// PreferenceServiceInterface defines the interface for preference aggregation
type PreferenceServiceInterface interface {
	GetUserPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error)
}

// SmartRecommendationServiceInterface defines the interface for recommendation scoring
type SmartRecommendationServiceInterface interface {
	GetSmartRecommendations(ctx context.Context, userID uuid.UUID, opts SmartOptions) *models.SmartRecommendations
	ClearSession(userID uuid.UUID)
}

// RecommendationCacheInterface defines the interface for the per-user candidate cache
type RecommendationCacheInterface interface {
	GetFiltered(ctx context.Context, userID uuid.UUID, mediaType models.MediaType, genre string) (*models.FilteredContentResponse, error)
	Stats(userID uuid.UUID) (*models.CacheStats, bool)
	Invalidate(userID uuid.UUID)
}

// TasteProfileServiceInterface defines the interface for taste profile access
type TasteProfileServiceInterface interface {
	Load(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error)
	Refresh(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error)
	ApplyInteraction(ctx context.Context, userID uuid.UUID, ref models.ContentRef, rating *int) (*TasteProfileState, error)
}

// DNAQueueInterface defines the interface for the content DNA queue
type DNAQueueInterface interface {
	Enqueue(ctx context.Context, tmdbID int, mediaType models.MediaType) bool
	ScanWatchlistForMissingDNA(ctx context.Context, userID uuid.UUID) (int, error)
	Status() models.QueueStatus
}
