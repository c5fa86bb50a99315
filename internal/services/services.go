package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/database"
	"github.com/streamsense/recengine/internal/messaging"
	"github.com/streamsense/recengine/internal/repository"
	"github.com/streamsense/recengine/internal/tmdb"
	"github.com/streamsense/recengine/internal/validation"
)

type Services struct {
	Auth                *AuthService
	Health              *HealthService
	Content             *tmdb.Client
	Preferences         *PreferenceService
	SmartRecommendation *SmartRecommendationService
	RecommendationCache *RecommendationCache
	TasteProfile        *TasteProfileService
	DNAQueue            *DNAQueue
	Interactions        *InteractionProcessor
	Events              *messaging.EventBus
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	repos := repository.New(db.PG)
	content := tmdb.NewClient(cfg.TMDb, db.Redis, logger)

	preferences := NewPreferenceService(repos.Watchlist, repos.Affinity, logger)
	cache := NewRecommendationCache(content, cfg.Cache, logger)
	smart := NewSmartRecommendationService(
		preferences, content, NewSessionCache(), NewRandomSource(cfg.Recommendations.RandomSeed),
		cache, cfg.Recommendations, logger,
	)

	tasteProfile := NewTasteProfileService(repos.TasteProfiles, repos.Watchlist, repos.DNA, cfg.TasteProfile, logger)
	dnaQueue := NewDNAQueue(repos.DNA, repos.Watchlist, NewDNAComputer(content, logger), cfg.DNAQueue, logger)

	var events *messaging.EventBus
	if cfg.Kafka.Enabled {
		validator, err := validation.NewEventValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to load event schemas: %w", err)
		}
		events = messaging.NewEventBus(cfg.Kafka, validator, logger)
		dnaQueue.Subscribe(events)
	}

	health := NewHealthService(db, dnaQueue, logger)
	if events != nil {
		health.WithEventBus(events)
	}

	return &Services{
		Auth:                NewAuthService(cfg.Auth, logger, db.Redis),
		Health:              health,
		Content:             content,
		Preferences:         preferences,
		SmartRecommendation: smart,
		RecommendationCache: cache,
		TasteProfile:        tasteProfile,
		DNAQueue:            dnaQueue,
		Interactions:        NewInteractionProcessor(dnaQueue, tasteProfile, logger),
		Events:              events,
	}, nil
}
