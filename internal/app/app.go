package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/database"
	"github.com/streamsense/recengine/internal/handlers"
	"github.com/streamsense/recengine/internal/middleware"
	"github.com/streamsense/recengine/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svc, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(app.logger, handlers.Dependencies{
		Preferences:     svc.Preferences,
		Recommendations: svc.SmartRecommendation,
		Cache:           svc.RecommendationCache,
		TasteProfiles:   svc.TasteProfile,
		DNAQueue:        svc.DNAQueue,
		Health:          svc.Health,
	})

	app.setupRouter()
	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers: the DNA queue, the taste profile
// scheduler and, when enabled, the watchlist event consumer.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.services.DNAQueue.Start(ctx)
	a.services.TasteProfile.StartScheduler(ctx)

	if a.services.Events != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := a.services.Events.ConsumeWatchlistEvents(ctx, a.services.Interactions.Handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Watchlist event consumer stopped")
			}
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.services.DNAQueue.Stop()
		a.services.TasteProfile.Wait()
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Background workers did not stop before the shutdown deadline")
	}

	var errs []error
	if a.services.Events != nil {
		if err := a.services.Events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config.Security.CORS))
	if a.config.Monitoring.Enabled {
		router.Use(middleware.Metrics())
	}

	router.GET("/health", a.handlers.Health.Check)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(a.services.Auth, a.logger))
	if a.config.Security.RateLimit.Enabled {
		api.Use(middleware.RateLimit(middleware.NewUserRateLimiter(a.config.Security.RateLimit), a.logger))
	}
	handlers.RegisterRoutes(api, a.handlers)

	a.router = router
}
