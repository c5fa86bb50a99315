package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig              `mapstructure:"server"`
	Database        DatabaseConfig            `mapstructure:"database"`
	Redis           RedisConfig               `mapstructure:"redis"`
	Kafka           KafkaConfig               `mapstructure:"kafka"`
	Auth            AuthConfig                `mapstructure:"auth"`
	Logging         LoggingConfig             `mapstructure:"logging"`
	TMDb            TMDbConfig                `mapstructure:"tmdb"`
	Recommendations RecommendationConfig      `mapstructure:"recommendation"`
	Cache           RecommendationCacheConfig `mapstructure:"cache"`
	TasteProfile    TasteProfileConfig        `mapstructure:"taste_profile"`
	DNAQueue        DNAQueueConfig            `mapstructure:"dna_queue"`
	Monitoring      MonitoringConfig          `mapstructure:"monitoring"`
	Security        SecurityConfig            `mapstructure:"security"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the content API response cache. An empty URL
// disables response caching.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  struct {
		WatchlistEvents string `mapstructure:"watchlist_events"`
		DNAComputed     string `mapstructure:"dna_computed"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TMDbConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Language         string        `mapstructure:"language"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RequestsPerSec   float64       `mapstructure:"requests_per_second"`
	Burst            int           `mapstructure:"burst"`
	ResponseCacheTTL time.Duration `mapstructure:"response_cache_ttl"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// QualityFloor excludes poorly attested content from a discover query.
type QualityFloor struct {
	MinVoteCount   int     `mapstructure:"min_vote_count"`
	MinVoteAverage float64 `mapstructure:"min_vote_average"`
}

type RecommendationConfig struct {
	RelevanceWeight     float64      `mapstructure:"relevance_weight"`
	DefaultLimit        int          `mapstructure:"default_limit"`
	MaxLimit            int          `mapstructure:"max_limit"`
	TopGenreQueryCount  int          `mapstructure:"top_genre_query_count"`
	GroupSize           int          `mapstructure:"group_size"`
	ForYouMaxPage       int          `mapstructure:"for_you_max_page"`
	ForYouFloor         QualityFloor `mapstructure:"for_you_floor"`
	DiscoveryMaxPage    int          `mapstructure:"discovery_max_page"`
	DiscoveryFloor      QualityFloor `mapstructure:"discovery_floor"`
	DiscoveryGenreCount int          `mapstructure:"discovery_genre_count"`
	DiscoveryMinHistory int          `mapstructure:"discovery_min_history"`
	DeepCutCombos       int          `mapstructure:"deep_cut_combos"`
	TrendingWindow      string       `mapstructure:"trending_window"`
	RandomSeed          int64        `mapstructure:"random_seed"`
}

type RecommendationCacheConfig struct {
	PrefetchPages  int `mapstructure:"prefetch_pages"`
	TopUpThreshold int `mapstructure:"top_up_threshold"`
	TopUpPages     int `mapstructure:"top_up_pages"`
}

type TasteProfileConfig struct {
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	Decay            float64       `mapstructure:"decay"`
	ConfidenceTarget int           `mapstructure:"confidence_target"`
}

type DNAQueueConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per authenticated user.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration built from defaults only. Tests use it to
// get production constants without reading a config file.
func Default() *Config {
	setDefaults()
	var config Config
	_ = viper.Unmarshal(&config)
	return &config
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "recengine")
	viper.SetDefault("kafka.topics.watchlist_events", "watchlist-events")
	viper.SetDefault("kafka.topics.dna_computed", "content-dna-computed")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Content API defaults
	viper.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	viper.SetDefault("tmdb.language", "en-US")
	viper.SetDefault("tmdb.timeout", "10s")
	viper.SetDefault("tmdb.requests_per_second", 20.0)
	viper.SetDefault("tmdb.burst", 10)
	viper.SetDefault("tmdb.response_cache_ttl", "30m")
	viper.SetDefault("tmdb.breaker.max_requests", 3)
	viper.SetDefault("tmdb.breaker.interval", "60s")
	viper.SetDefault("tmdb.breaker.timeout", "30s")
	viper.SetDefault("tmdb.breaker.failure_threshold", 5)

	// Recommendation defaults
	viper.SetDefault("recommendation.relevance_weight", 0.7)
	viper.SetDefault("recommendation.default_limit", 20)
	viper.SetDefault("recommendation.max_limit", 100)
	viper.SetDefault("recommendation.top_genre_query_count", 3)
	viper.SetDefault("recommendation.group_size", 6)
	viper.SetDefault("recommendation.for_you_max_page", 10)
	viper.SetDefault("recommendation.for_you_floor.min_vote_count", 100)
	viper.SetDefault("recommendation.for_you_floor.min_vote_average", 6.5)
	viper.SetDefault("recommendation.discovery_max_page", 5)
	viper.SetDefault("recommendation.discovery_floor.min_vote_count", 500)
	viper.SetDefault("recommendation.discovery_floor.min_vote_average", 7.5)
	viper.SetDefault("recommendation.discovery_genre_count", 3)
	viper.SetDefault("recommendation.discovery_min_history", 5)
	viper.SetDefault("recommendation.deep_cut_combos", 2)
	viper.SetDefault("recommendation.trending_window", "week")
	viper.SetDefault("recommendation.random_seed", 0)

	// Recommendation cache defaults
	viper.SetDefault("cache.prefetch_pages", 3)
	viper.SetDefault("cache.top_up_threshold", 10)
	viper.SetDefault("cache.top_up_pages", 2)

	// Taste profile defaults
	viper.SetDefault("taste_profile.stale_after", "6h")
	viper.SetDefault("taste_profile.refresh_interval", "24h")
	viper.SetDefault("taste_profile.decay", 0.9)
	viper.SetDefault("taste_profile.confidence_target", 50)

	// DNA queue defaults
	viper.SetDefault("dna_queue.batch_size", 3)
	viper.SetDefault("dna_queue.batch_delay", "500ms")
	viper.SetDefault("dna_queue.retry_delay", "2s")
	viper.SetDefault("dna_queue.max_retries", 3)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
	viper.SetDefault("security.rate_limit.enabled", true)
	viper.SetDefault("security.rate_limit.requests_per_second", 5.0)
	viper.SetDefault("security.rate_limit.burst", 20)
}
