// Package tmdb is the content metadata API client: discover, trending, search
// and details, normalized into models.UnifiedContent.
package tmdb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/pkg/models"
)

const cacheKeyPrefix = "tmdb:"

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("content api %s returned status %d", e.Path, e.StatusCode)
}

// Client talks to the content API. Every request passes through a rate limiter
// and a circuit breaker; successful payloads are cached in Redis when a client
// is configured.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     *logrus.Logger
}

func NewClient(cfg config.TMDbConfig, cache *redis.Client, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		cache:      cache,
		cacheTTL:   cfg.ResponseCacheTTL,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "content-api",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors say nothing about API health; only 429 and 5xx trip.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
					statusErr.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Content API circuit breaker state changed")
		},
	})

	return c
}

// DiscoverParams are the discover endpoint filters. MatchAll joins genres with
// "," (every genre required), otherwise "|" (any genre).
type DiscoverParams struct {
	GenreIDs       []int
	MatchAll       bool
	SortBy         string
	MinVoteCount   int
	MinVoteAverage float64
	Page           int
	Language       string
}

func (p DiscoverParams) query() url.Values {
	q := url.Values{}
	if len(p.GenreIDs) > 0 {
		sep := "|"
		if p.MatchAll {
			sep = ","
		}
		parts := make([]string, len(p.GenreIDs))
		for i, id := range p.GenreIDs {
			parts[i] = strconv.Itoa(id)
		}
		q.Set("with_genres", strings.Join(parts, sep))
	}
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "popularity.desc"
	}
	q.Set("sort_by", sortBy)
	if p.MinVoteCount > 0 {
		q.Set("vote_count.gte", strconv.Itoa(p.MinVoteCount))
	}
	if p.MinVoteAverage > 0 {
		q.Set("vote_average.gte", strconv.FormatFloat(p.MinVoteAverage, 'f', -1, 64))
	}
	if p.Language != "" {
		q.Set("with_original_language", p.Language)
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	return q
}

// Discover queries /discover/{movie|tv}.
func (c *Client) Discover(ctx context.Context, mediaType models.MediaType, params DiscoverParams) ([]models.UnifiedContent, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("unsupported media type %q", mediaType)
	}
	page, err := c.getPage(ctx, "discover", "/discover/"+string(mediaType), params.query())
	if err != nil {
		return nil, err
	}
	return NormalizeAll(page.Raw, mediaType), nil
}

// Trending queries /trending/{all|movie|tv}/{day|week}. An empty media type
// returns mixed results.
func (c *Client) Trending(ctx context.Context, mediaType models.MediaType, window string, page int) ([]models.UnifiedContent, error) {
	scope := "all"
	if mediaType.Valid() {
		scope = string(mediaType)
	}
	if window != "day" {
		window = "week"
	}
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	result, err := c.getPage(ctx, "trending", fmt.Sprintf("/trending/%s/%s", scope, window), q)
	if err != nil {
		return nil, err
	}
	return NormalizeAll(result.Raw, mediaType), nil
}

// Search queries /search/multi, or /search/{movie|tv} when a media type is given.
func (c *Client) Search(ctx context.Context, query string, mediaType models.MediaType, page int) ([]models.UnifiedContent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UnifiedContent{}, nil
	}
	path := "/search/multi"
	if mediaType.Valid() {
		path = "/search/" + string(mediaType)
	}
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	result, err := c.getPage(ctx, "search", path, q)
	if err != nil {
		return nil, err
	}
	return NormalizeAll(result.Raw, mediaType), nil
}

// Details fetches a title with its keywords and credits.
func (c *Client) Details(ctx context.Context, mediaType models.MediaType, id int) (*Details, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("unsupported media type %q", mediaType)
	}
	q := url.Values{}
	q.Set("append_to_response", "keywords,credits")
	body, err := c.get(ctx, "details", fmt.Sprintf("/%s/%d", mediaType, id), q)
	if err != nil {
		return nil, err
	}
	var details Details
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}
	if details.MediaType == "" {
		details.MediaType = string(mediaType)
	}
	return &details, nil
}

func (c *Client) getPage(ctx context.Context, endpoint, path string, q url.Values) (*Page, error) {
	body, err := c.get(ctx, endpoint, path, q)
	if err != nil {
		return nil, err
	}
	var resp pagedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return &Page{Page: resp.Page, TotalPages: resp.TotalPages, Raw: resp.Results}, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	if c.language != "" && q.Get("language") == "" {
		q.Set("language", c.language)
	}
	key := cacheKeyPrefix + cacheHash(path, q)

	if body, ok := c.cached(ctx, key); ok {
		metrics.ContentAPIRequests.WithLabelValues(endpoint, "cache_hit").Inc()
		return body, nil
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
		return c.do(ctx, path, q)
	})
	metrics.ObserveSince(metrics.ContentAPIDuration.WithLabelValues(endpoint), start)

	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
		}
		metrics.ContentAPIRequests.WithLabelValues(endpoint, outcome).Inc()
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}

	metrics.ContentAPIRequests.WithLabelValues(endpoint, "ok").Inc()
	c.store(ctx, key, body)
	return body, nil
}

func (c *Client) do(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}
	withKey := url.Values{}
	for k, v := range q {
		withKey[k] = v
	}
	if c.apiKey != "" {
		withKey.Set("api_key", c.apiKey)
	}
	u.RawQuery = withKey.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Content API cache read failed")
		}
		return nil, false
	}
	return body, true
}

func (c *Client) store(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, body, c.cacheTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("Content API cache write failed")
	}
}

// cacheHash is independent of the API key, so rotating the key keeps the cache.
func cacheHash(path string, q url.Values) string {
	sum := sha1.Sum([]byte(path + "?" + q.Encode()))
	return hex.EncodeToString(sum[:])
}
