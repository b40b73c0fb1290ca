// Package client provides the retrying JSON request primitive shared by all
// pagination strategies.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/restcsv/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restcsv_requests_total",
		Help: "Total requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "restcsv_request_duration_seconds",
		Help:    "Request attempt duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restcsv_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 256

// Client issues GET requests against one URL and decodes JSON responses.
type Client struct {
	httpClient *http.Client
	rawURL     string
	baseURL    *url.URL
	headers    http.Header
	retry      RetryConfig
	sleep      SleepFunc
	cache      *cache.Manager
	authScope  string
	logger     zerolog.Logger
}

// Config holds the fetch configuration. It is copied by New; later changes
// to the struct or its Headers map do not affect the client.
type Config struct {
	// URL is the absolute endpoint URL. Existing query parameters are kept
	// and overridden by per-page parameters with the same name.
	URL string

	// Headers are sent with every request.
	Headers map[string]string

	// AccessToken, when set, is sent as "Authorization: Bearer <token>".
	AccessToken string

	// Retry
	MaxRetries  int           // Total attempts per request (default 3)
	BackoffBase time.Duration // Delay after the first failure (default 300ms)

	// Timeout per attempt (default 30s)
	Timeout time.Duration

	// UserAgent header (default "restcsv/0.1.0")
	UserAgent string

	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper

	// Cache, when set, serves repeated requests from Redis.
	Cache *cache.Manager

	// Sleep overrides the backoff delay primitive.
	Sleep SleepFunc

	// Logger receives request logs. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns a default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:         url,
		MaxRetries:  3,
		BackoffBase: 300 * time.Millisecond,
		Timeout:     30 * time.Second,
		UserAgent:   "restcsv/0.1.0",
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	baseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !baseURL.IsAbs() || baseURL.Host == "" {
		return nil, fmt.Errorf("url must be absolute (got %q)", cfg.URL)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BackoffBase < 0 {
		return nil, fmt.Errorf("backoff_base must be >= 0 (got %s)", cfg.BackoffBase)
	}

	defaults := DefaultConfig(cfg.URL)
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	headers := make(http.Header, len(cfg.Headers)+3)
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", cfg.UserAgent)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	var authScope string
	if cfg.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+cfg.AccessToken)
		sum := sha256.Sum256([]byte(cfg.AccessToken))
		authScope = hex.EncodeToString(sum[:6])
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rawURL:    cfg.URL,
		baseURL:   baseURL,
		headers:   headers,
		retry:     RetryConfig{MaxAttempts: cfg.MaxRetries, BackoffBase: cfg.BackoffBase},
		sleep:     cfg.Sleep,
		cache:     cfg.Cache,
		authScope: authScope,
		logger:    logger.With().Str("component", "client").Str("url", cfg.URL).Logger(),
	}, nil
}

// Request performs a GET with params and returns the decoded JSON payload.
// Numbers decode as json.Number. Failures are retried with exponential
// backoff; after the last attempt the returned error wraps ErrRetryExhausted.
func (c *Client) Request(ctx context.Context, params url.Values) (any, error) {
	key := cache.CacheKey{URL: c.rawURL, Params: params, AuthScope: c.authScope}
	if payload, ok := c.fromCache(ctx, key); ok {
		return payload, nil
	}

	target := c.buildURL(params)

	var payload any
	var resp *http.Response
	var body []byte

	err := retryWithBackoff(ctx, c.retry, c.sleep, c.logger, func(attempt int) error {
		c.logger.Debug().
			Str("params", params.Encode()).
			Int("attempt", attempt+1).
			Msg("Fetching data")

		var attemptErr error
		resp, body, attemptErr = c.doOnce(ctx, target)
		if attemptErr == nil {
			payload, attemptErr = decodeJSON(body)
		}
		if attemptErr != nil {
			class := classify(attemptErr)
			errorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Err(attemptErr).
				Str("error_class", string(class)).
				Int("attempt", attempt+1).
				Msg("Request attempt failed")
			return attemptErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.toCache(ctx, key, resp, body)
	return payload, nil
}

// doOnce executes a single request attempt and reads the body.
func (c *Client) doOnce(ctx context.Context, target string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, &TransportError{Class: ErrorClassGeneric, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header = c.headers.Clone()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		class := classifyTransport(err)
		requestsTotal.WithLabelValues(string(class)).Inc()
		return nil, nil, &TransportError{Class: class, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, &TransportError{Class: classifyTransport(err), Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp, body, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(snippet)),
		}
	}

	return resp, body, nil
}

// buildURL merges params into the configured URL's query string.
func (c *Client) buildURL(params url.Values) string {
	if len(params) == 0 {
		return c.rawURL
	}
	u := *c.baseURL
	query := u.Query()
	for k, v := range params {
		query[k] = v
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) fromCache(ctx context.Context, key cache.CacheKey) (any, bool) {
	if c.cache == nil {
		return nil, false
	}

	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil, false
	}

	payload, err := decodeJSON(entry.Data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cached payload is not valid JSON")
		return nil, false
	}

	requestsTotal.WithLabelValues("cache_hit").Inc()
	c.logger.Debug().Str("key", key.String()).Msg("Served from cache")
	return payload, true
}

func (c *Client) toCache(ctx context.Context, key cache.CacheKey, resp *http.Response, body []byte) {
	if c.cache == nil || resp == nil {
		return
	}

	entry, err := cache.ResponseToEntry(resp, body, c.cache.DefaultTTL())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().Str("key", key.String()).Dur("ttl", entry.Remaining(time.Now())).Msg("Cached response")
}

// decodeJSON decodes a single JSON document, keeping numbers as json.Number.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &TransportError{Class: ErrorClassGeneric, Err: fmt.Errorf("decode json: %w", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &TransportError{Class: ErrorClassGeneric, Err: errors.New("decode json: trailing data after JSON value")}
	}
	return payload, nil
}

// URL returns the configured endpoint URL.
func (c *Client) URL() string {
	return c.rawURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
