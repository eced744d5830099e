// Package restclient is the single entry point the engine uses to talk to
// the remote production API. It attaches credentials to every request and
// normalizes the heterogeneous error envelopes the backend returns into a
// single [APIError] type with a human-readable message.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/kinoforge/internal/observe"
	"github.com/MrWong99/kinoforge/internal/resilience"
)

// LightTimeout is the default timeout for small synchronous reads.
const LightTimeout = 10 * time.Second

// BulkTimeout is the timeout used for synchronous bulk endpoints that may
// run for several minutes before responding.
const BulkTimeout = 10 * time.Minute

// config holds optional configuration for a Client.
type config struct {
	httpClient *http.Client
	apiKey     string
	timeout    time.Duration
	userAgent  string
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// Option is a functional option for New.
type Option func(*config)

// WithHTTPClient overrides the underlying *http.Client. Useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithAPIKey sets the bearer token attached to every request.
func WithAPIKey(key string) Option {
	return func(cfg *config) {
		cfg.apiKey = key
	}
}

// WithTimeout sets the default per-request timeout. It is overridden on a
// per-call basis by [Client.GetWithTimeout] and friends.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *config) {
		cfg.userAgent = ua
	}
}

// WithCircuitBreaker overrides the breaker guarding the transport-level
// call. Useful in tests that want a short ResetTimeout.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(cfg *config) {
		cfg.breaker = cb
	}
}

// WithMetrics attaches an [observe.Metrics] instance that records remote-call
// latency, request counts, and errors. When unset, no metrics are recorded — tests
// constructing a Client directly don't pull in the global OTel provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// Client is the single entry point to the backend. It attaches session
// credentials to every request and normalizes error responses.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// New constructs a Client targeting baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("restclient: baseURL must not be empty")
	}

	cfg := &config{
		timeout:   LightTimeout,
		userAgent: "kinoforge-engine/1.0",
	}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	breaker := cfg.breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "restclient:" + baseURL,
		})
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		userAgent:  cfg.userAgent,
		httpClient: httpClient,
		timeout:    cfg.timeout,
		breaker:    breaker,
		metrics:    cfg.metrics,
	}, nil
}

// Get performs a GET request against path, decoding the JSON response into
// out (which may be nil to discard the body).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, c.timeout)
}

// GetWithTimeout is like Get but overrides the client's default timeout.
// Used by the supervisor for polling requests, which must not time out at
// the transport level.
func (c *Client) GetWithTimeout(ctx context.Context, path string, out any, timeout time.Duration) error {
	return c.do(ctx, http.MethodGet, path, nil, out, timeout)
}

// Post performs a POST request with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, c.timeout)
}

// PostWithTimeout is like Post but overrides the client's default timeout.
// Used for synchronous bulk endpoints that may legitimately run for minutes.
func (c *Client) PostWithTimeout(ctx context.Context, path string, body, out any, timeout time.Duration) error {
	return c.do(ctx, http.MethodPost, path, body, out, timeout)
}

// Put performs a PUT request with a JSON-encoded body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out, c.timeout)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out, c.timeout)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	ctx, span := observe.StartSpan(ctx, "restclient "+method+" "+path)
	defer span.End()

	start := time.Now()
	err := c.doRequest(ctx, method, path, body, out, timeout)
	c.recordMetrics(ctx, method, path, start, err)
	return err
}

func (c *Client) recordMetrics(ctx context.Context, method, path string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	endpoint := method + " " + path
	status := "ok"
	if err != nil {
		status = "error"
		class := "network"
		if _, ok := err.(*APIError); ok {
			class = "api"
		}
		c.metrics.RecordRemoteError(ctx, endpoint, class)
	}
	c.metrics.RecordRemoteRequest(ctx, endpoint, status)
	c.metrics.RemoteRequestDuration.Record(ctx, time.Since(start).Seconds())
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restclient: encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("restclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	client := c.httpClient
	if timeout > 0 {
		// Requests pass timeout via context; supervisor polling calls pass 0
		// for "no transport-level upper bound".
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	var resp *http.Response
	execErr := c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = client.Do(req)
		return doErr
	})
	if execErr != nil {
		return &NetworkError{Op: method + " " + path, Err: execErr}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("restclient: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("restclient: decode response body: %w", err)
	}
	return nil
}
