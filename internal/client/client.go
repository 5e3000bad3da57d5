package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"draftlab/analytics/internal/metrics"

	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response is echoed into errors
const maxErrorBody = 512

// Client downloads remote source files with retries and a concurrency cap
type Client struct {
	httpClient *http.Client
	limiter    chan struct{}
	headers    map[string]string
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithRetryDelay sets the first backoff; later attempts double it
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithMaxRetries sets how many times a retryable failure is retried
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithHeader adds a header to every request
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// NewClient creates a client allowing maxConcurrent downloads at once
func NewClient(timeout time.Duration, maxConcurrent int, opts ...Option) *Client {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	c := &Client{
		limiter:    make(chan struct{}, maxConcurrent),
		headers:    map[string]string{},
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url, retrying network errors and 429/503/504 responses with
// exponential backoff (1s, 2s, 4s by default).
func (c *Client) Fetch(ctx context.Context, url string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordSourceFetch("http", status, time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying source download after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retry, err := c.attempt(ctx, url, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs one request while holding a concurrency slot
func (c *Client) attempt(ctx context.Context, url string, attempt int) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case c.limiter <- struct{}{}:
	}
	defer func() { <-c.limiter }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "draftlab-analytics/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	log.Debug().
		Str("url", url).
		Int("attempt", attempt+1).
		Msg("Downloading source")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("source request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		log.Debug().
			Str("url", url).
			Int("size", len(body)).
			Msg("Source downloaded")
		return body, false, nil

	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		log.Warn().
			Str("url", url).
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Msg("Received retryable error, will retry")
		return nil, true, fmt.Errorf("source returned retryable status %d: %s", resp.StatusCode, truncate(body))

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, false, fmt.Errorf("source authentication failed (status %d): %s", resp.StatusCode, truncate(body))

	default:
		return nil, false, fmt.Errorf("source returned status %d: %s", resp.StatusCode, truncate(body))
	}
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
