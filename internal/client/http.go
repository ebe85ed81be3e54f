package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrTransient marks failures worth retrying on a later run: timeouts, 5xx, 429, open breaker.
	ErrTransient = errors.New("transient source error")
	// ErrAuth marks rejected credentials. It is a configuration error.
	ErrAuth = errors.New("source rejected credentials")
)

// IsTransient reports whether err should leave data untouched for a later retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// apiClient is the shared GET path: pacing, retry with backoff, status mapping.
type apiClient struct {
	name       string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

func newAPIClient(name, baseURL string, timeout time.Duration, ratePerSec float64, headers map[string]string) *apiClient {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &apiClient{
		name:       name,
		baseURL:    baseURL,
		headers:    headers,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// get performs a GET with retry and pacing. The response headers are returned with the body.
func (c *apiClient) get(ctx context.Context, path string, params url.Values) ([]byte, http.Header, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("api", c.name).
				Str("path", path).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying API request after backoff")

			select {
			case <-ctx.Done():
				return nil, nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
		}

		body, header, status, err := c.do(ctx, endpoint, params)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s request failed: %v", ErrTransient, c.name, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			metrics.RecordAPICall(c.name+"/"+path, "success", time.Since(start).Seconds())
			log.Debug().
				Str("api", c.name).
				Str("path", path).
				Int("size", len(body)).
				Msg("API request successful")
			return body, header, nil

		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%w: %s returned status %d", ErrTransient, c.name, status)
			log.Warn().
				Str("api", c.name).
				Int("status", status).
				Int("attempt", attempt+1).
				Msg("Received retryable error, will retry")
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			metrics.RecordAPICall(c.name+"/"+path, "auth_error", time.Since(start).Seconds())
			return nil, nil, fmt.Errorf("%w: %s status %d: %s", ErrAuth, c.name, status, truncate(body, 200))

		default:
			metrics.RecordAPICall(c.name+"/"+path, "error", time.Since(start).Seconds())
			return nil, nil, fmt.Errorf("%s returned status %d: %s", c.name, status, truncate(body, 200))
		}
	}

	metrics.RecordAPICall(c.name+"/"+path, "transient", time.Since(start).Seconds())
	return nil, nil, lastErr
}

func (c *apiClient) do(ctx context.Context, endpoint string, params url.Values) ([]byte, http.Header, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.Header, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
