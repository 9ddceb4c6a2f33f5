package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/pkg/circuitbreaker"
	"github.com/runhub/run-community-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the results pipeline client.
type ClientConfig struct {
	// BaseURL is the pipeline API base URL
	BaseURL string

	// APIKey is the bearer token for authentication (empty if none)
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// PageSize is the number of runs requested per page
	PageSize int

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request-level debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		PageSize:          100,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client fetches candidate runs from the results pipeline. It implements
// command.ResultsProvider.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	mapper      *Mapper
}

// NewClient creates a new results pipeline client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}

	logger := config.Logger
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.ResultsAPIBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.ResultsAPIRetrier(),
		mapper:  NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FETCH OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchRuns returns runs published since the given time, mapped into
// domain form. Pages are fetched until the limit is reached or the
// pipeline reports no more data. Malformed candidates are logged and
// skipped; they must not block the rest of the import.
func (c *Client) FetchRuns(ctx context.Context, since time.Time, limit int) ([]*run.Run, error) {
	if limit <= 0 {
		limit = c.config.PageSize
	}

	collected := make([]*run.Run, 0, limit)
	page := 1

	for len(collected) < limit {
		params := url.Values{}
		if !since.IsZero() {
			params.Set("since", since.UTC().Format(time.RFC3339))
		}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(min(c.config.PageSize, limit-len(collected))))

		var response RunsResponseDTO
		if err := c.doRequest(ctx, "/api/v1/runs?"+params.Encode(), &response); err != nil {
			return nil, fmt.Errorf("fetch runs page %d: %w", page, err)
		}

		runs, mapErrs := c.mapper.MapRuns(response.Runs)
		for _, err := range mapErrs {
			c.logger.Warn("skipping malformed candidate run", "error", err)
		}
		collected = append(collected, runs...)

		if !response.HasMore || len(response.Runs) == 0 {
			break
		}
		page++
	}

	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}

// IsHealthy checks if the pipeline is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.doSingleRequest(ctx, "/api/v1/health", nil) == nil
}

// BreakerState returns the circuit breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Reset restores the rate limiter and circuit breaker. Primarily for tests.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// doRequest executes a GET through the circuit breaker with retries. The
// rate limiter gates every individual attempt.
func (c *Client) doRequest(ctx context.Context, path string, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
			}

			err := c.doSingleRequest(ctx, path, result)
			if err == nil {
				return nil
			}

			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
				return retry.Retryable(err)
			}

			var apiErr *APIErrorDTO
			if errors.As(err, &apiErr) {
				if apiErr.IsServerError() {
					return retry.Retryable(err)
				}
				return retry.Permanent(err)
			}

			// Network-level failures are generally transient.
			return retry.Retryable(err)
		})
	})
}

func (c *Client) doSingleRequest(ctx context.Context, path string, result interface{}) error {
	fullURL := c.config.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("results api request", "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
