// Package common provides the shared HTTP transport the venue
// adapters sit on: a rate-limited, retrying client with JSON helpers
// and an optional verbose debug wrapper.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/veiloq/venue-adapters/pkg/logging"
	"github.com/veiloq/venue-adapters/pkg/ratelimit"
)

// HTTPClient is the transport surface the adapters depend on. Requests
// pass through the rate limiter first, then execute with retries on
// transport-level failures (5xx, 429, connection errors). Vendor-level
// error classification stays with the adapters; the client only
// retries what is safely retryable at the wire level.
type HTTPClient interface {
	// Do executes a prepared request with retries and rate limiting.
	Do(ctx context.Context, req *http.Request) (*http.Response, error)

	// Get issues a GET with optional extra headers.
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)

	// Send issues a request with the given method, headers and raw
	// body. Used by adapters whose signed payload must match the sent
	// bytes exactly.
	Send(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error)

	// SetRateLimit updates the rate limiter configuration.
	SetRateLimit(limit ratelimit.Rate) error
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	Timeout   time.Duration
	RateLimit ratelimit.Rate

	MaxRetries uint
	RetryDelay time.Duration

	Logger logging.Logger

	// Transport overrides the underlying RoundTripper, used by tests
	// to mock the wire.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration: 30s timeout,
// 10 requests per second, 3 retries spaced a second apart.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		RateLimit: ratelimit.Rate{
			Limit:    10,
			Interval: time.Second,
		},
		MaxRetries: 3,
		RetryDelay: time.Second,
		Logger:     logging.NewLogger(),
	}
}

type client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    ratelimit.RateLimiter
	logger     logging.Logger
}

// NewHTTPClient creates a new HTTP client with the given
// configuration; nil takes the defaults.
func NewHTTPClient(config *ClientConfig) HTTPClient {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.NewLogger()
	}

	return &client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		limiter: ratelimit.NewTokenBucketLimiter(config.RateLimit),
		logger:  config.Logger,
	}
}

// Do implements HTTPClient.
func (c *client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait error: %w", err)
	}

	err := retry.Do(
		func() error {
			var err error

			// Clone so the body can be replayed on retry.
			reqClone := req.Clone(ctx)
			if req.Body != nil {
				body, err := io.ReadAll(req.Body)
				if err != nil {
					return fmt.Errorf("error reading request body: %w", err)
				}
				reqClone.Body = io.NopCloser(bytes.NewReader(body))
				req.Body = io.NopCloser(bytes.NewReader(body))
			}

			resp, err = c.httpClient.Do(reqClone)
			if err != nil {
				return fmt.Errorf("http request error: %w", err)
			}

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("retryable status code: %d", resp.StatusCode)
			}

			return nil
		},
		retry.Attempts(c.config.MaxRetries),
		retry.Delay(c.config.RetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request",
				logging.Int("attempt", int(n)),
				logging.String("url", req.URL.String()),
				logging.Error(err),
			)
		}),
	)

	if err != nil {
		// Surface the last response when retries exhausted on a bad
		// status, so the adapter can still classify the body.
		if resp != nil {
			return resp, nil
		}
		return nil, fmt.Errorf("request failed after %d retries: %w", c.config.MaxRetries, err)
	}

	return resp, nil
}

// Get implements HTTPClient.
func (c *client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return c.Send(ctx, http.MethodGet, url, header, nil)
}

// Send implements HTTPClient.
func (c *client) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(ctx, req)
}

// SetRateLimit implements HTTPClient.
func (c *client) SetRateLimit(limit ratelimit.Rate) error {
	return c.limiter.SetLimit(limit)
}

// DecodeJSON drains and closes the response body, decoding it into v.
// The raw bytes are returned alongside so error classifiers can embed
// the vendor body verbatim.
func DecodeJSON(resp *http.Response, v any) ([]byte, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if v == nil {
		return raw, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return raw, fmt.Errorf("error decoding response body: %w", err)
	}
	return raw, nil
}
