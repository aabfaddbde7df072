package common

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/veiloq/venue-adapters/pkg/logging"
	"github.com/veiloq/venue-adapters/pkg/ratelimit"
)

// DebugClientConfig holds configuration for the HTTP debug client.
type DebugClientConfig struct {
	*ClientConfig

	LogRequestBody  bool
	LogResponseBody bool

	// MaxBodyLogSize caps how much of a body lands in the log.
	MaxBodyLogSize int
}

// DefaultDebugConfig returns a default debug client configuration.
func DefaultDebugConfig() *DebugClientConfig {
	return &DebugClientConfig{
		ClientConfig:    DefaultConfig(),
		LogRequestBody:  true,
		LogResponseBody: true,
		MaxBodyLogSize:  4096,
	}
}

// NewDebugHTTPClient wraps the base client with verbose wire logging.
// Useful when a venue rejects a signed request and the exact bytes on
// the wire are what matters.
func NewDebugHTTPClient(config *DebugClientConfig) HTTPClient {
	if config == nil {
		config = DefaultDebugConfig()
	}

	if _, isZap := config.Logger.(*logging.ZapLogger); !isZap {
		config.Logger = logging.NewZapLogger(
			logging.WithDebugLevel(),
			logging.WithDevelopmentMode(),
		)
	}

	return &debugClient{
		client: NewHTTPClient(config.ClientConfig).(*client),
		config: config,
	}
}

type debugClient struct {
	client *client
	config *DebugClientConfig
}

// Do implements HTTPClient with request/response dumps at debug level.
func (c *debugClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logRequest(req)

	resp, err := c.client.Do(ctx, req)

	duration := time.Since(start)
	if err != nil {
		c.client.logger.Error("http request failed",
			logging.String("method", req.Method),
			logging.String("url", req.URL.String()),
			logging.Duration("duration", duration),
			logging.Error(err))
		return nil, err
	}

	c.logResponse(req, resp, duration)
	return resp, nil
}

// Get implements HTTPClient.
func (c *debugClient) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return c.Send(ctx, http.MethodGet, url, header, nil)
}

// Send implements HTTPClient.
func (c *debugClient) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
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
func (c *debugClient) SetRateLimit(limit ratelimit.Rate) error {
	return c.client.SetRateLimit(limit)
}

func (c *debugClient) logRequest(req *http.Request) {
	logger := c.client.logger

	var dump []byte
	var err error

	if c.config.LogRequestBody && req.Body != nil {
		bodyBytes, bodyErr := io.ReadAll(req.Body)
		if bodyErr != nil {
			logger.Warn("failed to read request body for logging", logging.Error(bodyErr))
		} else {
			logBody := bodyBytes
			if len(bodyBytes) > c.config.MaxBodyLogSize {
				logBody = bodyBytes[:c.config.MaxBodyLogSize]
			}
			dump, err = httputil.DumpRequestOut(req, false)
			if err == nil {
				dump = append(dump, "\r\n"...)
				dump = append(dump, logBody...)
			}
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	} else {
		dump, err = httputil.DumpRequestOut(req, c.config.LogRequestBody)
	}

	if err != nil {
		logger.Warn("failed to dump request for logging", logging.Error(err))
	}

	logger.Debug("http request",
		logging.String("method", req.Method),
		logging.String("url", req.URL.String()),
		logging.String("dump", string(dump)))
}

func (c *debugClient) logResponse(req *http.Request, resp *http.Response, duration time.Duration) {
	logger := c.client.logger

	var dump []byte
	var err error

	if c.config.LogResponseBody && resp.Body != nil {
		bodyBytes, bodyErr := io.ReadAll(resp.Body)
		if bodyErr != nil {
			logger.Warn("failed to read response body for logging", logging.Error(bodyErr))
		} else {
			logBody := bodyBytes
			if len(bodyBytes) > c.config.MaxBodyLogSize {
				logBody = bodyBytes[:c.config.MaxBodyLogSize]
			}
			dump, err = httputil.DumpResponse(resp, false)
			if err == nil {
				dump = append(dump, "\r\n"...)
				dump = append(dump, logBody...)
			}
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	} else {
		dump, err = httputil.DumpResponse(resp, c.config.LogResponseBody)
	}

	if err != nil {
		logger.Warn("failed to dump response for logging", logging.Error(err))
	}

	logger.Debug("http response",
		logging.String("method", req.Method),
		logging.String("url", req.URL.String()),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", duration),
		logging.String("dump", string(dump)))
}
