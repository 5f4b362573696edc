package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-resty/resty/v2"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 12 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Client wraps resty with logging, trace propagation and size limits
type Client struct {
	client *resty.Client
	logger ectologger.Logger
}

// Config holds HTTP client configuration
type Config struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	Transport    http.RoundTripper
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		RetryCount:   1,
		RetryWait:    200 * time.Millisecond,
		RetryMaxWait: 2 * time.Second,
		UserAgent:    "sativar-engine",
	}
}

// NewClient creates a new HTTP client. Only statuses reported by IsRetryableStatus
// and transport errors are retried.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetResponseBodyLimit(MaxResponseSize).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && IsRetryableStatus(r.StatusCode())
		})
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Transport != nil {
		rc.SetTransport(cfg.Transport)
	}

	return &Client{client: rc, logger: logger}
}

// Response represents an HTTP response
type Response struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"-"`
	BodyJSON    any               `json:"body,omitempty"`
	ContentType string            `json:"content_type"`
	Duration    time.Duration     `json:"duration_ms"`
}

// RequestOption customizes a single request
type RequestOption func(r *resty.Request)

// WithBasicAuth sets HTTP Basic credentials
func WithBasicAuth(username, password string) RequestOption {
	return func(r *resty.Request) {
		r.SetBasicAuth(username, password)
	}
}

// WithQueryParam adds a query parameter
func WithQueryParam(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}

// Get performs a GET request. Non-2xx statuses are returned as a Response, not an error.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "HTTPClient.Get")
	defer span.End()

	req := c.client.R().SetContext(ctx)
	tracing.Inject(ctx, func(k, v string) { req.SetHeader(k, v) })
	for _, opt := range opts {
		opt(req)
	}

	resp, err := req.Get(url)
	if err != nil {
		tracing.Fail(span, err, "request failed")
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: GET %s", url)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	headers := make(map[string]string)
	for key, values := range resp.Header() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	response := &Response{
		StatusCode:  resp.StatusCode(),
		Headers:     headers,
		Body:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		Duration:    resp.Time(),
	}

	c.logger.WithContext(ctx).Debugf("HTTP GET %s -> %d (%s)", url, response.StatusCode, response.Duration)

	return response, nil
}
