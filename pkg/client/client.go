// Package client provides the Go SDK for the OCR document pipeline's REST API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/u13596216391/OCR-v1/pkg/endpoint"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	contentTypeJSON = "application/json"

	// RequestIDHeader carries a per-call identifier that the development
	// proxy and backend logs can correlate on.
	RequestIDHeader = "X-Request-ID"

	defaultMaxResponseBytes = 64 << 20
)

// ErrRelativeBaseURL is returned by New when the base URL is root-relative
// and no origin was supplied with WithOrigin.
var ErrRelativeBaseURL = errors.New("base URL is root-relative; set an origin with WithOrigin")

// Client is the document API entry point. It holds no mutable state after
// New returns and is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL          endpoint.BaseURL
	origin           string
	httpClient       *http.Client
	bearerToken      string
	tokenSource      oauth2.TokenSource
	userAgent        string
	maxResponseBytes int64
	logger           *zap.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithOrigin anchors a root-relative base URL such as "/api" to origin
// (e.g. "http://localhost:8082"). It has no effect on absolute base URLs.
func WithOrigin(origin string) Option {
	return func(c *Client) error {
		c.origin = origin
		return nil
	}
}

// WithBearerToken attaches a static token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTokenSource attaches a token from ts to every request. The token
// source owns refresh; wrap it in oauth2.ReuseTokenSource to cache.
// It takes precedence over WithBearerToken.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) error {
		c.tokenSource = ts
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed backend.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		}
		return nil
	}
}

// WithLogger logs one debug line per request. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
// Bodies larger than n fail with an error instead of being truncated.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) error {
		if n <= 0 {
			return fmt.Errorf("max response bytes must be positive, got %d", n)
		}
		c.maxResponseBytes = n
		return nil
	}
}

// New creates a Client that prefixes every request path with baseURL.
//
//	c, err := client.New(endpoint.FromEnv(),
//	    client.WithOrigin("http://localhost:8082"),
//	)
//
// The default http.Client has no timeout; bound calls with the context.
func New(baseURL endpoint.BaseURL, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:          baseURL,
		httpClient:       &http.Client{},
		maxResponseBytes: defaultMaxResponseBytes,
		logger:           zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	if baseURL == "" {
		return nil, errors.New("base URL must not be empty")
	}
	if !baseURL.IsAbsolute() {
		if c.origin == "" && baseURL.IsRootRelative() {
			return nil, ErrRelativeBaseURL
		}
		abs, err := baseURL.Absolute(c.origin)
		if err != nil {
			return nil, fmt.Errorf("resolve base URL: %w", err)
		}
		c.baseURL = abs
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL endpoint.BaseURL, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// BaseURL returns the absolute base URL requests are sent to.
func (c *Client) BaseURL() endpoint.BaseURL {
	return c.baseURL
}

// Response is a pass-through view of an HTTP response. Body holds the raw
// bytes exactly as the server sent them.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// JSON returns the body as a json.RawMessage.
func (r *Response) JSON() json.RawMessage {
	return json.RawMessage(r.Body)
}

// newRequest builds a request for path relative to the base URL.
// contentType is only set when body is non-nil.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.Join(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		if contentType == "" {
			contentType = contentTypeJSON
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	return req, nil
}

// newJSONRequest marshals v and builds a JSON request. A json.RawMessage or
// []byte payload is sent verbatim.
func (c *Client) newJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	var payload []byte
	switch b := v.(type) {
	case json.RawMessage:
		payload = b
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}
	return c.newRequest(ctx, method, path, bytes.NewReader(payload), contentTypeJSON)
}

// do executes req and returns the response untouched. Non-2xx responses
// are returned as *APIError; transport errors are wrapped.
func (c *Client) do(req *http.Request) (*Response, error) {
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxResponseBytes)
	}

	c.logger.Debug("request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokenSource != nil {
		tok, err := c.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	return nil
}
