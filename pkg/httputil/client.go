package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/observability"
)

const defaultTimeout = 10 * time.Second

// Client performs JSON requests against one base URL.
type Client struct {
	http    *http.Client
	base    string
	headers map[string]string
	policy  Policy
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithHeader adds a header sent with every request.
func WithHeader(name, value string) ClientOption {
	return func(c *Client) { c.headers[name] = value }
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a Client for base, e.g. "http://127.0.0.1:6806".
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		base:    strings.TrimRight(base, "/"),
		headers: make(map[string]string),
		policy:  DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) { c.http.Timeout = d }

// Base returns the base URL.
func (c *Client) Base() string { return c.base }

// PostJSON posts in as JSON to path and decodes the response into out.
// Transient failures are retried according to the client policy.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "encode request for %s", path)
	}
	err = Retry(ctx, c.policy, func() error {
		return c.do(ctx, path, body, out)
	})
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host := req.URL.Host
	hooks.OnRequest(ctx, http.MethodPost, host, path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodPost, host, path, err)
		return &RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "POST %s", path)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		hooks.OnError(ctx, http.MethodPost, host, path, err)
		return &RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "read response of %s", path)}
	}
	hooks.OnResponse(ctx, http.MethodPost, host, path, resp.StatusCode, time.Since(start))
	if err := CheckStatus(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "decode response of %s", path)
	}
	return nil
}

// CheckStatus maps an HTTP status to an error. 429 and 5xx are retryable.
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "status %d", code)
	case code == http.StatusTooManyRequests || code >= 500:
		return &RetryableError{Err: errors.New(errors.ErrCodeNetwork, "status %d", code)}
	default:
		return errors.New(errors.ErrCodeNetwork, "status %d", code)
	}
}

// String implements fmt.Stringer for debug logging.
func (c *Client) String() string { return fmt.Sprintf("httputil.Client(%s)", c.base) }
