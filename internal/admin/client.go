// Package admin is a client for the mock engine's /__admin HTTP API.
package admin

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/btouchard/tunnelmock/internal/stub"
)

const (
	mappingsPath = "/__admin/mappings"
	requestsPath = "/__admin/requests"
	resetPath    = "/__admin/reset"

	maxErrorBody = 512
)

// Client talks to one engine base URL. Every call is a single request with
// no retry; callers that need to wait wrap calls in poll.Until.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithInsecureTLS disables certificate verification. Tunnel relays often
// present certificates that do not chain to the system roots.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.httpClient.Transport = insecureTransport()
	}
}

// InsecureHTTPClient is a plain HTTP client with the same relaxed TLS
// verification as WithInsecureTLS.
func InsecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: insecureTransport()}
}

func insecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // test tunnels only
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for baseURL (for example http://localhost:8123).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the engine URL this client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateStub installs a stub definition.
func (c *Client) CreateStub(ctx context.Context, def stub.Definition) (*Response, error) {
	payload, err := def.JSON()
	if err != nil {
		return nil, err
	}
	return c.CreateStubJSON(ctx, payload)
}

// CreateStubJSON installs a stub given as a raw admin API payload.
func (c *Client) CreateStubJSON(ctx context.Context, payload []byte) (*Response, error) {
	resp, err := c.send(ctx, http.MethodPost, mappingsPath, payload)
	if err != nil {
		return nil, fmt.Errorf("creating stub: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading stub response: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Op: "creating stub", StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// ListRequests returns the captured request journal.
func (c *Client) ListRequests(ctx context.Context) ([]CapturedRequest, error) {
	resp, err := c.send(ctx, http.MethodGet, requestsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError("listing requests", resp)
	}

	var result serveEventsResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding serve events: %w", err)
	}

	captured := make([]CapturedRequest, 0, len(result.Requests))
	for _, ev := range result.Requests {
		captured = append(captured, CapturedRequest{
			ID:         ev.ID,
			Method:     ev.Request.Method,
			URL:        ev.Request.URL,
			Body:       ev.Request.Body,
			LoggedDate: time.UnixMilli(ev.Request.LoggedDate),
			Matched:    ev.WasMatched,
		})
	}
	return captured, nil
}

// ClearRequests empties the request journal.
func (c *Client) ClearRequests(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodDelete, requestsPath, nil)
	if err != nil {
		return fmt.Errorf("clearing requests: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return statusError("clearing requests", resp)
	}
	return nil
}

// HealthCheck issues GET /__admin/mappings and returns the status code.
// Any 2xx means healthy; err is set only on transport failure.
func (c *Client) HealthCheck(ctx context.Context) (int, error) {
	resp, err := c.send(ctx, http.MethodGet, mappingsPath, nil)
	if err != nil {
		return 0, fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Healthy is HealthCheck folded into a single error for polling.
func (c *Client) Healthy(ctx context.Context) error {
	code, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !isSuccess(code) {
		return &StatusError{Op: "health check", StatusCode: code}
	}
	return nil
}

// ListMappings returns the stubs currently installed.
func (c *Client) ListMappings(ctx context.Context) ([]Mapping, error) {
	resp, err := c.send(ctx, http.MethodGet, mappingsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError("listing mappings", resp)
	}

	var result mappingsResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding mappings: %w", err)
	}
	return result.Mappings, nil
}

// Reset removes all stubs and captured requests.
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, resetPath, nil)
	if err != nil {
		return fmt.Errorf("resetting engine: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return statusError("resetting engine", resp)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
