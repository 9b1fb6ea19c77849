// Package api is the HTTP/JSON client for the event platform's REST service.
//
// Every call except account login and registration is authorized with the
// bearer token of the auth.Identity carried by the request context. Response
// bodies are decoded into fixed shapes and validated; anything that does not
// fit is reported as ErrMalformedResponse instead of being passed on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/metrics"
)

const maxErrorBody = 64 << 10

var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err if it wraps a *StatusError, else 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues the request and returns the response for 2xx statuses. The
// caller closes the body. Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, op, method, path string, body any, authed bool) (*http.Response, error) {
	var token string
	if authed {
		id, err := auth.Require(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		token = id.Token
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveCall(op, "error", elapsed)
		c.logger.Debug("api call failed", "op", op, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.logger.Debug("api call", "op", op, "status", resp.StatusCode, "duration", elapsed, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		c.metrics.ObserveCall(op, fmt.Sprintf("status_%d", resp.StatusCode), elapsed)
		return nil, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    readMessage(resp.Body),
		}
	}
	c.metrics.ObserveCall(op, "ok", elapsed)
	return resp, nil
}

// readMessage extracts a human-readable message from an error body, which
// may be JSON ({message}, {detail} or {error}) or plain text.
func readMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(b))

	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(b, &payload) != nil {
		return text
	}
	if payload.Message != "" {
		return payload.Message
	}
	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
		return detail
	}
	if payload.Error != "" {
		return payload.Error
	}
	return text
}

type validator interface {
	Validate() error
}

func (c *Client) getJSON(ctx context.Context, op, path string, v any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(op, resp.Body, v)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, body, v any) error {
	resp, err := c.do(ctx, op, method, path, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decode(op, resp.Body, v)
}

func decode(op string, r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return nil
}

// validateAll checks every element of a decoded list.
func validateAll[T validator](op string, items []T) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
		}
	}
	return nil
}
