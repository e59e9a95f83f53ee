// Package proxy opens response streams against the pdflearn backend.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/stream"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8000"
	defaultTimeout   = 30 * time.Second
	streamingTimeout = 10 * time.Minute
	maxRetries       = 3
	initialBackoff   = 500 * time.Millisecond
)

var endpoints = map[stream.EndpointKind]string{
	stream.EndpointChat:    "/ai/chat",
	stream.EndpointAnalyze: "/ai/analyze/stream",
}

// Client talks to the backend over HTTP. It implements stream.Opener.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	streamTimeout time.Duration
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-wide timeout: it would also bound reading a long stream.
		httpClient:    &http.Client{},
		streamTimeout: streamingTimeout,
	}
}

// WithStreamTimeout bounds the total duration of a single stream.
func (c *Client) WithStreamTimeout(d time.Duration) *Client {
	c.streamTimeout = d
	return c
}

// Open posts req to its endpoint and returns the event-stream body. The
// caller must close it; closing also releases the request context.
func (c *Client) Open(ctx context.Context, req stream.Request) (io.ReadCloser, error) {
	path, ok := endpoints[req.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint kind %q", req.Kind)
	}
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		rc, err := c.doStream(ctx, path, body)
		if err == nil {
			return rc, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("backend busy after %d retries: %w", maxRetries, lastErr)
}

// busyError is returned on HTTP 429 and 503.
type busyError struct {
	status int
}

func (e *busyError) Error() string {
	return fmt.Sprintf("backend busy (HTTP %d)", e.status)
}

func isRetryable(err error) bool {
	var b *busyError
	return errors.As(err, &b)
}

func (c *Client) doStream(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		cancel()
		return nil, &busyError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &stream.UpstreamError{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, errorMessage(respBody))}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// errorMessage extracts the message of a JSON error envelope, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("requesting health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}
