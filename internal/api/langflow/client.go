package langflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultUserAgent = "flowchat/1.0"

	// Bounds on how much of a response body is read.
	maxResponseBytes = 8 << 20
	maxErrorBodyLen  = 4 << 10
)

// ErrResponseTooLarge is returned when a 2xx body exceeds maxResponseBytes.
var ErrResponseTooLarge = errors.New("response body too large")

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client posts run requests to a Langflow endpoint. The endpoint and key are
// passed per call because the configuration they come from may change.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client whose transport is instrumented with OpenTelemetry.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run posts req to endpoint and returns the raw response body. The deadline
// comes from ctx. A non-2xx status returns *StatusError.
func (c *Client) Run(ctx context.Context, endpoint, apiKey string, req *RunRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq, apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}

	return respBody, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// statusText returns the reason phrase, e.g. "Not Found" for "404 Not Found".
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
