// Package probe drives a running influence service over HTTP. It backs the
// influencectl command and end-to-end smoke checks.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/influence/internal/domain/types"
	"github.com/okian/influence/pkg/logger"
)

// Defaults for a local service.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 16 << 20
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Client calls the score and badge endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a service root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport. Timeout options applied later
// mutate the given client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root in use.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the service answers /healthz with 200.
func (c *Client) Health(ctx context.Context) error {
	resp, body, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrUnhealthy, resp.StatusCode, truncate(body))
	}
	c.logger.Debug(ctx, "service is healthy", logger.String("url", c.baseURL))
	return nil
}

// Score fetches the influence score of username.
func (c *Client) Score(ctx context.Context, username string) (types.ScoreResponse, error) {
	var out types.ScoreResponse
	resp, body, err := c.get(ctx, "/api/score/"+url.PathEscape(username))
	if err != nil {
		return out, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb types.ErrorResponse
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			apiErr.Code, apiErr.Message = eb.Code, eb.Error
		} else {
			apiErr.Message = truncate(body)
		}
		return out, apiErr
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode score: %w", err)
	}
	c.logger.Debug(ctx, "score fetched",
		logger.String("username", out.Username),
		logger.Int("score", out.Score))
	return out, nil
}

// Badge fetches the PNG badge for username and score.
func (c *Client) Badge(ctx context.Context, username string, score int) ([]byte, error) {
	resp, body, err := c.get(ctx, "/api/score/image/"+url.PathEscape(username)+"/"+strconv.Itoa(score))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: truncate(body)}
	}
	if !bytes.HasPrefix(body, pngSignature) {
		return nil, ErrNotPNG
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

func truncate(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
