// Package twitter is the upstream data gateway: it looks accounts up and
// counts their keyword mentions over the v2 REST API.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/okian/influence/internal/domain/model"
	"github.com/okian/influence/internal/domain/scoring"
	"github.com/okian/influence/pkg/logger"
	"github.com/okian/influence/pkg/metrics"
	"github.com/okian/influence/pkg/tracing"
)

// Defaults.
const (
	DefaultBaseURL = "https://api.twitter.com/2"
	DefaultTimeout = 10 * time.Second

	// SearchPageSize is the number of posts requested from the recent search
	// endpoint, which also bounds the mention count.
	SearchPageSize = 100

	userFields = "public_metrics,created_at,profile_image_url"

	// maxBodyBytes bounds how much of an upstream body is read.
	maxBodyBytes = 1 << 20

	opLookup = "lookup_user"
	opSearch = "count_mentions"
)

// DefaultKeywords is the project keyword set searched for in an account's
// recent posts.
var DefaultKeywords = []string{"مشروعنا", "اسم_مشروعك_الفريد", "أفضل_تطبيق"}

// Gateway is what the service needs from the upstream.
type Gateway interface {
	LookupUser(ctx context.Context, username string) (model.Profile, error)
	CountMentions(ctx context.Context, username string) (int, error)
}

// Client implements Gateway. Each call is a single attempt; timeouts are
// owned by the underlying http.Client.
type Client struct {
	baseURL  string
	token    string
	keywords []string
	client   *http.Client
	timeout  time.Duration
	logger   logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. to point at a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithBearerToken sets the app-only bearer token sent on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithKeywords replaces the searched keyword set. Blank entries are dropped.
func WithKeywords(keywords ...string) Option {
	return func(c *Client) {
		cleaned := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.TrimSpace(k); k != "" {
				cleaned = append(cleaned, k)
			}
		}
		if len(cleaned) > 0 {
			c.keywords = cleaned
		}
	}
}

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client. It
// has no effect when WithHTTPClient supplies a client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a gateway client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		keywords: append([]string(nil), DefaultKeywords...),
		timeout:  DefaultTimeout,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Keywords returns a copy of the searched keyword set.
func (c *Client) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

type apiError struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

type userResponse struct {
	Data *struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		CreatedAt       string `json:"created_at"`
		ProfileImageURL string `json:"profile_image_url"`
		PublicMetrics   struct {
			FollowersCount int `json:"followers_count"`
			FollowingCount int `json:"following_count"`
			TweetCount     int `json:"tweet_count"`
			ListedCount    int `json:"listed_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type searchResponse struct {
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

// LookupUser fetches profile and public metrics of username. Non-200
// responses and transport failures are returned as *UpstreamError.
func (c *Client) LookupUser(ctx context.Context, username string) (model.Profile, error) {
	ctx, span := tracing.Tracer().Start(ctx, "twitter.LookupUser")
	defer span.End()
	span.SetAttributes(attribute.String("twitter.username", username))

	params := url.Values{}
	params.Set("user.fields", userFields)
	endpoint := c.baseURL + "/users/by/username/" + url.PathEscape(username) + "?" + params.Encode()

	status, body, err := c.get(ctx, opLookup, endpoint)
	if err != nil {
		upErr := &UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
		span.RecordError(upErr)
		span.SetStatus(codes.Error, "transport")
		return model.Profile{}, upErr
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status != http.StatusOK {
		upErr := &UpstreamError{Status: status, Message: lookupErrorMessage(status, body)}
		span.RecordError(upErr)
		span.SetStatus(codes.Error, upErr.Message)
		c.logger.Debug(ctx, "user lookup rejected",
			logger.String("username", username),
			logger.Int("status", status),
			logger.String("message", upErr.Message))
		return model.Profile{}, upErr
	}

	var parsed userResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Profile{}, fmt.Errorf("%w: user lookup: %w", ErrDecode, err)
	}
	if parsed.Data == nil {
		// A 200 without data is how the API reports some lookup errors.
		msg := msgLookupFailed
		if len(parsed.Errors) > 0 && parsed.Errors[0].Detail != "" {
			msg = parsed.Errors[0].Detail
		}
		return model.Profile{}, &UpstreamError{Status: http.StatusNotFound, Message: msg}
	}

	d := parsed.Data
	createdAt := scoring.ParseCreatedAt(d.CreatedAt)
	if createdAt.IsZero() {
		c.logger.Debug(ctx, "account creation time missing or unparsable",
			logger.String("username", username),
			logger.String("created_at", d.CreatedAt))
	}

	return model.Profile{
		ID:        d.ID,
		Username:  d.Username,
		Name:      d.Name,
		AvatarURL: d.ProfileImageURL,
		Metrics: model.AccountMetrics{
			FollowersCount: d.PublicMetrics.FollowersCount,
			TweetCount:     d.PublicMetrics.TweetCount,
			CreatedAt:      createdAt,
		},
	}, nil
}

// CountMentions returns how many of the account's recent posts match the
// keyword query, bounded by SearchPageSize. Any failure is ErrSearchFailed.
func (c *Client) CountMentions(ctx context.Context, username string) (int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "twitter.CountMentions")
	defer span.End()

	params := url.Values{}
	params.Set("query", QueryFor(c.keywords, username))
	params.Set("max_results", strconv.Itoa(SearchPageSize))
	endpoint := c.baseURL + "/tweets/search/recent?" + params.Encode()

	status, body, err := c.get(ctx, opSearch, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return 0, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if status != http.StatusOK {
		span.SetStatus(codes.Error, http.StatusText(status))
		return 0, fmt.Errorf("%w: status %d", ErrSearchFailed, status)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %w: %w", ErrSearchFailed, ErrDecode, err)
	}
	count := parsed.Meta.ResultCount
	if count < 0 {
		count = 0
	}
	span.SetAttributes(attribute.Int("twitter.mentions", count))
	return count, nil
}

// QueryFor builds the recent-search query: any keyword, authored by username.
func QueryFor(keywords []string, username string) string {
	return "(" + strings.Join(keywords, " OR ") + ") from:" + username
}

// get performs a single GET and returns status and body. Only transport and
// body-read failures are errors.
func (c *Client) get(ctx context.Context, op, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecordUpstreamLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordUpstreamRequest(op, "transport_error")
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordUpstreamRequest(op, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s body: %w", op, err)
	}
	return resp.StatusCode, body, nil
}

// lookupErrorMessage extracts the message of a failed lookup: the first
// error detail, a generic message when the body is JSON without one, or the
// status when it is not JSON at all.
func lookupErrorMessage(status int, body []byte) string {
	var parsed struct {
		Errors []apiError `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Sprintf(msgConnectionFmt, status)
	}
	if len(parsed.Errors) > 0 && parsed.Errors[0].Detail != "" {
		return parsed.Errors[0].Detail
	}
	return msgLookupFailed
}

// IsUpstream reports whether err carries an upstream status and returns it.
func IsUpstream(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr, true
	}
	return nil, false
}
