// Package avatar fetches account avatar images for badge rendering.
package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/influence/pkg/logger"
	"github.com/okian/influence/pkg/metrics"
	"github.com/okian/influence/pkg/tracing"
)

// Defaults.
const (
	DefaultMaxBytes = 5 << 20
	DefaultTimeout  = 5 * time.Second

	lowResSuffix  = "_normal"
	highResSuffix = "_400x400"
)

// UpgradeURL swaps the low-resolution avatar variant for the 400x400 one.
func UpgradeURL(u string) string {
	return strings.Replace(u, lowResSuffix, highResSuffix, 1)
}

// Fetcher downloads avatar bytes with a single bounded GET.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   logger.Logger
}

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			f.client = hc
		}
	}
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes bounds the accepted body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// Fetch returns the body at url. Non-2xx statuses and transport failures
// are ErrFetch; bodies over the size bound are ErrTooLarge.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.Tracer().Start(ctx, "avatar.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("avatar.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.RecordUpstreamLatency("avatar", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordUpstreamRequest("avatar", "transport_error")
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordUpstreamRequest("avatar", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	metrics.RecordAvatarBytes(len(data))
	f.logger.Debug(ctx, "avatar fetched", logger.String("url", url), logger.Int("bytes", len(data)))
	return data, nil
}
