package twitter

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for gateway errors.
var (
	ErrUpstream            = errors.New("upstream request failed")
	ErrUpstreamNotFound    = errors.New("upstream user not found")
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	ErrSearchFailed        = errors.New("mention search failed")
	ErrDecode              = errors.New("upstream response malformed")
)

// Fallback messages used when the upstream body carries no detail.
const (
	msgLookupFailed  = "user not found or upstream API problem"
	msgConnectionFmt = "upstream connection error: %d"
)

// UpstreamError carries the status and message of a failed user lookup so the
// HTTP layer can propagate both unchanged.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// Kind maps the status onto a sentinel error.
func (e *UpstreamError) Kind() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrUpstreamNotFound
	case http.StatusTooManyRequests:
		return ErrUpstreamRateLimited
	default:
		return ErrUpstream
	}
}

// Unwrap lets errors.Is match the sentinel kind.
func (e *UpstreamError) Unwrap() error { return e.Kind() }
