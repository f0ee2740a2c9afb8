package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrUnhealthy is returned when /healthz does not answer 200.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrNotPNG is returned when a badge body lacks the PNG signature.
	ErrNotPNG = errors.New("badge is not a png")
	// ErrBadgeSize is returned when a badge decodes to unexpected dimensions.
	ErrBadgeSize = errors.New("unexpected badge size")
	// ErrScoreRange is returned when a score falls outside 0..1000.
	ErrScoreRange = errors.New("score out of range")
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}
