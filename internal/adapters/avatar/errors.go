package avatar

import "errors"

// Sentinel kinds for avatar fetch errors.
var (
	ErrFetch    = errors.New("avatar fetch failed")
	ErrTooLarge = errors.New("avatar too large")
)
