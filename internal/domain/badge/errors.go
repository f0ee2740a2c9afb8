package badge

import "errors"

// Sentinel kinds for badge errors.
var (
	// ErrRender is returned when a badge could not be drawn or encoded. No
	// partial image accompanies it.
	ErrRender = errors.New("badge render failed")

	// ErrAvatarDecode marks avatar bytes that could not be decoded. It never
	// escapes Render; the badge is drawn without the avatar instead.
	ErrAvatarDecode = errors.New("avatar decode failed")
)
