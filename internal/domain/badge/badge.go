// Package badge composes the shareable score badge: brand background, the
// account avatar and three centered text lines, encoded as PNG.
package badge

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"strconv"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/okian/influence/pkg/logger"
	"github.com/okian/influence/pkg/metrics"
	"github.com/okian/influence/pkg/tracing"
)

// Canvas geometry.
const (
	Width      = 800
	Height     = 450
	AvatarSize = 180
	AvatarTop  = 50

	titleBaseline  = 250
	scoreBaseline  = 300
	handleBaseline = 360

	// maxAvatarPixels rejects avatars whose header promises a huge canvas
	// before any pixel data is decoded.
	maxAvatarPixels = 4096 * 4096
)

// DefaultTitle is drawn above the score.
const DefaultTitle = "Project Influence Score"

// Palette.
var (
	Background  = color.RGBA{R: 0x1D, G: 0xA1, B: 0xF2, A: 0xFF}
	TitleColor  = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	ScoreColor  = color.RGBA{R: 0xFF, G: 0xFF, B: 0x00, A: 0xFF}
	HandleColor = color.RGBA{R: 0xCC, G: 0xCC, B: 0xCC, A: 0xFF}
)

// Avatar is the optional avatar input of a render: either raw image bytes or
// explicitly nothing.
type Avatar struct {
	data []byte
}

// NoAvatar renders the badge without an avatar.
func NoAvatar() Avatar { return Avatar{} }

// AvatarBytes wraps encoded image bytes (png, jpeg, gif or webp). Empty input
// is the same as NoAvatar.
func AvatarBytes(b []byte) Avatar { return Avatar{data: b} }

// Present reports whether avatar bytes were supplied.
func (a Avatar) Present() bool { return len(a.data) > 0 }

// Renderer draws badges. It holds only immutable configuration and is safe
// for concurrent use.
type Renderer struct {
	fonts  *Fonts
	title  string
	logger logger.Logger
}

// Option applies a configuration option to the Renderer.
type Option func(*Renderer)

// WithTitle replaces the title line.
func WithTitle(title string) Option {
	return func(r *Renderer) {
		if title != "" {
			r.title = title
		}
	}
}

// WithLogger sets the renderer logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRenderer creates a renderer drawing with fonts. A nil handle falls back
// to the embedded fonts.
func NewRenderer(fonts *Fonts, opts ...Option) *Renderer {
	if fonts == nil {
		fonts = LoadFonts("", 0, 0)
	}
	r := &Renderer{
		fonts:  fonts,
		title:  DefaultTitle,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fonts returns the font handle in use.
func (r *Renderer) Fonts() *Fonts { return r.fonts }

// Render draws the badge for username and score and returns PNG bytes.
// Avatar bytes that fail to decode are skipped; the only errors are drawing
// or encoding failures, reported as ErrRender.
func (r *Renderer) Render(ctx context.Context, username string, score int, avatar Avatar) (out []byte, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "badge.Render")
	defer span.End()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("%w: panic while drawing: %v", ErrRender, rec)
		}
		if err != nil {
			span.RecordError(err)
			metrics.RecordBadgeError()
			return
		}
		metrics.RecordBadgeRendered(len(out), float64(time.Since(start).Milliseconds()))
	}()

	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	if avatar.Present() {
		if err := r.pasteAvatar(canvas, avatar.data); err != nil {
			_ = metrics.RecordAvatarFetch(metrics.AvatarUndecodable)
			r.logger.Debug(ctx, "avatar skipped", logger.String("username", username), logger.Error(err))
		}
	}

	faces, err := r.fonts.faces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	defer faces.Close()

	drawCentered(canvas, faces.small, TitleColor, r.fonts.text(r.title), titleBaseline)
	drawCentered(canvas, faces.large, ScoreColor, strconv.Itoa(score), scoreBaseline)
	drawCentered(canvas, faces.small, HandleColor, r.fonts.text("@"+username), handleBaseline)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// pasteAvatar decodes data, scales it to AvatarSize and composites it
// horizontally centered at AvatarTop using its own alpha channel.
func (r *Renderer) pasteAvatar(canvas *image.RGBA, data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAvatarDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxAvatarPixels {
		return fmt.Errorf("%w: unsupported dimensions %dx%d", ErrAvatarDecode, cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAvatarDecode, err)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, AvatarSize, AvatarSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)

	left := Width/2 - AvatarSize/2
	dst := image.Rect(left, AvatarTop, left+AvatarSize, AvatarTop+AvatarSize)
	draw.Draw(canvas, dst, scaled, image.Point{}, draw.Over)
	return nil
}

// drawCentered draws text horizontally centered with its baseline at y.
func drawCentered(dst draw.Image, face font.Face, c color.Color, text string, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	advance := d.MeasureString(text)
	d.Dot = fixed.Point26_6{
		X: fixed.I(Width/2) - advance/2,
		Y: fixed.I(y),
	}
	d.DrawString(text)
}
