package badge

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FontSource reports which link of the fallback chain supplied the fonts.
type FontSource string

// Font sources, in order of preference.
const (
	FontFile     FontSource = "file"
	FontEmbedded FontSource = "embedded"
	FontBasic    FontSource = "basic"
)

// Default face sizes in points at 72 DPI, i.e. pixels.
const (
	DefaultLargeSize = 35
	DefaultSmallSize = 25
	fontDPI          = 72
)

// Fonts is an immutable font handle built once at startup and shared by all
// renders. Parsed fonts are safe for concurrent use; faces are not, so a
// fresh pair is created per render.
type Fonts struct {
	source   FontSource
	emphasis *opentype.Font
	regular  *opentype.Font
	large    float64
	small    float64
	fallback error
}

// LoadFonts builds the font handle. The chain is: the font file at path (used
// for every line), then the embedded Go fonts (bold for the score), then the
// built-in 7x13 bitmap face. It never fails; FallbackReason explains why a
// preferred link was skipped.
func LoadFonts(path string, large, small float64) *Fonts {
	if large <= 0 {
		large = DefaultLargeSize
	}
	if small <= 0 {
		small = DefaultSmallSize
	}
	f := &Fonts{large: large, small: small}

	if path != "" {
		parsed, err := parseFontFile(path)
		if err == nil {
			f.source, f.emphasis, f.regular = FontFile, parsed, parsed
			return f
		}
		f.fallback = err
	}

	bold, errBold := opentype.Parse(gobold.TTF)
	regular, errRegular := opentype.Parse(goregular.TTF)
	if errBold == nil && errRegular == nil {
		f.source, f.emphasis, f.regular = FontEmbedded, bold, regular
		return f
	}
	if f.fallback == nil {
		f.fallback = fmt.Errorf("parse embedded fonts: bold=%v regular=%v", errBold, errRegular)
	}

	basic := BasicFonts()
	basic.fallback = f.fallback
	return basic
}

// BasicFonts returns the last link of the chain: a fixed bitmap face that
// covers printable ASCII only.
func BasicFonts() *Fonts {
	return &Fonts{source: FontBasic, large: DefaultLargeSize, small: DefaultSmallSize}
}

func parseFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return parsed, nil
}

// Source reports which link of the chain is in use.
func (f *Fonts) Source() FontSource { return f.source }

// FallbackReason is the error that pushed loading past the configured file,
// or nil when no configured link was skipped.
func (f *Fonts) FallbackReason() error { return f.fallback }

type faceSet struct {
	large font.Face
	small font.Face
}

func (s faceSet) Close() {
	_ = s.large.Close()
	_ = s.small.Close()
}

func (f *Fonts) faces() (faceSet, error) {
	if f.source == FontBasic || f.emphasis == nil || f.regular == nil {
		return faceSet{large: basicfont.Face7x13, small: basicfont.Face7x13}, nil
	}
	large, err := opentype.NewFace(f.emphasis, &opentype.FaceOptions{Size: f.large, DPI: fontDPI, Hinting: font.HintingFull})
	if err != nil {
		return faceSet{}, fmt.Errorf("large face: %w", err)
	}
	small, err := opentype.NewFace(f.regular, &opentype.FaceOptions{Size: f.small, DPI: fontDPI, Hinting: font.HintingFull})
	if err != nil {
		_ = large.Close()
		return faceSet{}, fmt.Errorf("small face: %w", err)
	}
	return faceSet{large: large, small: small}, nil
}

// asciiFold strips accents and replaces anything outside printable ASCII
// with '?', for the bitmap face.
func asciiFold(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if r >= ' ' && r <= '~' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}

// text prepares s for drawing with the faces of this handle.
func (f *Fonts) text(s string) string {
	if f.source == FontBasic {
		return asciiFold(s)
	}
	return s
}
