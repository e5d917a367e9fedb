// Package color implements the palette and layer-visibility overlay of
// spec §4.10 (C10).
//
// A palette maps the four logical tone classes recovered by the decoders
// (C6/C7) to device colors, plus a transparent sentinel used by the
// compositor (C9) to let lower layers show through. Palettes are
// immutable once built, mirroring the teacher's BuildPalette returning a
// read-only *Palette.
package color

import "fmt"

// Mode selects how a palette's colors are interpreted.
type Mode int

const (
	// ModeGrayscale stores one byte per pixel.
	ModeGrayscale Mode = iota
	// ModeRGB stores three bytes per pixel.
	ModeRGB
)

// Tone is one of the four logical tone classes a decoder emits, plus the
// sentinel transparent class.
type Tone int

const (
	ToneBlack Tone = iota
	ToneDarkGray
	ToneGray
	ToneWhite
	ToneTransparent
	// ToneMarkerBlack, ToneMarkerDarkGray and ToneMarkerGray are the
	// RATTA_RLE highlighter pen codes (0x66/0x67/0x68): same hue as their
	// non-marker counterparts, rendered at reduced opacity.
	ToneMarkerBlack
	ToneMarkerDarkGray
	ToneMarkerGray
	// ToneCompatDarkGray and ToneCompatGray are the high-resolution
	// grayscale variant's compatibility codes (0x63/0x64/0x9e/0xca),
	// which render as slightly different grays than the primary tones.
	ToneCompatDarkGray
	ToneCompatGray
)

// RGB is a device color.
type RGB struct {
	R, G, B uint8
}

// Gray returns the RGB formed by repeating a single intensity across all
// three channels, the convention the teacher's identity palette and
// original_source's grayscale presets both use.
func Gray(v uint8) RGB { return RGB{v, v, v} }

// Default grayscale tone values, matching original_source/color.py's
// BLACK/DARK_GRAY/GRAY/WHITE/TRANSPARENT presets.
const (
	DefaultBlack     = 0x00
	DefaultDarkGray  = 0x9d
	DefaultGray      = 0xc9
	DefaultWhite     = 0xfe
	DefaultTransparent = 0xff

	// Compatibility codes: original_source/decoder.py's colorcodes 0x63/0x64
	// (and the X2 high-res codes 0x9e/0xca) resolve to slightly different
	// grays than the primary dark-gray/gray tones.
	DefaultDarkGrayCompat = 0x30
	DefaultGrayCompat     = 0x50

	// DefaultMarkerOpacity is the alpha applied to the three highlighter
	// marker tones when no config override is supplied (the teacher's
	// BuildPalette falls back to the same ~15% default).
	DefaultMarkerOpacity uint8 = 0x26
)

// Palette maps the four tone classes (plus transparent) to device colors.
// Construction validates that exactly four tones were supplied.
type Palette struct {
	mode          Mode
	black         RGB
	darkGray      RGB
	gray          RGB
	white         RGB
	transparent   RGB
	darkGrayComp  RGB
	grayComp      RGB
	markerOpacity uint8
}

// New builds a Palette from four tones (black, dark-gray, gray, white) in
// that order, plus optional compat grays (dark-gray-compat,
// gray-compat); when compat is omitted, it defaults to darkGray/gray
// themselves.
func New(mode Mode, tones [4]RGB, compat ...RGB) (*Palette, error) {
	p := &Palette{
		mode:          mode,
		black:         tones[0],
		darkGray:      tones[1],
		gray:          tones[2],
		white:         tones[3],
		markerOpacity: DefaultMarkerOpacity,
	}
	switch mode {
	case ModeGrayscale:
		p.transparent = Gray(DefaultTransparent)
	case ModeRGB:
		p.transparent = RGB{0xff, 0xff, 0xff}
	default:
		return nil, fmt.Errorf("color: unknown mode %d", mode)
	}
	switch len(compat) {
	case 0:
		p.darkGrayComp = p.darkGray
		p.grayComp = p.gray
	case 2:
		p.darkGrayComp = compat[0]
		p.grayComp = compat[1]
	default:
		return nil, fmt.Errorf("color: compat must have exactly 2 entries, got %d", len(compat))
	}
	return p, nil
}

// Color resolves a tone class to a device color.
func (p *Palette) Color(t Tone) RGB {
	switch t {
	case ToneBlack, ToneMarkerBlack:
		return p.black
	case ToneDarkGray, ToneMarkerDarkGray:
		return p.darkGray
	case ToneGray, ToneMarkerGray:
		return p.gray
	case ToneWhite:
		return p.white
	case ToneCompatDarkGray:
		return p.darkGrayComp
	case ToneCompatGray:
		return p.grayComp
	default:
		return p.transparent
	}
}

// Alpha resolves a tone class to its opacity. Every tone is fully opaque
// except the three highlighter marker tones, which render at the
// palette's configured marker opacity.
func (p *Palette) Alpha(t Tone) uint8 {
	switch t {
	case ToneMarkerBlack, ToneMarkerDarkGray, ToneMarkerGray:
		return p.markerOpacity
	default:
		return 0xff
	}
}

// WithMarkerOpacity returns a copy of the palette with its highlighter
// marker opacity overridden. The receiver is left unmodified, preserving
// palette immutability.
func (p *Palette) WithMarkerOpacity(alpha uint8) *Palette {
	cp := *p
	cp.markerOpacity = alpha
	return &cp
}

// CompatDarkGray and CompatGray resolve the RLE decoder's compatibility
// color codes (spec §4.6's 0x63/0x64/0x9e/0xca), which render slightly
// differently from the primary dark-gray/gray tones.
func (p *Palette) CompatDarkGray() RGB { return p.darkGrayComp }
func (p *Palette) CompatGray() RGB     { return p.grayComp }

// Transparent returns the sentinel color the compositor treats as a hole.
func (p *Palette) Transparent() RGB { return p.transparent }

// Mode reports the palette's color mode.
func (p *Palette) Mode() Mode { return p.mode }

// BytesPerPixel returns 1 for grayscale, 3 for RGB.
func (p *Palette) BytesPerPixel() int {
	if p.mode == ModeGrayscale {
		return 1
	}
	return 3
}

// Default is the built-in grayscale palette used when no caller override
// is supplied, matching original_source's DEFAULT_COLORPALETTE.
var Default = mustNew(ModeGrayscale,
	[4]RGB{Gray(DefaultBlack), Gray(DefaultDarkGray), Gray(DefaultGray), Gray(DefaultWhite)},
	Gray(DefaultDarkGrayCompat), Gray(DefaultGrayCompat),
)

// DefaultRGB is the built-in RGB palette, matching original_source's
// DEFAULT_RGB_COLORPALETTE.
var DefaultRGB = mustNew(ModeRGB,
	[4]RGB{{0, 0, 0}, {0x9d, 0x9d, 0x9d}, {0xc9, 0xc9, 0xc9}, {0xfe, 0xfe, 0xfe}},
	RGB{0x30, 0x30, 0x30}, RGB{0x50, 0x50, 0x50},
)

// Identity is a grayscale palette where every 8-bit intensity maps to
// itself, used to render raw tone bytes without remapping (e.g. for
// .mark annotation layers, per the teacher's IdentityPalette).
var Identity = mustNew(ModeGrayscale,
	[4]RGB{Gray(0), Gray(157), Gray(201), Gray(255)},
)

func mustNew(mode Mode, tones [4]RGB, compat ...RGB) *Palette {
	p, err := New(mode, tones, compat...)
	if err != nil {
		panic(err)
	}
	return p
}

// Visibility is a per-layer directive overriding a file's embedded
// LAYERINFO visibility flags at render time (spec §4.10).
type Visibility int

const (
	// VisibilityDefault defers to the file's own LAYERINFO.
	VisibilityDefault Visibility = iota
	VisibilityVisible
	VisibilityInvisible
)

// Overlay is a mapping from layer name to a Visibility directive.
type Overlay map[string]Visibility

// Resolve returns the effective visibility for a layer, applying the
// overlay over a baseline (usually derived from LAYERINFO).
func (o Overlay) Resolve(layerName string, baseline bool) bool {
	switch o[layerName] {
	case VisibilityVisible:
		return true
	case VisibilityInvisible:
		return false
	default:
		return baseline
	}
}
