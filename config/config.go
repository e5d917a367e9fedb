// Package config loads the TOML configuration recognized by spec §6:
// signature acceptance policy, palette colors, per-layer visibility
// overrides and the high-resolution grayscale capability flag.
//
// Grounded on the teacher's config.go:LoadConfig/defaultConfig/
// parseHexColor (the TOML decode-with-fallback-defaults shape and hex
// color parsing), generalized from the teacher's separate [mark]/[note]
// sections to a single [palette] section covering both render paths, and
// from ColorConfig's bare hex strings to a full color.Palette descriptor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/signature"
)

// PaletteConfig describes the four tone colors plus marker opacity, as
// read from a config file's [palette] section.
type PaletteConfig struct {
	Mode          string  `toml:"mode"` // "grayscale" (default) or "rgb"
	Black         string  `toml:"black"`
	DarkGray      string  `toml:"dark_gray"`
	Gray          string  `toml:"gray"`
	White         string  `toml:"white"`
	MarkerOpacity float64 `toml:"marker_opacity"` // 0.0-1.0, 0 selects color.DefaultMarkerOpacity
}

// Config is the recognized option set of spec §6.
type Config struct {
	// Policy is "strict" (default) or "loose".
	Policy string `toml:"policy"`
	// Palette overrides the default tone colors. An empty PaletteConfig
	// (all fields zero) selects color.Default.
	Palette PaletteConfig `toml:"palette"`
	// VisibilityOverlay maps a layer name to "visible" or "invisible";
	// an absent entry defers to the file's own LAYERINFO.
	VisibilityOverlay map[string]string `toml:"visibility_overlay"`
	// HighresGrayscale forces the X2 high-resolution RLE color-code
	// table on or off, overriding the value the signature would derive.
	// Nil leaves auto-detection from the file in effect.
	HighresGrayscale *bool `toml:"highres_grayscale"`
}

func defaultConfig() *Config {
	return &Config{
		Policy: "strict",
	}
}

// Load reads and decodes a TOML config file at path. A missing file is
// not an error: Load returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SignaturePolicy resolves the configured acceptance policy, defaulting
// to strict when unset or unrecognized.
func (c *Config) SignaturePolicy() signature.Policy {
	if strings.EqualFold(c.Policy, "loose") {
		return signature.PolicyLoose
	}
	return signature.PolicyStrict
}

// BuildPalette resolves the configured palette, or color.Default/
// color.DefaultRGB when the [palette] section is empty.
func (c *Config) BuildPalette() (*color.Palette, error) {
	p := c.Palette
	mode := color.ModeGrayscale
	if strings.EqualFold(p.Mode, "rgb") {
		mode = color.ModeRGB
	}

	if p.Black == "" && p.DarkGray == "" && p.Gray == "" && p.White == "" {
		base := color.Default
		if mode == color.ModeRGB {
			base = color.DefaultRGB
		}
		if p.MarkerOpacity > 0 {
			return base.WithMarkerOpacity(opacityByte(p.MarkerOpacity)), nil
		}
		return base, nil
	}

	tones, err := parseTones(p)
	if err != nil {
		return nil, err
	}
	pal, err := color.New(mode, tones)
	if err != nil {
		return nil, fmt.Errorf("config: building palette: %w", err)
	}
	if p.MarkerOpacity > 0 {
		pal = pal.WithMarkerOpacity(opacityByte(p.MarkerOpacity))
	}
	return pal, nil
}

func parseTones(p PaletteConfig) ([4]color.RGB, error) {
	var tones [4]color.RGB
	fields := []struct {
		hex string
		out *color.RGB
	}{
		{p.Black, &tones[0]},
		{p.DarkGray, &tones[1]},
		{p.Gray, &tones[2]},
		{p.White, &tones[3]},
	}
	for _, f := range fields {
		r, g, b, err := parseHexColor(f.hex)
		if err != nil {
			return tones, err
		}
		*f.out = color.RGB{R: r, G: g, B: b}
	}
	return tones, nil
}

func opacityByte(frac float64) uint8 {
	if frac > 1 {
		frac = 1
	}
	return uint8(frac * 0xff)
}

func parseHexColor(hex string) (r, g, b uint8, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("config: invalid hex color: #%s (expected 6 hex digits)", hex)
	}
	var rgb [3]uint8
	for i := range 3 {
		val, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("config: invalid hex color: #%s: %w", hex, err)
		}
		rgb[i] = uint8(val)
	}
	return rgb[0], rgb[1], rgb[2], nil
}

// BuildOverlay resolves the configured per-layer visibility overrides.
func (c *Config) BuildOverlay() (color.Overlay, error) {
	if len(c.VisibilityOverlay) == 0 {
		return nil, nil
	}
	overlay := make(color.Overlay, len(c.VisibilityOverlay))
	for name, v := range c.VisibilityOverlay {
		switch strings.ToLower(v) {
		case "visible":
			overlay[name] = color.VisibilityVisible
		case "invisible":
			overlay[name] = color.VisibilityInvisible
		case "default", "":
			overlay[name] = color.VisibilityDefault
		default:
			return nil, fmt.Errorf("config: visibility_overlay.%s: unrecognized value %q (want visible/invisible/default)", name, v)
		}
	}
	return overlay, nil
}
