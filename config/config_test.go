package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/config"
	"github.com/snotelib/supernote/signature"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, signature.PolicyStrict, cfg.SignaturePolicy())

	pal, err := cfg.BuildPalette()
	require.NoError(t, err)
	assert.Same(t, color.Default, pal)

	overlay, err := cfg.BuildOverlay()
	require.NoError(t, err)
	assert.Nil(t, overlay)
}

func TestLoadParsesPolicyAndPalette(t *testing.T) {
	path := writeConfig(t, `
policy = "loose"

[palette]
mode = "rgb"
black = "#101010"
dark_gray = "#404040"
gray = "#808080"
white = "#f0f0f0"
marker_opacity = 0.5
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, signature.PolicyLoose, cfg.SignaturePolicy())

	pal, err := cfg.BuildPalette()
	require.NoError(t, err)
	assert.Equal(t, color.ModeRGB, pal.Mode())
	assert.Equal(t, color.RGB{R: 0x10, G: 0x10, B: 0x10}, pal.Color(color.ToneBlack))
	assert.Equal(t, color.RGB{R: 0xf0, G: 0xf0, B: 0xf0}, pal.Color(color.ToneWhite))
	assert.Equal(t, uint8(0x7f), pal.Alpha(color.ToneMarkerBlack))
}

func TestLoadParsesVisibilityOverlay(t *testing.T) {
	path := writeConfig(t, `
[visibility_overlay]
BGLAYER = "invisible"
MAINLAYER = "visible"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	overlay, err := cfg.BuildOverlay()
	require.NoError(t, err)
	assert.False(t, overlay.Resolve("BGLAYER", true))
	assert.True(t, overlay.Resolve("MAINLAYER", false))
	assert.True(t, overlay.Resolve("LAYER1", true)) // absent entry defers to baseline
}

func TestLoadRejectsUnrecognizedVisibilityValue(t *testing.T) {
	path := writeConfig(t, `
[visibility_overlay]
BGLAYER = "sometimes"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.BuildOverlay()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedHexColor(t *testing.T) {
	path := writeConfig(t, `
[palette]
black = "not-a-color"
dark_gray = "#9D9D9D"
gray = "#C9C9C9"
white = "#FFFFFF"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.BuildPalette()
	assert.Error(t, err)
}
