package render_test

import (
	"bytes"
	"encoding/binary"
	"image"
	stdpng "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rendercolor "github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/notebook"
	"github.com/snotelib/supernote/render"
)

// blockBuilder lays out raw length-prefixed blocks at growing addresses,
// independent of any metadata framing — render only needs block.Source.
type blockBuilder struct {
	buf bytes.Buffer
}

func (b *blockBuilder) addBlock(payload []byte) uint32 {
	addr := uint32(b.buf.Len())
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	b.buf.Write(lenBuf[:])
	b.buf.Write(payload)
	return addr
}

func (b *blockBuilder) reader() *bytes.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

// solidRLE builds a RATTA_RLE stream that fills width*height pixels with
// a single color code using the 0xFF-length escape (NormalRunLength),
// looping ordinary runs to cover any remainder.
func solidRLE(t *testing.T, code byte, width, height int) []byte {
	t.Helper()
	total := width * height
	var out []byte
	for total > 0 {
		n := total
		if n >= 0x4000 {
			n = 0x4000
			out = append(out, code, 0xff)
		} else {
			n = min(n, 0x80)
			out = append(out, code, byte(n-1))
		}
		total -= n
	}
	return out
}

func TestPageCompositesVisibleLayersBottomUp(t *testing.T) {
	const w, h = 4, 4

	var b blockBuilder
	// BGLAYER: solid white (0x65). MAINLAYER: solid black (0x61).
	bgAddr := b.addBlock(solidRLE(t, 0x65, w, h))
	mainAddr := b.addBlock(solidRLE(t, 0x61, w, h))
	src := b.reader()

	page := notebook.Page{
		Style:      "style_white",
		LayerOrder: []string{"MAINLAYER", "BGLAYER"},
		Layers: []notebook.Layer{
			{Name: "MAINLAYER", Protocol: "RATTA_RLE", BitmapAddr: mainAddr},
			{Name: "BGLAYER", Protocol: "RATTA_RLE", BitmapAddr: bgAddr},
		},
	}

	img, err := render.Page(src, page, w, h, render.Options{})
	require.NoError(t, err)
	require.Equal(t, w, img.Width)
	require.Equal(t, h, img.Height)

	// MAINLAYER is opaque black and sits on top: every pixel is black.
	for i := 0; i < w*h; i++ {
		off := i * 4
		assert.Equal(t, byte(0x00), img.Pix[off], "pixel %d red channel", i)
		assert.Equal(t, byte(0xff), img.Pix[off+3], "pixel %d alpha channel", i)
	}
}

func TestPageOverlayForcesLayerInvisible(t *testing.T) {
	const w, h = 2, 2

	var b blockBuilder
	bgAddr := b.addBlock(solidRLE(t, 0x65, w, h))
	mainAddr := b.addBlock(solidRLE(t, 0x61, w, h))
	src := b.reader()

	page := notebook.Page{
		Style:        "style_white",
		LayerInfoRaw: `[{"layerId":"MAINLAYER","isBackgroundLayer":false,"isVisible":true},{"layerId":"BGLAYER","isBackgroundLayer":true,"isVisible":true}]`,
		LayerOrder:   []string{"MAINLAYER", "BGLAYER"},
		Layers: []notebook.Layer{
			{Name: "MAINLAYER", Protocol: "RATTA_RLE", BitmapAddr: mainAddr},
			{Name: "BGLAYER", Protocol: "RATTA_RLE", BitmapAddr: bgAddr},
		},
	}

	img, err := render.Page(src, page, w, h, render.Options{
		Overlay: rendercolor.Overlay{"MAINLAYER": rendercolor.VisibilityInvisible},
	})
	require.NoError(t, err)

	// MAINLAYER hidden: BGLAYER's white shows through.
	for i := 0; i < w*h; i++ {
		off := i * 4
		assert.Equal(t, byte(0xfe), img.Pix[off])
	}
}

func TestPageWithNoLayersUsesTransparentCanvas(t *testing.T) {
	var b blockBuilder
	src := b.reader()

	page := notebook.Page{}
	img, err := render.Page(src, page, 2, 2, render.Options{})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.Equal(t, byte(0x00), img.Pix[i*4+3])
	}
}

func TestPageOrientationSwapsDimensions(t *testing.T) {
	var b blockBuilder
	src := b.reader()

	page := notebook.Page{Orientation: "horizontal"}
	img, err := render.Page(src, page, 10, 20, render.Options{})
	require.NoError(t, err)
	assert.Equal(t, 20, img.Width)
	assert.Equal(t, 10, img.Height)
}

func TestPageForcesPNGDecoderForUserBackground(t *testing.T) {
	const w, h = 3, 3
	var pngBuf bytes.Buffer
	src0 := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range src0.Pix {
		src0.Pix[i] = 0x80
	}
	require.NoError(t, stdpng.Encode(&pngBuf, src0))

	var b blockBuilder
	bgAddr := b.addBlock(pngBuf.Bytes())
	src := b.reader()

	page := notebook.Page{
		Style:        "user_mytemplate",
		LayerInfoRaw: `[{"layerId":"BGLAYER","isBackgroundLayer":true,"isVisible":true}]`,
		LayerOrder:   []string{"BGLAYER"},
		Layers: []notebook.Layer{
			{Name: "BGLAYER", Protocol: "PNG", BitmapAddr: bgAddr},
		},
	}

	img, err := render.Page(src, page, w, h, render.Options{})
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), img.Pix[0])
}

func TestPagePNGBackgroundDimensionMismatchIsDecoderError(t *testing.T) {
	var pngBuf bytes.Buffer
	src0 := image.NewRGBA(image.Rect(0, 0, 5, 5))
	require.NoError(t, stdpng.Encode(&pngBuf, src0))

	var b blockBuilder
	bgAddr := b.addBlock(pngBuf.Bytes())
	src := b.reader()

	page := notebook.Page{
		Style:      "user_mytemplate",
		LayerOrder: []string{"BGLAYER"},
		Layers: []notebook.Layer{
			{Name: "BGLAYER", Protocol: "PNG", BitmapAddr: bgAddr},
		},
	}

	_, err := render.Page(src, page, 3, 3, render.Options{})
	assert.Error(t, err)
}

func TestPageLayerInfoJSONControlsVisibilityAfterSubstitution(t *testing.T) {
	const w, h = 2, 2
	var b blockBuilder
	mainAddr := b.addBlock(solidRLE(t, 0x61, w, h))
	layer1Addr := b.addBlock(solidRLE(t, 0x65, w, h))
	src := b.reader()

	// notebook.New already substitutes '#'->':'; simulate that here.
	layerInfo := `[{"layerId":"MAINLAYER","isBackgroundLayer":false,"isVisible":false},{"layerId":"LAYER1","isBackgroundLayer":false,"isVisible":true}]`

	page := notebook.Page{
		Style:        "style_white",
		LayerInfoRaw: layerInfo,
		LayerOrder:   []string{"MAINLAYER", "LAYER1"},
		Layers: []notebook.Layer{
			{Name: "MAINLAYER", Protocol: "RATTA_RLE", BitmapAddr: mainAddr},
			{Name: "LAYER1", Protocol: "RATTA_RLE", BitmapAddr: layer1Addr},
		},
	}

	img, err := render.Page(src, page, w, h, render.Options{})
	require.NoError(t, err)
	// MAINLAYER explicitly hidden, LAYER1 (white) shows.
	for i := 0; i < w*h; i++ {
		assert.Equal(t, byte(0xfe), img.Pix[i*4])
	}
}
