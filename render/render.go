// Package render implements the page renderer / compositor of spec §4.9
// (C9), including the PNG decoder dispatch of §4.8 (C8) for user-supplied
// background templates.
//
// Grounded on the teacher's pdf.go:compositePNGToRGB (the NRGBA fast path
// plus generic alpha blend this package generalizes from a PNG-into-RGB
// blit into a full bottom-up layer compositor) and vector.go's
// renderContentColorLayers/renderBGLayerRGB for the LAYERSEQ-reversed
// layer walk and the BGLAYER/default-palette split.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"strings"

	"github.com/snotelib/supernote/block"
	"github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/notebook"
	"github.com/snotelib/supernote/rle"
	"github.com/snotelib/supernote/snerr"
	"github.com/snotelib/supernote/zbitmap"
)

// allBlankBlockSize is the compressed-block length that marks a
// style_white background layer as carrying no strokes (spec §4.9 step 2).
const allBlankBlockSize = 0x140e

// layerInfoEntry is one entry of the LAYERINFO JSON array, after the
// mandatory '#'->':' substitution.
type layerInfoEntry struct {
	LayerID           string `json:"layerId"`
	IsBackgroundLayer bool   `json:"isBackgroundLayer"`
	IsVisible         bool   `json:"isVisible"`
}

// Options controls one render call.
type Options struct {
	// Palette overrides the default palette for non-background layers.
	// Nil selects color.Default.
	Palette *color.Palette
	// Overlay overrides LAYERINFO visibility per layer name. Nil applies
	// no override.
	Overlay color.Overlay
	// RemoveBackground starts the composite from a transparent canvas
	// instead of white.
	RemoveBackground bool
	// HighResGrayscale selects the X2 RATTA_RLE color-code table
	// (signature.Detected.HighResGrayscale) for every RLE layer decoded
	// in this call.
	HighResGrayscale bool
}

// Image is a decoded raster. Every Image this package produces is RGBA
// with 4 bytes per pixel; the palette mode only selects the colors
// written into it.
type Image struct {
	Width, Height int
	BytesPerPixel int
	Pix           []byte
}

var layerOrderSlots = []string{"MAINLAYER", "LAYER1", "LAYER2", "LAYER3", "BGLAYER"}

// Page renders one notebook page per spec §4.9.
func Page(src block.Source, page notebook.Page, width, height int, opts Options) (*Image, error) {
	pal := opts.Palette
	if pal == nil {
		pal = color.Default
	}

	if page.Orientation == "horizontal" {
		width, height = height, width
	}

	if len(page.Layers) == 0 {
		return renderLegacyPage(src, page, width, height, pal, opts.HighResGrayscale)
	}

	decoded := make(map[string]*Image, len(page.Layers))
	for _, layer := range page.Layers {
		if layer.BitmapAddr == 0 {
			continue
		}
		layerPalette := pal
		if layer.Name == "BGLAYER" {
			layerPalette = color.Default
		}
		img, err := decodeLayer(src, layer, page, width, height, layerPalette, opts.HighResGrayscale)
		if err != nil {
			return nil, fmt.Errorf("render: decoding layer %s: %w", layer.Name, err)
		}
		decoded[layer.Name] = img
	}

	visibility, err := resolveVisibility(page.LayerInfoRaw, opts.Overlay)
	if err != nil {
		return nil, err
	}

	order := page.LayerOrder
	if len(order) == 0 {
		order = layerOrderSlots
	}

	canvas := newCanvas(width, height, pal, opts.RemoveBackground)

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if !visibility[name] {
			continue
		}
		img := decoded[name]
		if img == nil {
			continue
		}
		compositeOver(canvas, img, pal)
	}

	if opts.Overlay["BGLAYER"] == color.VisibilityInvisible {
		clearTransparentToAlphaZero(canvas, pal)
	}

	return canvas, nil
}

func renderLegacyPage(src block.Source, page notebook.Page, width, height int, pal *color.Palette, highRes bool) (*Image, error) {
	if page.ContentAddr == 0 {
		return newCanvas(width, height, pal, true), nil
	}
	data, err := block.ReadBlock(src, page.ContentAddr)
	if err != nil {
		return nil, err
	}
	switch page.Protocol {
	case "RATTA_RLE":
		return decodeRLEImage(data, width, height, false, highRes, pal)
	case "SN_ASA_COMPRESS":
		return decodeFlateImage(data, pal)
	default:
		return nil, snerr.NewUnknownDecodeProtocol(page.Protocol)
	}
}

// DecodeLayer decodes a single named layer's content in isolation,
// applying the same background/style/all_blank special-casing as Page's
// per-layer loop (spec §4.9 step 2), without compositing. The vector
// package uses this to render a page's background alone.
func DecodeLayer(src block.Source, layer notebook.Layer, page notebook.Page, width, height int, pal *color.Palette, highRes bool) (*Image, error) {
	return decodeLayer(src, layer, page, width, height, pal, highRes)
}

func decodeLayer(src block.Source, layer notebook.Layer, page notebook.Page, width, height int, pal *color.Palette, highRes bool) (*Image, error) {
	data, err := block.ReadBlock(src, layer.BitmapAddr)
	if err != nil {
		return nil, err
	}

	isBackground := layer.Name == "BGLAYER"
	if isBackground && strings.HasPrefix(page.Style, "user_") {
		return decodePNGImage(data, width, height)
	}

	allBlank := isBackground && page.Style == "style_white" && len(data) == allBlankBlockSize

	switch layer.Protocol {
	case "RATTA_RLE":
		return decodeRLEImage(data, width, height, allBlank, highRes, pal)
	case "SN_ASA_COMPRESS":
		return decodeFlateImage(data, pal)
	default:
		return nil, snerr.NewUnknownDecodeProtocol(layer.Protocol)
	}
}

func decodeRLEImage(data []byte, width, height int, allBlank, highRes bool, pal *color.Palette) (*Image, error) {
	variant := rle.VariantStandard
	if highRes {
		variant = rle.VariantHighRes
	}
	pix, err := rle.DecodeRGBA(data, width, height, allBlank, variant, pal)
	if err != nil {
		return nil, err
	}
	return &Image{Width: width, Height: height, BytesPerPixel: 4, Pix: pix}, nil
}

func decodeFlateImage(data []byte, pal *color.Palette) (*Image, error) {
	pix, err := zbitmap.DecodeRGBA(data, pal)
	if err != nil {
		return nil, err
	}
	return &Image{Width: zbitmap.CanonicalWidth, Height: zbitmap.CanonicalHeight, BytesPerPixel: 4, Pix: pix}, nil
}

func decodePNGImage(data []byte, width, height int) (*Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, snerr.NewDecoderError(fmt.Sprintf("render: decoding PNG background: %v", err))
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return nil, snerr.NewDecoderError(fmt.Sprintf("render: PNG background is %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), width, height))
	}
	pix := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := (y*width + x) * 4
			pix[off] = byte(r >> 8)
			pix[off+1] = byte(g >> 8)
			pix[off+2] = byte(b >> 8)
			pix[off+3] = byte(a >> 8)
		}
	}
	return &Image{Width: width, Height: height, BytesPerPixel: 4, Pix: pix}, nil
}

// resolveVisibility parses LAYERINFO, applies the MAINLAYER-absent-is-
// visible default, then lets overlay override per layer.
func resolveVisibility(layerInfoRaw string, overlay color.Overlay) (map[string]bool, error) {
	visible := make(map[string]bool, len(layerOrderSlots))
	for _, name := range layerOrderSlots {
		visible[name] = false
	}
	visible["MAINLAYER"] = true

	if layerInfoRaw != "" {
		var entries []layerInfoEntry
		if err := json.Unmarshal([]byte(layerInfoRaw), &entries); err != nil {
			return nil, snerr.NewMalformedMetadata("render: parsing LAYERINFO: " + err.Error())
		}
		for _, e := range entries {
			visible[e.LayerID] = e.IsVisible
		}
	}

	if overlay != nil {
		for _, name := range layerOrderSlots {
			visible[name] = overlay.Resolve(name, visible[name])
		}
	}

	return visible, nil
}

func newCanvas(width, height int, pal *color.Palette, transparent bool) *Image {
	pix := make([]byte, width*height*4)
	var c color.RGB
	var alpha byte = 0xff
	if transparent {
		c = pal.Transparent()
		alpha = 0x00
	} else {
		c = color.RGB{R: 0xff, G: 0xff, B: 0xff}
	}
	for i := 0; i < width*height; i++ {
		off := i * 4
		pix[off], pix[off+1], pix[off+2], pix[off+3] = c.R, c.G, c.B, alpha
	}
	return &Image{Width: width, Height: height, BytesPerPixel: 4, Pix: pix}
}

// compositeOver blends src onto dst in place. A pixel matching the
// palette's transparent sentinel is a hole: the destination shows
// through unchanged. Every other pixel alpha-blends using its own
// opacity (reduced for highlighter marker tones), matching the teacher's
// compositePNGToRGB NRGBA fast path.
func compositeOver(dst, src *Image, pal *color.Palette) {
	t := pal.Transparent()
	n := dst.Width * dst.Height
	if src.Width*src.Height < n {
		n = src.Width * src.Height
	}
	for i := 0; i < n; i++ {
		so := i * 4
		if src.Pix[so] == t.R && src.Pix[so+1] == t.G && src.Pix[so+2] == t.B {
			continue
		}
		do := i * 4
		sa := uint32(src.Pix[so+3])
		if sa == 0xff {
			dst.Pix[do], dst.Pix[do+1], dst.Pix[do+2] = src.Pix[so], src.Pix[so+1], src.Pix[so+2]
		} else {
			da := 255 - sa
			dst.Pix[do] = byte((uint32(src.Pix[so])*sa + uint32(dst.Pix[do])*da) / 255)
			dst.Pix[do+1] = byte((uint32(src.Pix[so+1])*sa + uint32(dst.Pix[do+1])*da) / 255)
			dst.Pix[do+2] = byte((uint32(src.Pix[so+2])*sa + uint32(dst.Pix[do+2])*da) / 255)
		}
		dst.Pix[do+3] = 0xff
	}
}

// clearTransparentToAlphaZero converts pixels still matching the
// palette's transparent sentinel back to alpha=0, once the background
// layer itself has been forced invisible (spec §4.9 step 6).
func clearTransparentToAlphaZero(img *Image, pal *color.Palette) {
	t := pal.Transparent()
	n := img.Width * img.Height
	for i := 0; i < n; i++ {
		off := i * 4
		if img.Pix[off] == t.R && img.Pix[off+1] == t.G && img.Pix[off+2] == t.B {
			img.Pix[off+3] = 0x00
		}
	}
}
