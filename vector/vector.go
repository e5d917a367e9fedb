// Package vector produces the color-separated mask inputs for vector
// (SVG-like) page output, per spec §6: the page rendered twice
// (background alone, then foreground tones separated by color mask),
// each foreground mask traced into Bézier curve / corner segments by an
// external contour tracer. This package stops at the traced path data;
// assembling a container file (PDF, SVG) is out of scope.
//
// Grounded on the teacher's vector.go:canonicalGroup/decodeRLEToCodeMap
// (mask-group assignment and code-map accumulation) and
// renderContentColorLayers (the group-to-bitmap-to-gotrace.Trace
// pipeline), generalized to respect layer transparency when multiple
// foreground layers overlap, which the teacher's single-pass
// codemap overwrite does not.
package vector

import (
	"fmt"
	"image"
	stdcolor "image/color"
	"slices"

	"github.com/dennwc/gotrace"

	"github.com/snotelib/supernote/block"
	"github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/notebook"
	"github.com/snotelib/supernote/render"
	"github.com/snotelib/supernote/rle"
)

// transparentCode is the RATTA_RLE transparent color code (spec §4.6);
// a run carrying it is a hole that leaves any layer beneath it showing.
const transparentCode = 0x62

// unpaintedCode is a sentinel distinct from every real RLE color code
// (which tops out at 0xCA), marking a pixel no foreground layer has
// painted yet.
const unpaintedCode = 0xff

var defaultLayerOrder = []string{"MAINLAYER", "LAYER1", "LAYER2", "LAYER3", "BGLAYER"}

// canonicalGroup maps a raw RLE color code to one of 7 mask groups, or
// -1 to skip (anti-aliasing interpolation codes with no mask affinity).
// Groups: 0=black, 1=dark gray, 2=light gray, 3=white/transparent (never
// traced), 4-6=the three highlighter marker tones.
func canonicalGroup(code byte) int {
	switch code {
	case 0x00, 0x61:
		return 0
	case 0x63, 0x9d, 0x9e:
		return 1
	case 0x64, 0xc9, 0xca:
		return 2
	case 0x62, 0x65, 0xfe, 0xff:
		return 3
	case 0x66:
		return 4
	case 0x67:
		return 5
	case 0x68:
		return 6
	default:
		return -1
	}
}

var groupTone = [7]color.Tone{
	color.ToneBlack,
	color.ToneDarkGray,
	color.ToneGray,
	color.ToneWhite, // group 3 is never traced; placeholder only
	color.ToneMarkerBlack,
	color.ToneMarkerDarkGray,
	color.ToneMarkerGray,
}

func findLayer(layers []notebook.Layer, name string) (notebook.Layer, bool) {
	for _, l := range layers {
		if l.Name == name {
			return l, true
		}
	}
	return notebook.Layer{}, false
}

// BuildColorMasks decodes every non-background RATTA_RLE layer and
// accumulates their runs, bottom-up per LAYERSEQ, into a single code map:
// a transparent run is a hole leaving any layer beneath it visible. The
// code map is then split into up to 7 group masks, each a *image.Gray
// with 0x00 marking a painted pixel and 0xff an unpainted one (the
// convention gotrace.NewBitmapFromImage's predicate expects).
func BuildColorMasks(src block.Source, page notebook.Page, width, height int) ([7]*image.Gray, error) {
	var masks [7]*image.Gray

	total := width * height
	codeMap := make([]byte, total)
	for i := range codeMap {
		codeMap[i] = unpaintedCode
	}

	order := page.LayerOrder
	if len(order) == 0 {
		order = defaultLayerOrder
	}

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if name == "BGLAYER" {
			continue
		}
		layer, ok := findLayer(page.Layers, name)
		if !ok || layer.BitmapAddr == 0 || layer.Protocol != "RATTA_RLE" {
			continue
		}
		data, err := block.ReadBlock(src, layer.BitmapAddr)
		if err != nil {
			return masks, err
		}
		runs, err := rle.Decode(data, width, height, false)
		if err != nil {
			return masks, fmt.Errorf("vector: decoding layer %s: %w", name, err)
		}
		for _, r := range runs {
			if r.Code == transparentCode {
				continue
			}
			end := min(r.Pos+r.Length, total)
			for p := r.Pos; p < end; p++ {
				codeMap[p] = r.Code
			}
		}
	}

	for i := 0; i < total; i++ {
		g := canonicalGroup(codeMap[i])
		if g < 0 || g == 3 {
			continue
		}
		if masks[g] == nil {
			masks[g] = image.NewGray(image.Rect(0, 0, width, height))
			for j := range masks[g].Pix {
				masks[g].Pix[j] = 0xff
			}
		}
		masks[g].Pix[i] = 0x00
	}

	return masks, nil
}

// TracedLayer is one traced color-separated mask: the device color and
// opacity to render it at, and its contour path tree.
type TracedLayer struct {
	Color color.RGB
	Alpha uint8
	Paths []gotrace.Path
}

// Trace runs contour tracing over each non-empty mask, returning one
// TracedLayer per populated group. Markers (alpha < 255) sort first, so
// a consumer drawing in order places them behind opaque strokes.
func Trace(masks [7]*image.Gray, pal *color.Palette) ([]TracedLayer, error) {
	params := gotrace.Defaults
	params.TurdSize = 2

	var layers []TracedLayer
	for g := range masks {
		if g == 3 || masks[g] == nil {
			continue
		}
		bm := gotrace.NewBitmapFromImage(masks[g], func(x, y int, c stdcolor.Color) bool {
			v, _, _, _ := c.RGBA()
			return v < 0x8000
		})
		paths, err := gotrace.Trace(bm, &params)
		if err != nil {
			return nil, fmt.Errorf("vector: tracing color group %d: %w", g, err)
		}
		if len(paths) == 0 {
			continue
		}
		tone := groupTone[g]
		layers = append(layers, TracedLayer{
			Color: pal.Color(tone),
			Alpha: pal.Alpha(tone),
			Paths: paths,
		})
	}

	slices.SortStableFunc(layers, func(a, b TracedLayer) int {
		aMarker, bMarker := a.Alpha < 0xff, b.Alpha < 0xff
		switch {
		case aMarker && !bMarker:
			return -1
		case !aMarker && bMarker:
			return 1
		default:
			return 0
		}
	})

	return layers, nil
}

// Background decodes the page's background layer alone (the "rendered
// twice" background half of spec §6's vector output), using the default
// palette per spec §4.9. Returns nil if the page has no background
// layer content.
func Background(src block.Source, page notebook.Page, width, height int, highRes bool) (*render.Image, error) {
	layer, ok := findLayer(page.Layers, "BGLAYER")
	if !ok || layer.BitmapAddr == 0 {
		return nil, nil
	}
	return render.DecodeLayer(src, layer, page, width, height, color.Default, highRes)
}
