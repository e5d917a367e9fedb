// Package rle implements the RATTA_RLE run-length decoder of spec §4.6
// (C6): the held-pair byte-pair stream used by every pen layer, in its
// standard and high-resolution-grayscale (X2) variants.
//
// Grounded on the teacher's decodeRLE state machine (rle.go), reshaped
// into the explicit Idle/Held states and generalized to the spec's
// geometric-backoff tail rule and literal color-code passthrough.
package rle

import (
	"fmt"

	"github.com/snotelib/supernote/color"
	"github.com/snotelib/supernote/snerr"
)

// Variant selects which color-code table governs a stream.
type Variant int

const (
	// VariantStandard is the original X-series RATTA_RLE color-code map.
	VariantStandard Variant = iota
	// VariantHighRes is the X2 high-resolution grayscale extension: adds
	// 0x9D/0x9E/0xC9/0xCA and repurposes 0x63/0x64 as compatibility
	// codes rather than primary tones.
	VariantHighRes
)

// Run is a single decoded run: length pixels starting at pos, all
// carrying the same raw color code.
type Run struct {
	Pos    int
	Length int
	Code   byte
}

const (
	codeTransparent = 0x62
	lengthEscape    = 0xff
	heldLengthBit   = 0x80
)

// AllBlankRunLength and NormalRunLength are the two interpretations of a
// 0xFF length byte (spec §4.6): the former applies only to an all_blank
// background layer.
const (
	AllBlankRunLength = 0x400
	NormalRunLength   = 0x4000
)

type decodeState int

const (
	stateIdle decodeState = iota
	stateHeld
)

// Decode runs the held-pair state machine over data, producing the run
// list that covers exactly width*height pixels. allBlank selects the
// 0xFF-length interpretation for a background layer recognized as blank
// (spec §4.9's all_blank detection).
//
// Returns DecoderError if the stream does not produce exactly
// width*height pixels (spec §4.6's invariant).
func Decode(data []byte, width, height int, allBlank bool) ([]Run, error) {
	expected := width * height
	var runs []Run

	pos := 0
	i := 0
	state := stateIdle
	var heldColor, heldLength byte

	havePending := false
	var pendingColor, pendingLength byte

	for pos < expected {
		var colorCode, lengthCode byte
		if havePending {
			colorCode, lengthCode = pendingColor, pendingLength
			havePending = false
		} else {
			if i+1 >= len(data) {
				break
			}
			colorCode, lengthCode = data[i], data[i+1]
			i += 2
		}

		if state == stateHeld {
			prevColor, prevLength := heldColor, heldLength
			state = stateIdle

			if colorCode == prevColor {
				length := clamp(1+int(lengthCode)+((int(prevLength&0x7f)+1)<<7), expected-pos)
				runs = append(runs, Run{Pos: pos, Length: length, Code: colorCode})
				pos += length
				continue
			}

			heldLen := clamp((int(prevLength&0x7f)+1)<<7, expected-pos)
			runs = append(runs, Run{Pos: pos, Length: heldLen, Code: prevColor})
			pos += heldLen

			// Re-process (colorCode, lengthCode) as a fresh pair without
			// consuming further input (spec §4.6's multi-byte extension).
			havePending = true
			pendingColor, pendingLength = colorCode, lengthCode
			continue
		}

		switch {
		case lengthCode == lengthEscape:
			length := NormalRunLength
			if allBlank {
				length = AllBlankRunLength
			}
			length = clamp(length, expected-pos)
			runs = append(runs, Run{Pos: pos, Length: length, Code: colorCode})
			pos += length
		case lengthCode&heldLengthBit != 0:
			heldColor, heldLength = colorCode, lengthCode
			state = stateHeld
		default:
			length := clamp(int(lengthCode)+1, expected-pos)
			runs = append(runs, Run{Pos: pos, Length: length, Code: colorCode})
			pos += length
		}
	}

	if state == stateHeld && pos < expected {
		gap := expected - pos
		base := int(heldLength&0x7f) + 1
		for shift := 7; shift >= 0; shift-- {
			length := base << shift
			if length <= gap {
				runs = append(runs, Run{Pos: pos, Length: length, Code: heldColor})
				pos += length
				break
			}
		}
	}

	if pos != expected {
		return nil, snerr.NewDecoderError(fmt.Sprintf("rle: decoded %d pixels, want %d", pos, expected))
	}
	return runs, nil
}

func clamp(n, max int) int {
	if max < 0 {
		max = 0
	}
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

// Resolution is how a single RATTA_RLE color code resolves: either to a
// palette tone, or as a literal 8-bit grayscale intensity when the code
// carries no entry in the active variant's table (spec §4.6).
type Resolution struct {
	Literal      bool
	Tone         color.Tone
	LiteralValue uint8
}

// ResolveColorCode maps a raw RLE color code to its Resolution under the
// given variant.
func ResolveColorCode(code byte, variant Variant) Resolution {
	switch code {
	case 0x61:
		return Resolution{Tone: color.ToneBlack}
	case codeTransparent:
		return Resolution{Tone: color.ToneTransparent}
	case 0x65:
		return Resolution{Tone: color.ToneWhite}
	case 0x66:
		return Resolution{Tone: color.ToneMarkerBlack}
	case 0x67:
		return Resolution{Tone: color.ToneMarkerDarkGray}
	case 0x68:
		return Resolution{Tone: color.ToneMarkerGray}
	}

	switch variant {
	case VariantHighRes:
		switch code {
		case 0x63:
			return Resolution{Tone: color.ToneCompatDarkGray}
		case 0x64:
			return Resolution{Tone: color.ToneCompatGray}
		case 0x9d:
			return Resolution{Tone: color.ToneDarkGray}
		case 0x9e:
			return Resolution{Tone: color.ToneCompatDarkGray}
		case 0xc9:
			return Resolution{Tone: color.ToneGray}
		case 0xca:
			return Resolution{Tone: color.ToneCompatGray}
		}
	default:
		switch code {
		case 0x63:
			return Resolution{Tone: color.ToneDarkGray}
		case 0x64:
			return Resolution{Tone: color.ToneGray}
		}
	}

	return Resolution{Literal: true, LiteralValue: code}
}

// DecodeGray decodes data into an 8-bit grayscale raster.
func DecodeGray(data []byte, width, height int, allBlank bool, variant Variant, pal *color.Palette) ([]byte, error) {
	runs, err := Decode(data, width, height, allBlank)
	if err != nil {
		return nil, err
	}
	out := make([]byte, width*height)
	for _, r := range runs {
		res := ResolveColorCode(r.Code, variant)
		var v byte
		if res.Literal {
			v = res.LiteralValue
		} else {
			c := pal.Color(res.Tone)
			v = c.R
		}
		fillGray(out, r.Pos, r.Length, v)
	}
	return out, nil
}

// DecodeRGBA decodes data into an RGBA raster, applying the marker
// tones' reduced opacity.
func DecodeRGBA(data []byte, width, height int, allBlank bool, variant Variant, pal *color.Palette) ([]byte, error) {
	runs, err := Decode(data, width, height, allBlank)
	if err != nil {
		return nil, err
	}
	out := make([]byte, width*height*4)
	for _, r := range runs {
		res := ResolveColorCode(r.Code, variant)
		var rgb color.RGB
		var alpha uint8 = 0xff
		if res.Literal {
			rgb = color.Gray(res.LiteralValue)
		} else {
			rgb = pal.Color(res.Tone)
			alpha = pal.Alpha(res.Tone)
		}
		fillRGBA(out, r.Pos, r.Length, rgb, alpha)
	}
	return out, nil
}

func fillGray(out []byte, pos, count int, v byte) {
	end := min(pos+count, len(out))
	if pos >= end {
		return
	}
	out[pos] = v
	for filled := 1; filled < end-pos; filled *= 2 {
		copy(out[pos+filled:end], out[pos:pos+filled])
	}
}

func fillRGBA(out []byte, pos, count int, c color.RGB, alpha uint8) {
	start := pos * 4
	end := min(start+count*4, len(out))
	if start >= end {
		return
	}
	out[start], out[start+1], out[start+2], out[start+3] = c.R, c.G, c.B, alpha
	for filled := 4; filled < end-start; filled *= 2 {
		copy(out[start+filled:end], out[start:start+filled])
	}
}
