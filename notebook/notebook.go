// Package notebook implements the Notebook view model of spec §4.5 (C5):
// a read-only projection over a parsed structural tree exposing covers,
// keywords, titles, links, and pages with their derived fields.
//
// Grounded on original_source/supernotelib/fileformat.py's
// Cover/Keyword/Title/Page/Layer classes for the derived-field formulas,
// and the teacher's notebook.go NoteLink/Page/Layer structs for the
// Go-side shape and the link-direction derivation this package
// generalizes.
package notebook

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/snotelib/supernote/block"
	"github.com/snotelib/supernote/metadata"
	"github.com/snotelib/supernote/parser"
	"github.com/snotelib/supernote/signature"
	"github.com/snotelib/supernote/snerr"
)

// Direction classifies a link as pointing out of the current document or
// into it.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

// LinkType distinguishes a same-document/cross-document page link from a
// web link.
type LinkType int

const (
	LinkTypePage LinkType = iota
	LinkTypeWeb
)

// Rect is a rectangle on a page, in device pixel coordinates.
type Rect struct {
	Left, Top, Width, Height int
}

// Cover is the notebook's optional cover thumbnail.
type Cover struct {
	Content []byte
}

// Keyword is a search index entry: a user-highlighted phrase, its
// location, and the resolved text (via the KEYWORDSITE re-read
// workaround the parser already applied).
type Keyword struct {
	PageNumber int
	Position   int
	Text       string
}

// Title is a user-assigned page title.
type Title struct {
	PageNumber int
	Position   int
	Content    []byte
}

// Link is an in-document or outbound hyperlink anchored to a rectangle
// on its originating page.
type Link struct {
	PageNumber   int
	Direction    Direction
	Type         LinkType
	SourceFileID string
	SameFile     bool
	DestPage     int
	URL          string
	Rect         Rect
}

// Layer is one named layer slot on a page. Name has already had the
// second-MAINLAYER-becomes-BGLAYER workaround applied.
type Layer struct {
	Name            string
	Protocol        string
	BitmapAddr      uint32
	VectorGraphAddr uint32
	RecognAddr      uint32
}

// Page is one notebook page.
type Page struct {
	Addr            uint32
	ContentAddr     uint32 // legacy only: DATA
	Protocol        string // legacy only: PROTOCOL
	Style           string
	StyleHash       string
	LayerInfoRaw    string // LAYERINFO with '#'->':' already substituted
	LayerOrder      []string
	Orientation     string
	PageID          string
	TotalPathAddr   uint32
	RecognFileAddr  uint32
	RecognTextAddr  uint32
	Layers          []Layer
}

// Notebook is the assembled view model.
type Notebook struct {
	Signature signature.Detected
	FileID    string
	Width     int
	Height    int
	Cover     *Cover
	Keywords  []Keyword
	Titles    []Title
	Links     []Link
	Pages     []Page
}

// Device logical dimensions, keyed by the header's APPLY_EQUIPMENT tag.
// "N5" identifies the larger-format device; anything else (including
// absent) defaults to the smaller one, matching the teacher's
// detectDeviceDimensions.
const (
	smallWidth, smallHeight = 1404, 1872
	largeWidth, largeHeight = 1920, 2560
)

// New builds a Notebook from a parsed structural tree, eagerly reading
// the small cover/keyword/title payloads from src (page and layer
// bitmaps stay address-only and are fetched on demand at render time,
// per spec §5's lazy-content allowance).
func New(src block.Source, m *parser.Metadata) (*Notebook, error) {
	width, height := smallWidth, smallHeight
	if equip, ok := m.Header.Get("APPLY_EQUIPMENT"); ok && equip == "N5" {
		width, height = largeWidth, largeHeight
	}

	fileID, _ := m.Header.Get("FILE_ID")

	cover, err := buildCover(src, m.Footer)
	if err != nil {
		return nil, err
	}

	keywords := buildKeywords(m.Keywords)

	titles, err := buildTitles(src, m.Titles)
	if err != nil {
		return nil, err
	}

	links := buildLinks(m.Links, fileID)

	pages := buildPages(m.Pages)

	return &Notebook{
		Signature: m.Signature,
		FileID:    fileID,
		Width:     width,
		Height:    height,
		Cover:     cover,
		Keywords:  keywords,
		Titles:    titles,
		Links:     links,
		Pages:     pages,
	}, nil
}

// Page returns the page at index i, the renderer's (C9) bounds-checked
// entry point (spec §8 scenario S1: rendering any page of a 0-page
// notebook fails with IndexOutOfRange rather than panicking).
func (n *Notebook) Page(i int) (Page, error) {
	if i < 0 || i >= len(n.Pages) {
		return Page{}, snerr.NewIndexOutOfRange(fmt.Sprintf("page %d, notebook has %d page(s)", i, len(n.Pages)))
	}
	return n.Pages[i], nil
}

func addrOf(b *metadata.Block, key string) uint32 {
	s, ok := b.Get(key)
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// buildCover resolves COVER_2 if present, else COVER_1.
func buildCover(src block.Source, footer *metadata.Block) (*Cover, error) {
	addr := addrOf(footer, "COVER_2")
	if addr == 0 {
		addr = addrOf(footer, "COVER_1")
	}
	if addr == 0 {
		return &Cover{}, nil
	}
	content, err := block.ReadBlock(src, addr)
	if err != nil {
		return nil, err
	}
	return &Cover{Content: content}, nil
}

func buildKeywords(raws []parser.KeywordBlock) []Keyword {
	out := make([]Keyword, 0, len(raws))
	for _, kw := range raws {
		pageNumber := -1
		if s, ok := kw.Raw.Get("KEYWORDPAGE"); ok {
			if n, err := strconv.Atoi(s); err == nil {
				pageNumber = n - 1
			}
		}
		position := topOfRect(kw.Raw, "KEYWORDRECT")

		out = append(out, Keyword{
			PageNumber: pageNumber,
			Position:   position,
			Text:       kw.Text,
		})
	}
	return out
}

func buildTitles(src block.Source, raws []parser.NamedBlock) ([]Title, error) {
	out := make([]Title, 0, len(raws))
	for _, t := range raws {
		pageNumber := pageNumberFromFooterKey(t.FooterKey)
		position := topOfRect(t.Raw, "TITLERECTORI")

		bitmapAddr := addrOf(t.Raw, "TITLEBITMAP")
		var content []byte
		if bitmapAddr != 0 {
			var err error
			content, err = block.ReadBlock(src, bitmapAddr)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, Title{PageNumber: pageNumber, Position: position, Content: content})
	}
	return out, nil
}

func buildLinks(raws []parser.NamedBlock, fileID string) []Link {
	out := make([]Link, 0, len(raws))
	for _, l := range raws {
		pageNumber := pageNumberFromFooterKey(l.FooterKey)
		direction := DirectionOut
		if strings.HasPrefix(l.FooterKey, "LINKI_") {
			direction = DirectionIn
		}

		rect := rectOf(l.Raw, "LINKRECT")

		destPage := -1
		if s, ok := l.Raw.Get("OBJPAGE"); ok {
			if n, err := strconv.Atoi(s); err == nil {
				destPage = n - 1
			}
		}

		linkType := LinkTypePage
		url := ""
		if fp, ok := l.Raw.Get("LINKFILEPATH"); ok {
			linkType = LinkTypeWeb
			if decoded, err := base64.StdEncoding.DecodeString(fp); err == nil {
				url = string(decoded)
			} else {
				url = fp
			}
		}

		sourceFileID, _ := l.Raw.Get("LINKFILEID")
		sameFile := sourceFileID != "" && sourceFileID == fileID

		out = append(out, Link{
			PageNumber:   pageNumber,
			Direction:    direction,
			Type:         linkType,
			SourceFileID: sourceFileID,
			SameFile:     sameFile,
			DestPage:     destPage,
			URL:          url,
			Rect:         rect,
		})
	}
	return out
}

// pageNumberFromFooterKey reads the 1-indexed page number stored in
// characters [6:10] of a footer attachment key (e.g. "TITLE_00010002")
// and returns it 0-indexed, or -1 when those characters are missing or
// not a number; this is the convention original_source's
// _get_page_number_from_footer_property and the teacher's parseLinks
// both rely on.
func pageNumberFromFooterKey(key string) int {
	if len(key) < 10 {
		return -1
	}
	n, err := strconv.Atoi(key[6:10])
	if err != nil {
		return -1
	}
	return n - 1
}

// topOfRect returns the "top" field (index 1) of a "left,top,width,height"
// rectangle string stored under key.
func topOfRect(b *metadata.Block, key string) int {
	s, ok := b.Get(key)
	if !ok {
		return 0
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return 0
	}
	v, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return v
}

func rectOf(b *metadata.Block, key string) Rect {
	s, ok := b.Get(key)
	if !ok {
		return Rect{}
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}
	}
	var nums [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Rect{}
		}
		nums[i] = n
	}
	return Rect{Left: nums[0], Top: nums[1], Width: nums[2], Height: nums[3]}
}

func buildPages(raws []parser.PageBlock) []Page {
	out := make([]Page, 0, len(raws))
	for _, p := range raws {
		style, _ := p.Raw.Get("PAGESTYLE")
		styleHash, _ := p.Raw.Get("PAGESTYLEMD5")
		if styleHash == "0" {
			styleHash = ""
		}
		orientation, _ := p.Raw.Get("ORIENTATION")
		pageID, _ := p.Raw.Get("PAGEID")

		layerInfo, ok := p.Raw.Get("LAYERINFO")
		if !ok || layerInfo == "none" {
			layerInfo = ""
		} else {
			layerInfo = strings.ReplaceAll(layerInfo, "#", ":")
		}

		var layerOrder []string
		if seq, ok := p.Raw.Get("LAYERSEQ"); ok && seq != "" {
			layerOrder = strings.Split(seq, ",")
		}

		out = append(out, Page{
			Addr:           p.Addr,
			ContentAddr:    addrOf(p.Raw, "DATA"),
			Protocol:       firstOr(p.Raw, "PROTOCOL"),
			Style:          style,
			StyleHash:      styleHash,
			LayerInfoRaw:   layerInfo,
			LayerOrder:     layerOrder,
			Orientation:    orientation,
			PageID:         pageID,
			TotalPathAddr:  addrOf(p.Raw, "TOTALPATH"),
			RecognFileAddr: addrOf(p.Raw, "RECOGNFILE"),
			RecognTextAddr: addrOf(p.Raw, "RECOGNTEXT"),
			Layers:         renameLayers(p.Layers),
		})
	}
	return out
}

func firstOr(b *metadata.Block, key string) string {
	v, _ := b.Get(key)
	return v
}

// renameLayers applies spec §4.5's layer-name workaround: the second
// MAINLAYER block encountered is renamed to BGLAYER, deterministically,
// in a single pass.
func renameLayers(raws []parser.LayerBlock) []Layer {
	if raws == nil {
		return nil
	}
	out := make([]Layer, 0, len(raws))
	seenMain := false
	for _, l := range raws {
		name := l.Name
		if name == "MAINLAYER" {
			if seenMain {
				name = "BGLAYER"
			} else {
				seenMain = true
			}
		}
		out = append(out, Layer{
			Name:            name,
			Protocol:        firstOr(l.Raw, "LAYERPROTOCOL"),
			BitmapAddr:      addrOf(l.Raw, "LAYERBITMAP"),
			VectorGraphAddr: addrOf(l.Raw, "LAYERVECTORGRAPH"),
			RecognAddr:      addrOf(l.Raw, "LAYERRECOGN"),
		})
	}
	return out
}
