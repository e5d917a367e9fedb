// Package parser implements the structural parser of spec §4.4 (C4):
// the footer → header → pages → layers address-graph walk that turns a
// raw byte source into a tree of metadata blocks.
//
// Grounded on the teacher's notebook.go:ParseNotebook/parseLinks (the
// address-walk shape) and original_source's parser.py SupernoteParser/
// SupernoteXParser class hierarchy (the legacy-vs-X-series algorithm
// split and the KEYWORD_*/TITLE_*/LINK* footer attachment scheme).
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/snotelib/supernote/block"
	"github.com/snotelib/supernote/metadata"
	"github.com/snotelib/supernote/signature"
	"github.com/snotelib/supernote/snerr"
)

// NamedBlock is a metadata block attached to the footer under one of its
// own keys (e.g. "KEYWORD_00010003"), retaining that key since the
// notebook model derives page numbers from it (spec §4.5).
type NamedBlock struct {
	FooterKey string
	Raw       *metadata.Block
}

// KeywordBlock is a footer-attached keyword block, with its KEYWORD text
// resolved via the KEYWORDSITE re-read workaround (spec §4.4 step 3).
type KeywordBlock struct {
	NamedBlock
	Text string
}

// LayerBlock is one layer metadata block belonging to a page, keyed by
// its layer-slot name as found in the page block (MAINLAYER, LAYER1,
// LAYER2, LAYER3, BGLAYER). A page may carry two blocks named MAINLAYER
// when the file exhibits the MAINLAYER-duplication defect (spec §4.5);
// the rename workaround is applied by the notebook package, not here.
type LayerBlock struct {
	Name string
	Raw  *metadata.Block
}

// PageBlock is one page's metadata, plus its resolved layer blocks.
// Layers is nil for legacy-family pages, which address their bitmap
// directly via DATA/PROTOCOL instead of per-layer indirection.
type PageBlock struct {
	Addr   uint32
	Raw    *metadata.Block
	Layers []LayerBlock
}

// Metadata is the parsed structural tree: signature, file type, header,
// footer, and the footer-attached keyword/title/link blocks and ordered
// page sequence.
type Metadata struct {
	Signature signature.Detected
	FileType  string
	Header    *metadata.Block
	Footer    *metadata.Block
	Keywords  []KeywordBlock
	Titles    []NamedBlock
	Links     []NamedBlock
	Pages     []PageBlock
}

var knownLayerKeys = map[string]bool{
	"MAINLAYER": true,
	"LAYER1":    true,
	"LAYER2":    true,
	"LAYER3":    true,
	"BGLAYER":   true,
}

// Parse reads src (a seekable byte source of the given total length) and
// produces its structural Metadata tree.
func Parse(src block.Source, totalLength int64, policy signature.Policy) (*Metadata, error) {
	det, err := signature.Detect(src, policy)
	if err != nil {
		return nil, err
	}

	fileType, err := readFileType(src)
	if err != nil {
		return nil, fmt.Errorf("parser: reading file type: %w", err)
	}

	footerAddr, err := block.FooterAddress(src, totalLength)
	if err != nil {
		return nil, fmt.Errorf("parser: reading footer address: %w", err)
	}
	footer, err := parseBlockAt(src, footerAddr)
	if err != nil {
		return nil, fmt.Errorf("parser: reading footer: %w", err)
	}

	var header *metadata.Block
	if addrStr, ok := footer.Get("FILE_FEATURE"); ok {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, snerr.NewMalformedMetadata("parser: FILE_FEATURE is not a valid address: " + addrStr)
		}
		header, err = parseBlockAt(src, addr)
		if err != nil {
			return nil, fmt.Errorf("parser: reading header: %w", err)
		}
	} else {
		header = metadata.NewBlock()
	}

	m := &Metadata{
		Signature: det,
		FileType:  fileType,
		Header:    header,
		Footer:    footer,
	}

	if det.Family == signature.FamilyXSeries {
		if m.Keywords, err = parseKeywords(src, footer); err != nil {
			return nil, err
		}
		if m.Titles, err = parseNamedGroup(src, footer, "TITLE_"); err != nil {
			return nil, err
		}
		if m.Links, err = parseNamedGroup(src, footer, "LINK"); err != nil {
			return nil, err
		}
	}

	pages, err := parsePages(src, footer, det.Family)
	if err != nil {
		return nil, err
	}
	m.Pages = pages

	return m, nil
}

func readFileType(src block.Source) (string, error) {
	buf := make([]byte, 4)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return "", snerr.NewBoundedIoError(fmt.Sprintf("parser: reading file type: %v", err))
	}
	return string(buf), nil
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseBlockAt(src block.Source, addr uint32) (*metadata.Block, error) {
	payload, err := block.ReadBlock(src, addr)
	if err != nil {
		return nil, err
	}
	return metadata.Parse(payload)
}

// parseKeywords resolves every KEYWORD_* footer attachment, applying the
// KEYWORDSITE re-read workaround for the truncated KEYWORD token.
func parseKeywords(src block.Source, footer *metadata.Block) ([]KeywordBlock, error) {
	var out []KeywordBlock
	for _, key := range footer.KeysWithPrefix("KEYWORD_") {
		for _, addrStr := range footer.GetAll(key) {
			addr, err := parseAddr(addrStr)
			if err != nil {
				return nil, snerr.NewMalformedMetadata("parser: " + key + " is not a valid address: " + addrStr)
			}
			raw, err := parseBlockAt(src, addr)
			if err != nil {
				return nil, fmt.Errorf("parser: reading keyword block at %s: %w", key, err)
			}
			var text string
			if siteStr, ok := raw.Get("KEYWORDSITE"); ok {
				siteAddr, err := parseAddr(siteStr)
				if err != nil {
					return nil, snerr.NewMalformedMetadata("parser: KEYWORDSITE is not a valid address: " + siteStr)
				}
				content, err := block.ReadBlock(src, siteAddr)
				if err != nil {
					return nil, fmt.Errorf("parser: re-reading KEYWORDSITE content: %w", err)
				}
				text = string(content)
			}
			out = append(out, KeywordBlock{NamedBlock: NamedBlock{FooterKey: key, Raw: raw}, Text: text})
		}
	}
	return out, nil
}

func parseNamedGroup(src block.Source, footer *metadata.Block, prefix string) ([]NamedBlock, error) {
	var out []NamedBlock
	for _, key := range footer.KeysWithPrefix(prefix) {
		for _, addrStr := range footer.GetAll(key) {
			addr, err := parseAddr(addrStr)
			if err != nil {
				return nil, snerr.NewMalformedMetadata("parser: " + key + " is not a valid address: " + addrStr)
			}
			raw, err := parseBlockAt(src, addr)
			if err != nil {
				return nil, fmt.Errorf("parser: reading %s block: %w", key, err)
			}
			out = append(out, NamedBlock{FooterKey: key, Raw: raw})
		}
	}
	return out, nil
}

type indexedAddr struct {
	index int
	addr  uint32
}

func parsePages(src block.Source, footer *metadata.Block, family signature.Family) ([]PageBlock, error) {
	var entries []indexedAddr

	if family == signature.FamilyLegacy {
		for i, addrStr := range footer.GetAll("PAGE") {
			addr, err := parseAddr(addrStr)
			if err != nil {
				return nil, snerr.NewMalformedMetadata("parser: PAGE is not a valid address: " + addrStr)
			}
			entries = append(entries, indexedAddr{index: i, addr: addr})
		}
	} else {
		for _, key := range footer.KeysWithPrefix("PAGE") {
			suffix := strings.TrimPrefix(key, "PAGE")
			idx, err := strconv.Atoi(suffix)
			if err != nil {
				continue
			}
			for _, addrStr := range footer.GetAll(key) {
				addr, err := parseAddr(addrStr)
				if err != nil {
					return nil, snerr.NewMalformedMetadata("parser: " + key + " is not a valid address: " + addrStr)
				}
				entries = append(entries, indexedAddr{index: idx, addr: addr})
			}
		}
		sortByIndex(entries)
	}

	pages := make([]PageBlock, 0, len(entries))
	for _, e := range entries {
		raw, err := parseBlockAt(src, e.addr)
		if err != nil {
			return nil, fmt.Errorf("parser: reading page at address %d: %w", e.addr, err)
		}

		var layers []LayerBlock
		if family == signature.FamilyXSeries {
			layers, err = parseLayers(src, raw)
			if err != nil {
				return nil, err
			}
		}

		pages = append(pages, PageBlock{Addr: e.addr, Raw: raw, Layers: layers})
	}
	return pages, nil
}

func parseLayers(src block.Source, page *metadata.Block) ([]LayerBlock, error) {
	var layers []LayerBlock
	for _, key := range page.Keys() {
		if !knownLayerKeys[key] {
			continue
		}
		for _, addrStr := range page.GetAll(key) {
			addr, err := parseAddr(addrStr)
			if err != nil {
				return nil, snerr.NewMalformedMetadata("parser: " + key + " is not a valid address: " + addrStr)
			}
			raw, err := parseBlockAt(src, addr)
			if err != nil {
				return nil, fmt.Errorf("parser: reading layer %s: %w", key, err)
			}
			layers = append(layers, LayerBlock{Name: key, Raw: raw})
		}
	}
	return layers, nil
}

func sortByIndex(entries []indexedAddr) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].index < entries[j-1].index; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
