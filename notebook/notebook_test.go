package notebook_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snotelib/supernote/notebook"
	"github.com/snotelib/supernote/parser"
	"github.com/snotelib/supernote/signature"
	"github.com/snotelib/supernote/snerr"
)

// fileBuilder mirrors the parser package's test helper: a 24-byte header
// prefix followed by length-prefixed blocks appended on demand.
type fileBuilder struct {
	buf bytes.Buffer
}

func newFileBuilder(fileType, sig string) *fileBuilder {
	b := &fileBuilder{}
	b.buf.WriteString(fileType)
	b.buf.WriteString(sig)
	return b
}

func (b *fileBuilder) addBlock(payload string) uint32 {
	addr := uint32(b.buf.Len())
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	b.buf.Write(lenBuf[:])
	b.buf.WriteString(payload)
	return addr
}

func (b *fileBuilder) finish(footerAddr uint32) *bytes.Reader {
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], footerAddr)
	b.buf.Write(tail[:])
	return bytes.NewReader(b.buf.Bytes())
}

func TestNewResolvesCoverKeywordTitleAndLayerRename(t *testing.T) {
	b := newFileBuilder("note", "SN_FILE_VER_20200001")

	headerAddr := b.addBlock("<FILE_TYPE:NOTE><APPLY_EQUIPMENT:N5><FILE_ID:abc123>")
	coverAddr := b.addBlock("coverbytes")

	siteAddr := b.addBlock("full keyword text")
	kwAddr := b.addBlock(fmt.Sprintf("<KEYWORDPAGE:1><KEYWORDRECT:5,15,25,35><KEYWORDSITE:%d>", siteAddr))

	titleAddr := b.addBlock("<TITLERECTORI:1,2,3,4>")

	layer1 := b.addBlock("<LAYERNAME:MAINLAYER><LAYERPROTOCOL:RATTA_RLE><LAYERBITMAP:0>")
	layer2 := b.addBlock("<LAYERNAME:MAINLAYER><LAYERPROTOCOL:RATTA_RLE><LAYERBITMAP:0>")
	pageAddr := b.addBlock(fmt.Sprintf(
		"<MAINLAYER:%d><MAINLAYER:%d><LAYERSEQ:MAINLAYER,BGLAYER><PAGESTYLE:style_white><PAGESTYLEMD5:0>",
		layer1, layer2))

	footerAddr := b.addBlock(fmt.Sprintf(
		"<FILE_FEATURE:%d><COVER_2:%d><PAGE1:%d><KEYWORD_00010001:%d><TITLE_00010002:%d>",
		headerAddr, coverAddr, pageAddr, kwAddr, titleAddr))

	src := b.finish(footerAddr)

	m, err := parser.Parse(src, int64(src.Len()), signature.PolicyStrict)
	require.NoError(t, err)

	nb, err := notebook.New(src, m)
	require.NoError(t, err)

	assert.Equal(t, "abc123", nb.FileID)
	assert.Equal(t, 1920, nb.Width)
	assert.Equal(t, 2560, nb.Height)

	require.NotNil(t, nb.Cover)
	assert.Equal(t, "coverbytes", string(nb.Cover.Content))

	require.Len(t, nb.Keywords, 1)
	assert.Equal(t, 0, nb.Keywords[0].PageNumber)
	assert.Equal(t, 15, nb.Keywords[0].Position)
	assert.Equal(t, "full keyword text", nb.Keywords[0].Text)

	require.Len(t, nb.Titles, 1)
	assert.Equal(t, 0, nb.Titles[0].PageNumber) // from TITLE_00010002[6:10] = "0001" - 1
	assert.Equal(t, 2, nb.Titles[0].Position)

	require.Len(t, nb.Pages, 1)
	page := nb.Pages[0]
	assert.Equal(t, "style_white", page.Style)
	assert.Equal(t, "", page.StyleHash) // "0" collapses to ""
	require.Len(t, page.Layers, 2)
	assert.Equal(t, "MAINLAYER", page.Layers[0].Name)
	assert.Equal(t, "BGLAYER", page.Layers[1].Name) // second MAINLAYER renamed
}

func TestNewDefaultsToSmallDimensionsWithoutEquipmentTag(t *testing.T) {
	b := newFileBuilder("note", "SN_FILE_VER_20200001")
	headerAddr := b.addBlock("<FILE_TYPE:NOTE>")
	footerAddr := b.addBlock(fmt.Sprintf("<FILE_FEATURE:%d>", headerAddr))
	src := b.finish(footerAddr)

	m, err := parser.Parse(src, int64(src.Len()), signature.PolicyStrict)
	require.NoError(t, err)

	nb, err := notebook.New(src, m)
	require.NoError(t, err)
	assert.Equal(t, 1404, nb.Width)
	assert.Equal(t, 1872, nb.Height)
	assert.Empty(t, nb.Pages)
}

func TestLinkClassifiesPageVersusWebByFilepathPresence(t *testing.T) {
	b := newFileBuilder("note", "SN_FILE_VER_20200001")
	headerAddr := b.addBlock("<FILE_TYPE:NOTE><FILE_ID:selfid>")

	pageLinkAddr := b.addBlock("<LINKFILEID:selfid><OBJPAGE:3><LINKRECT:1,2,3,4>")

	url := base64.StdEncoding.EncodeToString([]byte("https://example.com"))
	webLinkAddr := b.addBlock(fmt.Sprintf("<LINKFILEPATH:%s>", url))

	footerAddr := b.addBlock(fmt.Sprintf(
		"<FILE_FEATURE:%d><LINKO_00010001:%d><LINKO_00020002:%d>",
		headerAddr, pageLinkAddr, webLinkAddr))
	src := b.finish(footerAddr)

	m, err := parser.Parse(src, int64(src.Len()), signature.PolicyStrict)
	require.NoError(t, err)

	nb, err := notebook.New(src, m)
	require.NoError(t, err)
	require.Len(t, nb.Links, 2)

	pageLink := nb.Links[0]
	assert.Equal(t, notebook.LinkTypePage, pageLink.Type)
	assert.Equal(t, notebook.DirectionOut, pageLink.Direction)
	assert.True(t, pageLink.SameFile)
	assert.Equal(t, 2, pageLink.DestPage)
	assert.Equal(t, 0, pageLink.PageNumber) // LINKO_0001... -> page 1 - 1

	webLink := nb.Links[1]
	assert.Equal(t, notebook.LinkTypeWeb, webLink.Type)
	assert.Equal(t, "https://example.com", webLink.URL)
	assert.Equal(t, 1, webLink.PageNumber) // LINKO_0002... -> page 2 - 1
}

// S1: a minimal X-series file with an empty footer parses to 0 pages;
// Page(any) fails with IndexOutOfRange.
func TestPageOnEmptyNotebookFailsWithIndexOutOfRange(t *testing.T) {
	b := newFileBuilder("note", "SN_FILE_VER_20200001")
	footerAddr := b.addBlock("")
	src := b.finish(footerAddr)

	m, err := parser.Parse(src, int64(src.Len()), signature.PolicyStrict)
	require.NoError(t, err)

	nb, err := notebook.New(src, m)
	require.NoError(t, err)
	require.Empty(t, nb.Pages)

	_, err = nb.Page(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, snerr.ErrIndexOutOfRange)
}

func TestLegacyPagesCarryNoLayers(t *testing.T) {
	b := &fileBuilder{}
	b.buf.WriteString("SN_FILE_ASA_20190529")
	pageAddr := b.addBlock("<DATA:0><PROTOCOL:RATTA_RLE>")
	footerAddr := b.addBlock(fmt.Sprintf("<PAGE:%d>", pageAddr))
	src := b.finish(footerAddr)

	m, err := parser.Parse(src, int64(src.Len()), signature.PolicyStrict)
	require.NoError(t, err)

	nb, err := notebook.New(src, m)
	require.NoError(t, err)
	require.Len(t, nb.Pages, 1)
	assert.Nil(t, nb.Pages[0].Layers)
	assert.Equal(t, "RATTA_RLE", nb.Pages[0].Protocol)
}
