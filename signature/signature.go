// Package signature identifies which file family (legacy vs. X-series)
// and firmware variant a supernote file belongs to, per spec §4.3 (C3).
package signature

import (
	"io"
	"regexp"

	"github.com/snotelib/supernote/snerr"
)

// Family distinguishes the two supernote file families.
type Family int

const (
	// FamilyLegacy is the original Supernote (SN_FILE_ASA_... signature).
	FamilyLegacy Family = iota
	// FamilyXSeries is the X-series (SN_FILE_VER_... signature).
	FamilyXSeries
)

// Policy controls how strictly a signature is matched against the known
// list.
type Policy int

const (
	// PolicyStrict accepts only an exact match from the enumerated
	// allow-list.
	PolicyStrict Policy = iota
	// PolicyLoose accepts any byte sequence matching the family's
	// regular expression, treating it as the latest known version.
	PolicyLoose
)

// Legacy family constants.
const (
	LegacySignatureOffset  = 0
	legacySignaturePattern = `^SN_FILE_ASA_\d{8}$`
)

// LegacySignatures is the allow-list of known legacy signatures, in
// release order; the last entry is "latest".
var LegacySignatures = []string{
	"SN_FILE_ASA_20190529",
}

// X-series family constants.
const (
	XSeriesSignatureOffset  = 4
	xSeriesSignaturePattern = `^SN_FILE_VER_\d{8}$`
)

// XSeriesSignatures is the allow-list of known X-series signatures, in
// firmware release order; the last entry is "latest".
var XSeriesSignatures = []string{
	"SN_FILE_VER_20200001", // Firmware C.053
	"SN_FILE_VER_20200005", // Firmware C.077
	"SN_FILE_VER_20200006", // Firmware C.130
	"SN_FILE_VER_20200007", // Firmware C.159
	"SN_FILE_VER_20200008", // Firmware C.237
	"SN_FILE_VER_20210009", // Firmware C.291
	"SN_FILE_VER_20210010", // Firmware Chauvet 2.1.6
	"SN_FILE_VER_20220011", // Firmware Chauvet 2.5.17
	"SN_FILE_VER_20220013", // Firmware Chauvet 2.6.19
	"SN_FILE_VER_20230014", // Firmware Chauvet 2.10.25
	"SN_FILE_VER_20230015", // Firmware Chauvet 3.14.27
}

var (
	legacyPattern  = regexp.MustCompile(legacySignaturePattern)
	xSeriesPattern = regexp.MustCompile(xSeriesSignaturePattern)
)

// Detected is the result of a successful detection.
type Detected struct {
	Family    Family
	Signature string
}

// HighResGrayscale reports whether the detected signature is recent
// enough to carry the X2 high-resolution grayscale RLE extension
// (spec §4.6). Every firmware from C.291 onward qualifies.
func (d Detected) HighResGrayscale() bool {
	if d.Family != FamilyXSeries {
		return false
	}
	switch d.Signature {
	case "SN_FILE_VER_20200001", "SN_FILE_VER_20200005", "SN_FILE_VER_20200006",
		"SN_FILE_VER_20200007", "SN_FILE_VER_20200008":
		return false
	default:
		return true
	}
}

// readAt reads exactly n bytes at offset from src, returning ("", false)
// on any read error (including short reads) so callers can try the next
// candidate signature rather than fail outright.
func readAt(src io.ReaderAt, offset int64, n int) (string, bool) {
	buf := make([]byte, n)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return "", false
	}
	return string(buf), true
}

// Detect resolves the file family and signature. It tries X-series first,
// then legacy, matching spec §4.3's resolution order.
func Detect(src io.ReaderAt, policy Policy) (Detected, error) {
	if d, ok := detectXSeries(src, policy); ok {
		return d, nil
	}
	if d, ok := detectLegacy(src, policy); ok {
		return d, nil
	}
	return Detected{}, snerr.NewUnsupportedFileFormat("no known signature family matches")
}

func detectXSeries(src io.ReaderAt, policy Policy) (Detected, bool) {
	return detectFamily(src, FamilyXSeries, XSeriesSignatureOffset, XSeriesSignatures, xSeriesPattern, policy)
}

func detectLegacy(src io.ReaderAt, policy Policy) (Detected, bool) {
	return detectFamily(src, FamilyLegacy, LegacySignatureOffset, LegacySignatures, legacyPattern, policy)
}

func detectFamily(src io.ReaderAt, family Family, offset int, known []string, pattern *regexp.Regexp, policy Policy) (Detected, bool) {
	for _, sig := range known {
		if s, ok := readAt(src, int64(offset), len(sig)); ok && s == sig {
			return Detected{Family: family, Signature: sig}, true
		}
	}
	if policy != PolicyLoose {
		return Detected{}, false
	}
	latest := known[len(known)-1]
	s, ok := readAt(src, int64(offset), len(latest))
	if !ok || !pattern.MatchString(s) {
		return Detected{}, false
	}
	return Detected{Family: family, Signature: latest}, true
}
