// Package block implements random-access reads of length-prefixed blocks
// from a seekable byte source, per spec §4.1 (C1).
//
// Every block is a 4-byte little-endian length L followed by L bytes of
// payload. Addresses stored in metadata point at the length field. An
// address of 0 means "absent" and reads as an empty block, never as an
// I/O error.
package block

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/snotelib/supernote/snerr"
)

// AddressSize is the width, in bytes, of an address or length field.
const AddressSize = 4

// Source is the seekable byte source blocks are read from. *os.File and
// bytes.Reader both satisfy it.
type Source interface {
	io.ReaderAt
}

// ReadBlock reads the block at address. Address 0 yields a nil slice and
// no error. Fails with a BoundedIoError when the length would run past
// the end of source.
func ReadBlock(src Source, address uint32) ([]byte, error) {
	if address == 0 {
		return nil, nil
	}

	var lenBuf [AddressSize]byte
	if _, err := src.ReadAt(lenBuf[:], int64(address)); err != nil {
		return nil, snerr.NewBoundedIoError(fmt.Sprintf("reading block length at address %d: %v", address, err))
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := src.ReadAt(payload, int64(address)+AddressSize); err != nil {
			return nil, snerr.NewBoundedIoError(fmt.Sprintf("reading block payload at address %d: %v", address, err))
		}
	}
	return payload, nil
}

// ReadUint32LE reads a 32-bit little-endian integer at offset.
func ReadUint32LE(src Source, offset int64) (uint32, error) {
	var buf [AddressSize]byte
	if _, err := src.ReadAt(buf[:], offset); err != nil {
		return 0, snerr.NewBoundedIoError(fmt.Sprintf("reading u32 at offset %d: %v", offset, err))
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// FooterAddress reads the trailing 4-byte footer pointer, located at the
// last four bytes of a source of the given total length.
func FooterAddress(src Source, totalLength int64) (uint32, error) {
	if totalLength < AddressSize {
		return 0, snerr.NewBoundedIoError("source too small to contain a footer pointer")
	}
	return ReadUint32LE(src, totalLength-AddressSize)
}
