// Package snerr defines the error kinds produced by the supernote core.
//
// Every kind carries enough context to build a useful message but stays a
// plain struct so callers can either match it with errors.Is against the
// package-level sentinel, or errors.As to the concrete type to inspect its
// fields.
package snerr

import "fmt"

// UnsupportedFileFormat is returned when no known signature family matches
// the start of the file.
type UnsupportedFileFormat struct {
	Reason string
}

func (e *UnsupportedFileFormat) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Reason)
}

func (e *UnsupportedFileFormat) Is(target error) bool {
	_, ok := target.(*UnsupportedFileFormat)
	return ok
}

// ErrUnsupportedFileFormat is the sentinel for errors.Is comparisons.
var ErrUnsupportedFileFormat = &UnsupportedFileFormat{Reason: "unknown signature"}

// NewUnsupportedFileFormat builds an UnsupportedFileFormat error.
func NewUnsupportedFileFormat(reason string) error {
	return &UnsupportedFileFormat{Reason: reason}
}

// MalformedMetadata is returned when a metadata block cannot be tokenized,
// or a required key is missing from one.
type MalformedMetadata struct {
	Reason string
}

func (e *MalformedMetadata) Error() string {
	return fmt.Sprintf("malformed metadata: %s", e.Reason)
}

func (e *MalformedMetadata) Is(target error) bool {
	_, ok := target.(*MalformedMetadata)
	return ok
}

var ErrMalformedMetadata = &MalformedMetadata{Reason: "unparseable block"}

// NewMalformedMetadata builds a MalformedMetadata error.
func NewMalformedMetadata(reason string) error {
	return &MalformedMetadata{Reason: reason}
}

// DecoderError is returned when a decoder's output fails an invariant:
// a length mismatch, a dimension mismatch, or an unknown protocol tag.
type DecoderError struct {
	Reason string
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("decoder error: %s", e.Reason)
}

func (e *DecoderError) Is(target error) bool {
	_, ok := target.(*DecoderError)
	return ok
}

var ErrDecoderError = &DecoderError{Reason: "decode failed"}

// NewDecoderError builds a DecoderError.
func NewDecoderError(reason string) error {
	return &DecoderError{Reason: reason}
}

// NewUnknownDecodeProtocol builds a DecoderError for an unrecognized
// protocol tag.
func NewUnknownDecodeProtocol(tag string) error {
	return &DecoderError{Reason: fmt.Sprintf("unknown decode protocol: %q", tag)}
}

// IndexOutOfRange is returned when a caller asks for a page index outside
// [0, len(Pages)), e.g. rendering any page of a notebook with 0 pages.
type IndexOutOfRange struct {
	Reason string
}

func (e *IndexOutOfRange) Error() string {
	return fmt.Sprintf("index out of range: %s", e.Reason)
}

func (e *IndexOutOfRange) Is(target error) bool {
	_, ok := target.(*IndexOutOfRange)
	return ok
}

var ErrIndexOutOfRange = &IndexOutOfRange{Reason: "page index out of range"}

// NewIndexOutOfRange builds an IndexOutOfRange error.
func NewIndexOutOfRange(reason string) error {
	return &IndexOutOfRange{Reason: reason}
}

// BoundedIoError is returned when a read or seek would run past the bounds
// of the underlying byte source.
type BoundedIoError struct {
	Reason string
}

func (e *BoundedIoError) Error() string {
	return fmt.Sprintf("bounded I/O error: %s", e.Reason)
}

func (e *BoundedIoError) Is(target error) bool {
	_, ok := target.(*BoundedIoError)
	return ok
}

var ErrBoundedIoError = &BoundedIoError{Reason: "read beyond end of source"}

// NewBoundedIoError builds a BoundedIoError.
func NewBoundedIoError(reason string) error {
	return &BoundedIoError{Reason: reason}
}
