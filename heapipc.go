// Package heapipc moves per-frame data between a Controller process and a
// Renderer process through one sealed, memory-backed heap that both map.
//
// The Controller creates the heap and spawns the Renderer. The Renderer,
// which alone knows its backend's import constraints, negotiates the heap
// layout and reports it over a pipe-based control link. After that the two
// exchange exactly one slot index per frame in each direction; pixels never
// cross the process boundary by copy.
//
// Heap layout, as negotiated:
//
//	<<<< heap base
//	BASE_SKIP                      // padding up to the backend's import alignment
//	COLOR_BLOCK                    // 4 x float32, written by the Controller
//	OUTPUT_SLOT[0]                 // B8G8R8A8 image, written by the Renderer
//	...
//	OUTPUT_SLOT[SlotCount-1]
//	<<<< unused tail up to heap size
package heapipc

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the protocol can report.
//
//go:generate go tool stringer -type=ErrorCode -trimprefix=ErrCode
type ErrorCode uint64

const (
	ErrCodeNone              ErrorCode = 0x00 // Not a heapipc failure
	ErrCodeResourceCreation  ErrorCode = 0x01 // Heap, file, channel or device creation failed
	ErrCodeProtocolViolation ErrorCode = 0x02 // Unexpected value or short transfer on the control link
	ErrCodeLayoutOverflow    ErrorCode = 0x03 // Layout does not fit the heap or cannot be imported
	ErrCodeBackendFailure    ErrorCode = 0x04 // Render Backend call failed
	ErrCodeInvalidOp         ErrorCode = 0x05 // Operation issued out of protocol order
)

// Error definitions for heapipc operations
var (
	ErrResourceCreation  = errors.New("heapipc: resource creation failure")
	ErrProtocolViolation = errors.New("heapipc: protocol violation")
	ErrLayoutOverflow    = errors.New("heapipc: layout overflow")
	ErrBackendFailure    = errors.New("heapipc: backend failure")
	ErrInvalidOp         = errors.New("heapipc: invalid operation")

	// ErrShortTransfer reports fewer bytes than a word on the control link.
	// It is a protocol violation.
	ErrShortTransfer = fmt.Errorf("%w: short transfer on control link", ErrProtocolViolation)
)

// CodeOf maps an error returned by this module to its ErrorCode
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrCodeNone
	case errors.Is(err, ErrResourceCreation):
		return ErrCodeResourceCreation
	case errors.Is(err, ErrProtocolViolation):
		return ErrCodeProtocolViolation
	case errors.Is(err, ErrLayoutOverflow):
		return ErrCodeLayoutOverflow
	case errors.Is(err, ErrBackendFailure):
		return ErrCodeBackendFailure
	case errors.Is(err, ErrInvalidOp):
		return ErrCodeInvalidOp
	default:
		return ErrCodeNone
	}
}

// failf wraps a taxonomy sentinel with context; %w verbs in format are kept
func failf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
