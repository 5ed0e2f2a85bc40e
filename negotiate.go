package heapipc

import (
	"math/bits"

	"github.com/gogpu/gputypes"
	"golang.org/x/sys/unix"

	"gosuda.org/heapipc/internal/protocol"
)

// NegotiationState tracks the one-time heap layout negotiation.
//
//go:generate go tool stringer -type=NegotiationState -trimprefix=Negotiation
type NegotiationState uint32

const (
	NegotiationNone        NegotiationState = iota // No negotiation initiated
	NegotiationNegotiating                         // Negotiation in progress
	NegotiationNegotiated                          // Layout agreed and applied
	NegotiationFailed                              // Negotiation failed, the process must stop
)

// LayoutRequest is the input of the Renderer-side negotiation
type LayoutRequest struct {
	Mode      ImportMode
	Base      uintptr // address of the Renderer's heap mapping; unused for handle imports
	HeapSize  uint64
	ImageSize uint64
	SlotCount int
}

// pagesize is the alignment of handle-based imports
var pagesize = uint64(unix.Getpagesize())

// NegotiateLayout computes the heap layout from the backend's import
// constraints. It never touches the control link; see SendLayout.
func NegotiateLayout(backend RenderBackend, req LayoutRequest) (Layout, error) {
	align, err := backend.NegotiateAlignment(req.Mode)
	if err != nil {
		return Layout{}, failf(ErrBackendFailure, "negotiate alignment: %w", err)
	}
	if align == 0 {
		return Layout{}, failf(ErrBackendFailure, "backend reported a zero alignment")
	}
	if req.Mode == ImportDMABuf && align%pagesize != 0 {
		return Layout{}, failf(ErrLayoutOverflow, "handle imports need page alignment, backend wants %d", align)
	}

	var layout Layout
	if req.Mode == ImportHostPointer {
		if rem := uint64(req.Base) % align; rem != 0 {
			layout.BaseSkip = align - rem
		}
	}

	layout.ColorBlockSize, err = importSize(backend, colorBlockUsedSize, ColorBlockUsage, align)
	if err != nil {
		return Layout{}, err
	}
	layout.OutputSlotSize, err = importSize(backend, req.ImageSize, OutputSlotUsage, align)
	if err != nil {
		return Layout{}, err
	}

	extent, ok := layout.Extent(req.SlotCount)
	if !ok || extent > req.HeapSize {
		return Layout{}, failf(ErrLayoutOverflow, "heap size too small: layout needs %d of %d bytes", extent, req.HeapSize)
	}
	return layout, nil
}

// importSize returns the bytes to reserve for a buffer of logical size.
// The backend's requirement is rounded up to align unless the backend only
// accepts dedicated allocations of exactly that size.
func importSize(backend RenderBackend, logical uint64, usage gputypes.BufferUsage, align uint64) (uint64, error) {
	info, err := backend.QueryAllocationSize(logical, usage)
	if err != nil {
		return 0, failf(ErrBackendFailure, "query allocation size: %w", err)
	}
	if !info.Importable {
		return 0, failf(ErrLayoutOverflow, "external memory not importable for %d bytes", logical)
	}

	size := max(info.Size, logical)
	if rem := size % align; rem != 0 {
		if info.DedicatedOnly {
			return 0, failf(ErrLayoutOverflow, "conflicting size requirement from dedicated allocation: %d not a multiple of %d", size, align)
		}
		var carry uint64
		size, carry = bits.Add64(size, align-rem, 0)
		if carry != 0 {
			return 0, failf(ErrLayoutOverflow, "allocation of %d bytes overflows", logical)
		}
	}
	return size, nil
}

// SendLayout sends the three layout words in protocol order
func SendLayout(ch Channel, l Layout) error {
	values := [...]uint64{l.BaseSkip, l.ColorBlockSize, l.OutputSlotSize}
	for i, kind := range protocol.LayoutSequence {
		if values[i] > uint64(^uint32(0)) {
			return failf(ErrLayoutOverflow, "%s %d does not fit a control word", kind, values[i])
		}
		if err := ch.Send(uint32(values[i])); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveLayout reads the three layout words in protocol order.
// The result is unchecked; NewArena validates it against the heap.
func ReceiveLayout(ch Channel) (Layout, error) {
	var values [len(protocol.LayoutSequence)]uint64
	for i := range protocol.LayoutSequence {
		v, err := ch.Recv()
		if err != nil {
			return Layout{}, err
		}
		values[i] = uint64(v)
	}
	return Layout{BaseSkip: values[0], ColorBlockSize: values[1], OutputSlotSize: values[2]}, nil
}
