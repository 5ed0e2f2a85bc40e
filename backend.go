package heapipc

import (
	"os"

	"github.com/gogpu/gputypes"
)

// Buffer usages requested for the heap regions
const (
	ColorBlockUsage = gputypes.BufferUsageUniform
	OutputSlotUsage = gputypes.BufferUsageCopyDst
)

// OutputFormat is the pixel format of every output slot
const OutputFormat = gputypes.TextureFormatBGRA8Unorm

// AllocationInfo is what a backend requires to import a buffer of a given
// logical size.
type AllocationInfo struct {
	Size          uint64 // bytes the backend wants reserved
	Importable    bool   // the memory can be imported at all
	DedicatedOnly bool   // the import must be exactly Size bytes, no rounding
}

// ImportSource describes one heap region handed to the backend. Exactly one
// of Host and Handle is set, according to the import mode.
type ImportSource struct {
	Region Region
	Host   []byte   // host-pointer import: the region inside the Renderer's mapping
	Handle *os.File // handle import: dma-buf for the region; ownership moves to Import
}

// Buffer is a heap region imported by a backend
type Buffer interface {
	Size() uint64
	Close() error
}

// RenderBackend is the device pipeline that draws into heap memory.
// Every method is called from the Renderer's single control loop.
type RenderBackend interface {
	// NegotiateAlignment returns the alignment imported memory must honor
	NegotiateAlignment(mode ImportMode) (uint64, error)

	// QueryAllocationSize reports the requirements for importing a buffer
	// of size logical bytes used as usage.
	QueryAllocationSize(size uint64, usage gputypes.BufferUsage) (AllocationInfo, error)

	// Import makes a heap region visible to the device
	Import(src ImportSource, usage gputypes.BufferUsage) (Buffer, error)

	// DrawAndExtract clears the framebuffer, draws the scene with the color
	// held in color and converts the image into output. The output writes
	// are visible to host reads when it returns.
	DrawAndExtract(color, output Buffer) error

	Close() error
}

// Presenter shows a finished frame
type Presenter interface {
	Present(pixels []byte, width, height int) error
}
