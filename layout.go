package heapipc

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// Layout is the negotiated placement of the heap regions.
// The Renderer computes it once; both sides treat it as immutable.
type Layout struct {
	BaseSkip       uint64 // bytes skipped so the color block is aligned
	ColorBlockSize uint64 // bytes reserved for the color block
	OutputSlotSize uint64 // bytes reserved for each output slot
}

// Extent returns the bytes the layout occupies with slots output slots.
// ok is false when the computation overflows.
func (l Layout) Extent(slots int) (extent uint64, ok bool) {
	hi, outputs := bits.Mul64(l.OutputSlotSize, uint64(slots))
	if hi != 0 {
		return 0, false
	}
	extent, carry := bits.Add64(l.BaseSkip, l.ColorBlockSize, 0)
	if carry != 0 {
		return 0, false
	}
	extent, carry = bits.Add64(extent, outputs, 0)
	if carry != 0 {
		return 0, false
	}
	return extent, true
}

// Check verifies the layout against the configuration and the heap size
func (l Layout) Check(cfg Config, heapSize uint64) error {
	if l.ColorBlockSize < colorBlockUsedSize {
		return failf(ErrLayoutOverflow, "invalid color block size %d", l.ColorBlockSize)
	}
	if l.OutputSlotSize < cfg.ImageSize() {
		return failf(ErrLayoutOverflow, "invalid output slot size %d < %d", l.OutputSlotSize, cfg.ImageSize())
	}
	for _, v := range [...]uint64{l.BaseSkip, l.ColorBlockSize, l.OutputSlotSize} {
		if v > math.MaxUint32 {
			return failf(ErrLayoutOverflow, "layout field %d does not fit a control word", v)
		}
	}

	extent, ok := l.Extent(cfg.SlotCount)
	if !ok || extent > heapSize {
		return failf(ErrLayoutOverflow, "heap size too small: layout needs %d of %d bytes", extent, heapSize)
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("skip=%d color=%d slot=%d", l.BaseSkip, l.ColorBlockSize, l.OutputSlotSize)
}

// Region is one {offset, length} descriptor inside the heap
type Region struct {
	Offset uint64
	Length uint64
}

// End returns the offset one past the region
func (r Region) End() uint64 {
	return r.Offset + r.Length
}

// Arena is the descriptor table derived from a layout: one color block and
// SlotCount output slots, in heap order. Views into the heap are only handed
// out through it.
type Arena struct {
	layout  Layout
	mem     []byte   // heap mapping, nil when the heap is not mapped here
	regions []Region // color block first, then the output slots
}

// NewArena checks layout against cfg and heapSize and builds the
// descriptor table. mem may be nil on a side that never maps the heap.
func NewArena(layout Layout, cfg Config, heapSize uint64, mem []byte) (*Arena, error) {
	if err := layout.Check(cfg, heapSize); err != nil {
		return nil, err
	}
	if mem != nil && uint64(len(mem)) < heapSize {
		return nil, failf(ErrLayoutOverflow, "mapping of %d bytes is smaller than the heap", len(mem))
	}

	regions := make([]Region, 0, cfg.SlotCount+1)
	offset := layout.BaseSkip
	regions = append(regions, Region{Offset: offset, Length: layout.ColorBlockSize})
	offset += layout.ColorBlockSize
	for i := 0; i < cfg.SlotCount; i++ {
		regions = append(regions, Region{Offset: offset, Length: layout.OutputSlotSize})
		offset += layout.OutputSlotSize
	}

	return &Arena{layout: layout, mem: mem, regions: regions}, nil
}

// Layout returns the layout the arena was built from
func (a *Arena) Layout() Layout {
	return a.layout
}

// SlotCount returns the number of output slots
func (a *Arena) SlotCount() int {
	return len(a.regions) - 1
}

// Regions returns every descriptor, color block first
func (a *Arena) Regions() []Region {
	return append([]Region(nil), a.regions...)
}

// ColorRegion returns the color block descriptor
func (a *Arena) ColorRegion() Region {
	return a.regions[0]
}

// SlotRegion returns the descriptor of output slot i
func (a *Arena) SlotRegion(i int) (Region, error) {
	if i < 0 || i >= a.SlotCount() {
		return Region{}, fmt.Errorf("%w: output slot %d of %d", ErrInvalidOp, i, a.SlotCount())
	}
	return a.regions[i+1], nil
}

// View returns the heap bytes of r, or nil when the heap is not mapped
func (a *Arena) View(r Region) []byte {
	if a.mem == nil {
		return nil
	}
	return a.mem[r.Offset:r.End():r.End()]
}

// ColorBlock returns the color block bytes
func (a *Arena) ColorBlock() []byte {
	return a.View(a.ColorRegion())
}

// OutputSlot returns the bytes of output slot i
func (a *Arena) OutputSlot(i int) ([]byte, error) {
	r, err := a.SlotRegion(i)
	if err != nil {
		return nil, err
	}
	return a.View(r), nil
}

// WriteColor stores rgba into a color block as four native-order float32
func WriteColor(block []byte, rgba [4]float32) {
	for i, c := range rgba {
		binary.NativeEndian.PutUint32(block[i*4:], math.Float32bits(c))
	}
}

// ReadColor loads the four float32 of a color block
func ReadColor(block []byte) [4]float32 {
	var rgba [4]float32
	for i := range rgba {
		rgba[i] = math.Float32frombits(binary.NativeEndian.Uint32(block[i*4:]))
	}
	return rgba
}
