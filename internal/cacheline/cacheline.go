// Package cacheline exposes the CPU cache maintenance needed when a mapping
// is not coherent with the device that also accesses it.
//
// Flushing a line writes it back and evicts it, so the same primitive serves
// both directions: publishing host writes before the device reads, and
// dropping stale lines before the host reads what the device wrote.
package cacheline

import "unsafe"

// Size is the cache line stride used when walking a range.
const Size = 64

// Flush writes back and evicts every cache line covering b.
// It returns the number of lines touched.
func Flush(b []byte) int {
	if len(b) == 0 {
		return 0
	}

	start := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	first := start &^ (Size - 1)
	end := start + uintptr(len(b))

	lines := 0
	for line := first; line < end; line += Size {
		// Index from b instead of forming a raw pointer; the first line may
		// begin before b[0] but b[0] lies inside it.
		off := 0
		if line > start {
			off = int(line - start)
		}
		flush(unsafe.Pointer(&b[off]))
		lines++
	}
	return lines
}

// Fence orders every earlier load, store and flush before every later
// memory operation. CLFLUSH is only ordered by a full fence.
func Fence() {
	mfence()
}
