package heapipc

import "gosuda.org/heapipc/internal/cacheline"

// CacheOps are the CPU cache maintenance primitives the coherency
// discipline is built from.
type CacheOps interface {
	Fence()
	Flush(b []byte) int
}

type cpuCache struct{}

func (cpuCache) Fence()             { cacheline.Fence() }
func (cpuCache) Flush(b []byte) int { return cacheline.Flush(b) }

// CoherencyStats counts the maintenance performed so far
type CoherencyStats struct {
	Flushes     uint64 // publish operations before a render request
	Invalidates uint64 // invalidate operations before a slot read
	Lines       uint64 // cache lines touched by both
}

// Coherency applies the host side of the heap's coherency contract.
//
// Whether the heap mapping is coherent with the device is a platform
// property. When it is not, host writes to the color block must be pushed
// out before the Renderer is signaled, and stale lines covering an output
// slot must be dropped before the host reads it. Device-side visibility is
// the backend's job.
type Coherency struct {
	coherent bool
	ops      CacheOps
	stats    CoherencyStats
}

// NewCoherency returns the discipline for a heap that is or is not coherent
func NewCoherency(coherent bool) *Coherency {
	return NewCoherencyWithOps(coherent, cpuCache{})
}

// NewCoherencyWithOps is NewCoherency with explicit cache primitives
func NewCoherencyWithOps(coherent bool, ops CacheOps) *Coherency {
	return &Coherency{coherent: coherent, ops: ops}
}

// Coherent reports whether maintenance is skipped
func (c *Coherency) Coherent() bool {
	return c.coherent
}

// BeforeRequest publishes host writes to b: fence, then flush every line
func (c *Coherency) BeforeRequest(b []byte) {
	if c.coherent {
		return
	}
	c.ops.Fence()
	c.stats.Lines += uint64(c.ops.Flush(b))
	c.stats.Flushes++
}

// BeforeRead drops every cached line of b, then fences later loads
func (c *Coherency) BeforeRead(b []byte) {
	if c.coherent {
		return
	}
	c.stats.Lines += uint64(c.ops.Flush(b))
	c.ops.Fence()
	c.stats.Invalidates++
}

// Stats returns the maintenance counters
func (c *Coherency) Stats() CoherencyStats {
	return c.stats
}
