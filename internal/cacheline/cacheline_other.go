//go:build !amd64

package cacheline

import (
	"sync/atomic"
	"unsafe"
)

// There is no portable way to evict a line from Go. A sequentially
// consistent atomic still gives the ordering half of the contract.
var barrier atomic.Uint32

func flush(addr unsafe.Pointer) {
	_ = *(*byte)(addr)
	barrier.Add(1)
}

func mfence() {
	barrier.Add(1)
}
