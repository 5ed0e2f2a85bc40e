package cacheline

import "unsafe"

//go:noescape
func flush(addr unsafe.Pointer)

func mfence()
