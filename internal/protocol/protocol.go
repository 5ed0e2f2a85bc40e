package protocol

import "encoding/binary"

// WordSize is the width in bytes of every value on the control link.
const WordSize = 4

// Kind identifies what a word means at its position in the exchange.
// Kinds never travel on the wire; the position alone determines them.
//
//go:generate go tool stringer -type=Kind
type Kind uint32

const (
	// BaseSkip: Renderer->Controller, first layout word
	KindBaseSkip Kind = 0x00

	// ColorBlockSize: Renderer->Controller, second layout word
	KindColorBlockSize Kind = 0x01

	// OutputSlotSize: Renderer->Controller, third layout word
	KindOutputSlotSize Kind = 0x02

	// SlotRequest: Controller->Renderer, 0:SlotIndex
	KindSlotRequest Kind = 0x03

	// SlotResponse: Renderer->Controller, 0:SlotIndex (echo of the request)
	KindSlotResponse Kind = 0x04
)

// LayoutSequence is the order in which the Renderer sends the negotiated
// heap layout before any frame traffic.
var LayoutSequence = [...]Kind{KindBaseSkip, KindColorBlockSize, KindOutputSlotSize}

// Word is one fixed-width value in native byte order.
type Word [WordSize]byte

// Encode packs v into a word using the host's byte order
func Encode(v uint32) Word {
	var w Word
	binary.NativeEndian.PutUint32(w[:], v)
	return w
}

// Decode unpacks a word using the host's byte order
func Decode(w Word) uint32 {
	return binary.NativeEndian.Uint32(w[:])
}
