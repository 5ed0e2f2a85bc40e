package heapipc

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gosuda.org/heapipc/internal/protocol"
)

// Role identifies which end of the control link a process holds.
//
//go:generate go tool stringer -type=Role -trimprefix=Role
type Role uint32

const (
	RoleController Role = iota // Creates the heap and sends slot requests
	RoleRenderer               // Negotiates the layout and renders slots
)

// Channel moves fixed-width words between the two roles.
// The frame protocol is written against this interface only, so any duplex
// byte transport can carry it.
type Channel interface {
	Send(v uint32) error
	Recv() (uint32, error)
}

// Link is the control link: two one-directional byte streams forming one
// duplex channel that carries native-order uint32 words and nothing else.
type Link struct {
	role Role
	rx   io.ReadCloser  // words from the peer
	tx   io.WriteCloser // words to the peer

	sent     uint64 // words written
	received uint64 // words read
}

var _ Channel = (*Link)(nil)

// NewLink wraps an already connected pair of streams
func NewLink(role Role, rx io.ReadCloser, tx io.WriteCloser) *Link {
	return &Link{role: role, rx: rx, tx: tx}
}

// OpenLink adopts inherited descriptors as the Renderer's end of the link
func OpenLink(role Role, in, out int) (*Link, error) {
	rx := os.NewFile(uintptr(in), "ctrl-in")
	tx := os.NewFile(uintptr(out), "ctrl-out")
	if rx == nil || tx == nil {
		return nil, failf(ErrResourceCreation, "invalid control descriptors %d/%d", in, out)
	}
	return NewLink(role, rx, tx), nil
}

// LinkPair creates a connected Controller/Renderer link pair over two pipes
func LinkPair() (controller *Link, renderer *Link, err error) {
	downR, downW, err := os.Pipe() // Controller->Renderer
	if err != nil {
		return nil, nil, failf(ErrResourceCreation, "failed to create pipes: %w", err)
	}
	upR, upW, err := os.Pipe() // Renderer->Controller
	if err != nil {
		downR.Close()
		downW.Close()
		return nil, nil, failf(ErrResourceCreation, "failed to create pipes: %w", err)
	}

	controller = NewLink(RoleController, upR, downW)
	renderer = NewLink(RoleRenderer, downR, upW)
	return controller, renderer, nil
}

// Send writes one word
func (l *Link) Send(v uint32) error {
	w := protocol.Encode(v)
	n, err := l.tx.Write(w[:])
	if n != protocol.WordSize {
		return fmt.Errorf("%w: %s sent %d of %d bytes: %w", ErrShortTransfer, l.role, n, protocol.WordSize, errOrEOF(err))
	}
	l.sent++
	return nil
}

// Recv blocks until one whole word arrives.
// A peer that closes its end before a full word was delivered yields
// ErrShortTransfer, never a hang.
func (l *Link) Recv() (uint32, error) {
	var w protocol.Word
	n, err := io.ReadFull(l.rx, w[:])
	if err != nil {
		return 0, fmt.Errorf("%w: %s received %d of %d bytes: %w", ErrShortTransfer, l.role, n, protocol.WordSize, err)
	}
	l.received++
	return protocol.Decode(w), nil
}

// Role returns which end of the link this is
func (l *Link) Role() Role {
	return l.role
}

// Counts returns the number of words sent and received so far
func (l *Link) Counts() (sent, received uint64) {
	return l.sent, l.received
}

// Close closes both directions
func (l *Link) Close() error {
	return errors.Join(l.tx.Close(), l.rx.Close())
}

func errOrEOF(err error) error {
	if err == nil {
		return io.ErrShortWrite
	}
	return err
}
