package heapipc

import (
	"errors"
	"io"
	"log/slog"
)

// FrameState is the state of the synchronous frame exchange.
// There is never more than one request outstanding.
//
//go:generate go tool stringer -type=FrameState -trimprefix=Frame
type FrameState uint32

const (
	FrameIdle      FrameState = iota // No request outstanding
	FrameRequested                   // Slot index sent, response pending
	FrameRendered                    // Response matched, slot ready to read
)

// FrameClient is the Controller half of the frame protocol
type FrameClient struct {
	ch        Channel
	arena     *Arena
	coherency *Coherency
	imageSize uint64

	state FrameState
	slot  int
	count uint64
}

// NewFrameClient starts an idle frame exchange over ch.
// The arena must come from a layout already received from the Renderer.
func NewFrameClient(ch Channel, arena *Arena, coherency *Coherency, imageSize uint64) *FrameClient {
	return &FrameClient{ch: ch, arena: arena, coherency: coherency, imageSize: imageSize}
}

// State returns the current protocol state
func (f *FrameClient) State() FrameState {
	return f.state
}

// Frames returns the number of completed request/response pairs
func (f *FrameClient) Frames() uint64 {
	return f.count
}

// Request writes rgba into the color block, publishes it, asks the Renderer
// to render into slot and waits for the echo.
//
// A reply other than slot is a protocol violation; the exchange is then
// unusable and the caller must stop.
func (f *FrameClient) Request(slot int, rgba [4]float32) error {
	if f.state == FrameRequested {
		return failf(ErrInvalidOp, "request for slot %d while slot %d is outstanding", slot, f.slot)
	}
	if _, err := f.arena.SlotRegion(slot); err != nil {
		return err
	}

	color := f.arena.ColorBlock()
	WriteColor(color, rgba)
	f.coherency.BeforeRequest(color)

	f.state = FrameRequested
	f.slot = slot
	if err := f.ch.Send(uint32(slot)); err != nil {
		return err
	}

	got, err := f.ch.Recv()
	if err != nil {
		return err
	}
	if got != uint32(slot) {
		return failf(ErrProtocolViolation, "unexpected renderer output %d, want %d", got, slot)
	}

	f.state = FrameRendered
	f.count++
	Logger().Debug("frame rendered", slog.Int("slot", slot), slog.Any("rgba", rgba))
	return nil
}

// Read returns the image of the slot rendered by the last Request, after
// dropping any stale cached lines. The bytes stay valid until the next
// Request for the same slot.
func (f *FrameClient) Read(slot int) ([]byte, error) {
	if f.state != FrameRendered || f.slot != slot {
		return nil, failf(ErrInvalidOp, "slot %d read in state %s", slot, f.state)
	}

	out, err := f.arena.OutputSlot(slot)
	if err != nil {
		return nil, err
	}
	img := out[:f.imageSize]
	f.coherency.BeforeRead(img)

	f.state = FrameIdle
	return img, nil
}

// FrameServer is the Renderer half of the frame protocol
type FrameServer struct {
	ch      Channel
	backend RenderBackend
	color   Buffer
	outputs []Buffer

	state  FrameState
	served uint64
}

// NewFrameServer serves requests over ch with buffers already imported from
// the heap: one color block and one buffer per output slot, in slot order.
func NewFrameServer(ch Channel, backend RenderBackend, color Buffer, outputs []Buffer) *FrameServer {
	return &FrameServer{ch: ch, backend: backend, color: color, outputs: outputs}
}

// State returns the current protocol state
func (s *FrameServer) State() FrameState {
	return s.state
}

// Served returns the number of frames rendered
func (s *FrameServer) Served() uint64 {
	return s.served
}

// ServeOne waits for one slot index, renders it and echoes the index back
func (s *FrameServer) ServeOne() error {
	slot, err := s.ch.Recv()
	if err != nil {
		return err
	}
	if uint64(slot) >= uint64(len(s.outputs)) {
		return failf(ErrProtocolViolation, "requested slot %d of %d", slot, len(s.outputs))
	}
	s.state = FrameRequested

	if err := s.backend.DrawAndExtract(s.color, s.outputs[slot]); err != nil {
		return failf(ErrBackendFailure, "draw slot %d: %w", slot, err)
	}
	s.state = FrameRendered

	if err := s.ch.Send(slot); err != nil {
		return err
	}
	s.state = FrameIdle
	s.served++
	return nil
}

// Serve answers requests until the link fails.
// The Controller closing the link between two requests ends the session
// and returns nil; every other failure is returned as is.
func (s *FrameServer) Serve() error {
	for {
		err := s.ServeOne()
		if err == nil {
			continue
		}
		if s.state == FrameIdle && errors.Is(err, io.EOF) {
			Logger().Info("controller closed the link", slog.Uint64("served", s.served))
			return nil
		}
		return err
	}
}
