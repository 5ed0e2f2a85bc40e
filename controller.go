package heapipc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gosuda.org/heapipc/internal/shm"
)

// DefaultFrameInterval paces the main loop at 60 frames per second
const DefaultFrameInterval = time.Second / 60

// Controller owns the heap, spawns the Renderer and drives the frame loop
type Controller struct {
	cfg  Config
	heap *shm.SharedMemory
	mem  []byte

	link  *Link
	child *Child // nil when the link was attached instead of spawned

	state     NegotiationState
	arena     *Arena
	coherency *Coherency
	frames    *FrameClient
}

// NewController creates and maps the heap
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	heap, err := shm.Create(cfg.Name, int(cfg.HeapSize))
	if err != nil {
		return nil, failf(ErrResourceCreation, "create heap: %w", err)
	}
	mem, err := heap.Map()
	if err != nil {
		heap.Close()
		return nil, failf(ErrResourceCreation, "map heap: %w", err)
	}

	Logger().Info("heap created",
		slog.String("name", cfg.Name),
		slog.Uint64("size", cfg.HeapSize),
		slog.Bool("coherent", cfg.Coherent))

	return &Controller{
		cfg:       cfg,
		heap:      heap,
		mem:       mem,
		coherency: NewCoherency(cfg.Coherent),
	}, nil
}

// StartController creates the heap, spawns the Renderer and applies the
// layout it negotiates.
func StartController(cfg Config) (*Controller, error) {
	c, err := NewController(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Spawn(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Negotiate(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Spawn starts the Renderer process. It succeeds at most once.
func (c *Controller) Spawn() error {
	if c.link != nil {
		return failf(ErrInvalidOp, "renderer already spawned")
	}
	link, child, err := spawnRenderer(c.heap, c.cfg)
	if err != nil {
		return err
	}
	c.link, c.child = link, child
	return nil
}

// Attach uses link, whose peer already holds the heap, instead of spawning.
// It counts as the Controller's one handshake.
func (c *Controller) Attach(link *Link) error {
	if c.link != nil {
		return failf(ErrInvalidOp, "renderer already attached")
	}
	c.link = link
	return nil
}

// Negotiate receives the layout from the Renderer and builds the arena.
// No frame can be requested before it returns.
func (c *Controller) Negotiate() error {
	if c.link == nil {
		return failf(ErrInvalidOp, "no renderer to negotiate with")
	}
	if c.state != NegotiationNone {
		return failf(ErrInvalidOp, "layout already negotiated or in progress")
	}
	c.state = NegotiationNegotiating

	layout, err := ReceiveLayout(c.link)
	if err != nil {
		c.state = NegotiationFailed
		return err
	}
	arena, err := NewArena(layout, c.cfg, c.cfg.HeapSize, c.mem)
	if err != nil {
		c.state = NegotiationFailed
		return err
	}

	c.arena = arena
	c.frames = NewFrameClient(c.link, arena, c.coherency, c.cfg.ImageSize())
	c.state = NegotiationNegotiated
	Logger().Info("heap layout applied", slog.String("layout", layout.String()))
	return nil
}

// RenderFrame has the Renderer draw rgba into slot and waits for it
func (c *Controller) RenderFrame(slot int, rgba [4]float32) error {
	if c.frames == nil {
		return failf(ErrInvalidOp, "frame requested before layout negotiation")
	}
	return c.frames.Request(slot, rgba)
}

// ReadSlot returns the pixels of the slot just rendered
func (c *Controller) ReadSlot(slot int) ([]byte, error) {
	if c.frames == nil {
		return nil, failf(ErrInvalidOp, "slot read before layout negotiation")
	}
	return c.frames.Read(slot)
}

// RunOptions control the main loop
type RunOptions struct {
	Frames    int           // frames to render, 0 for no limit
	Interval  time.Duration // minimum time between frames, 0 for no pacing
	Presenter Presenter     // receives every frame, may be nil
}

// Run renders frames until opts.Frames is reached, ctx is done or the
// protocol fails.
//
// The slot index sweeps up and down across all slots; the intensity of one
// color channel follows it, and the channel advances on every return to
// slot 0.
func (c *Controller) Run(ctx context.Context, opts RunOptions) error {
	if c.frames == nil {
		return failf(ErrInvalidOp, "run before layout negotiation")
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var sweep slotSweep
	last := float32(c.cfg.SlotCount - 1)
	for n := 0; opts.Frames == 0 || n < opts.Frames; n++ {
		rgba := [4]float32{0, 0, 0, 1}
		rgba[sweep.channel] = float32(sweep.slot) / last

		if err := c.RenderFrame(sweep.slot, rgba); err != nil {
			return err
		}
		pixels, err := c.ReadSlot(sweep.slot)
		if err != nil {
			return err
		}
		if opts.Presenter != nil {
			if err := opts.Presenter.Present(pixels, c.cfg.Width, c.cfg.Height); err != nil {
				return err
			}
		}

		sweep.advance(c.cfg.SlotCount)

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// slotSweep walks slots 0..n-1..0 and rotates the color channel
type slotSweep struct {
	slot    int
	dir     int
	channel int
}

func (s *slotSweep) advance(n int) {
	if s.dir == 0 {
		s.dir = 1
	}
	s.slot += s.dir
	switch {
	case s.slot >= n:
		s.slot = n - 1
		s.dir = -1
	case s.slot < 0:
		s.slot = 1
		s.dir = 1
		s.channel = (s.channel + 1) % 3
	}
}

// Config returns the configuration the Controller was built with
func (c *Controller) Config() Config {
	return c.cfg
}

// Link returns the control link, nil before Spawn or Attach
func (c *Controller) Link() *Link {
	return c.link
}

// Child returns the spawned Renderer, nil when the link was attached
func (c *Controller) Child() *Child {
	return c.child
}

// HeapFD returns the heap descriptor
func (c *Controller) HeapFD() int {
	return int(c.heap.FD())
}

// State returns the layout negotiation state
func (c *Controller) State() NegotiationState {
	return c.state
}

// Arena returns the heap descriptor table, nil before Negotiate
func (c *Controller) Arena() *Arena {
	return c.arena
}

// Coherency returns the cache maintenance applied around each frame
func (c *Controller) Coherency() *Coherency {
	return c.coherency
}

// Close closes the link, which ends the Renderer's loop, reaps the
// Renderer and releases the heap.
func (c *Controller) Close() error {
	var errs []error
	if c.link != nil {
		errs = append(errs, c.link.Close())
	}
	if c.child != nil {
		if err := c.child.Wait(); err != nil {
			Logger().Warn("renderer exited", slog.Any("err", err))
		}
	}
	errs = append(errs, c.heap.Close())
	return errors.Join(errs...)
}
