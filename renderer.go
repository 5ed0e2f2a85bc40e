package heapipc

import (
	"errors"
	"log/slog"
	"unsafe"

	"github.com/gogpu/gputypes"

	"gosuda.org/heapipc/internal/dmabuf"
	"gosuda.org/heapipc/internal/shm"
)

// Renderer adopts the inherited heap, negotiates its layout and answers
// frame requests with its RenderBackend.
type Renderer struct {
	cfg     Config
	link    *Link
	heap    *shm.SharedMemory
	mem     []byte           // heap mapping, host-pointer imports only
	dma     *dmabuf.Provider // handle imports only
	backend RenderBackend

	state   NegotiationState
	arena   *Arena
	color   Buffer
	outputs []Buffer
	server  *FrameServer
}

// NewRenderer adopts heapFD and prepares the import path selected by
// cfg.Import. The Renderer owns link, heapFD and backend from here on.
func NewRenderer(cfg Config, link *Link, heapFD int, backend RenderBackend) (*Renderer, error) {
	heap, err := shm.Open(heapFD)
	if err != nil {
		return nil, failf(ErrResourceCreation, "adopt heap: %w", err)
	}
	r := &Renderer{cfg: cfg, link: link, heap: heap, backend: backend}

	switch cfg.Import {
	case ImportHostPointer:
		if r.mem, err = heap.Map(); err != nil {
			heap.Close()
			return nil, failf(ErrResourceCreation, "map heap: %w", err)
		}
	case ImportDMABuf:
		if r.dma, err = dmabuf.Open(); err != nil {
			heap.Close()
			return nil, failf(ErrResourceCreation, "%w", err)
		}
	default:
		heap.Close()
		return nil, failf(ErrInvalidOp, "unknown import mode %d", cfg.Import)
	}

	Logger().Info("renderer attached",
		slog.Int("heap_size", heap.Size()),
		slog.String("import", cfg.Import.String()))
	return r, nil
}

// OpenRenderer builds a Renderer from the descriptors named on its command
// line.
func OpenRenderer(cfg Config, args RendererArgs, backend RenderBackend) (*Renderer, error) {
	cfg.Import = args.Mode
	link, err := OpenLink(RoleRenderer, args.In, args.Out)
	if err != nil {
		return nil, err
	}
	r, err := NewRenderer(cfg, link, args.Heap, backend)
	if err != nil {
		link.Close()
		return nil, err
	}
	return r, nil
}

// RunRenderer is the whole life of a spawned Renderer: negotiate, serve
// until the Controller hangs up, release everything.
func RunRenderer(cfg Config, args RendererArgs, backend RenderBackend) error {
	r, err := OpenRenderer(cfg, args, backend)
	if err != nil {
		backend.Close()
		return err
	}
	if err := r.Negotiate(); err != nil {
		return errors.Join(err, r.Close())
	}
	return errors.Join(r.Serve(), r.Close())
}

// Negotiate computes the layout, reports it to the Controller and imports
// every region into the backend. It runs once, before any frame.
func (r *Renderer) Negotiate() error {
	if r.state != NegotiationNone {
		return failf(ErrInvalidOp, "layout already negotiated or in progress")
	}
	r.state = NegotiationNegotiating

	if err := r.negotiate(); err != nil {
		r.state = NegotiationFailed
		return err
	}
	r.state = NegotiationNegotiated
	return nil
}

func (r *Renderer) negotiate() error {
	req := LayoutRequest{
		Mode:      r.cfg.Import,
		HeapSize:  uint64(r.heap.Size()),
		ImageSize: r.cfg.ImageSize(),
		SlotCount: r.cfg.SlotCount,
	}
	if r.mem != nil {
		req.Base = uintptr(unsafe.Pointer(&r.mem[0]))
	}

	layout, err := NegotiateLayout(r.backend, req)
	if err != nil {
		return err
	}
	arena, err := NewArena(layout, r.cfg, req.HeapSize, r.mem)
	if err != nil {
		return err
	}
	if err := SendLayout(r.link, layout); err != nil {
		return err
	}
	r.arena = arena
	Logger().Info("heap layout negotiated", slog.String("layout", layout.String()))

	if r.color, err = r.importRegion(arena.ColorRegion(), ColorBlockUsage); err != nil {
		return err
	}
	r.outputs = make([]Buffer, 0, arena.SlotCount())
	for i := range arena.SlotCount() {
		region, _ := arena.SlotRegion(i)
		buf, err := r.importRegion(region, OutputSlotUsage)
		if err != nil {
			return err
		}
		r.outputs = append(r.outputs, buf)
	}

	r.server = NewFrameServer(r.link, r.backend, r.color, r.outputs)
	return nil
}

func (r *Renderer) importRegion(region Region, usage gputypes.BufferUsage) (Buffer, error) {
	src := ImportSource{Region: region}
	if r.dma != nil {
		handle, err := r.dma.Create(int(r.heap.FD()), region.Offset, region.Length)
		if err != nil {
			return nil, failf(ErrResourceCreation, "%w", err)
		}
		src.Handle = handle
	} else {
		src.Host = r.arena.View(region)
	}

	buf, err := r.backend.Import(src, usage)
	if err != nil {
		return nil, failf(ErrBackendFailure, "import %#x+%#x: %w", region.Offset, region.Length, err)
	}
	return buf, nil
}

// Serve answers frame requests until the Controller closes the link
func (r *Renderer) Serve() error {
	if r.server == nil {
		return failf(ErrInvalidOp, "serve before layout negotiation")
	}
	return r.server.Serve()
}

// State returns the layout negotiation state
func (r *Renderer) State() NegotiationState {
	return r.state
}

// Arena returns the heap descriptor table, nil before Negotiate
func (r *Renderer) Arena() *Arena {
	return r.arena
}

// Served returns the number of frames rendered
func (r *Renderer) Served() uint64 {
	if r.server == nil {
		return 0
	}
	return r.server.Served()
}

// Close releases the imported buffers, the backend, the link and the heap
func (r *Renderer) Close() error {
	var errs []error
	for _, buf := range r.outputs {
		errs = append(errs, buf.Close())
	}
	if r.color != nil {
		errs = append(errs, r.color.Close())
	}
	errs = append(errs, r.backend.Close())
	if r.dma != nil {
		errs = append(errs, r.dma.Close())
	}
	errs = append(errs, r.link.Close(), r.heap.Close())
	return errors.Join(errs...)
}
