// Package softgpu is a Render Backend that rasterizes the frame with gg on
// the CPU and writes B8G8R8A8 pixels straight into imported heap memory.
//
// Importing the gg/gpu accelerator (build tag ggpu) moves the fill onto the
// GPU when a device is available; the backend surface is the same.
package softgpu

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
	"golang.org/x/sys/unix"

	"gosuda.org/heapipc"
)

const (
	// DefaultHostAlignment is the host-pointer import alignment advertised
	// when none is configured.
	DefaultHostAlignment = 4096

	uniformAlignment = 256
	copyAlignment    = 4
)

var (
	ErrUnaligned   = errors.New("softgpu: host pointer not aligned")
	ErrForeign     = errors.New("softgpu: buffer not imported by this backend")
	ErrSmallOutput = errors.New("softgpu: output buffer smaller than the image")
	ErrClosed      = errors.New("softgpu: backend closed")
)

var clearColor = gg.RGB(0.1, 0.1, 0.1)

// Option configures a Backend
type Option func(*Backend)

// WithHostAlignment sets the alignment host-pointer imports must honor.
// It must be a power of two.
func WithHostAlignment(align uint64) Option {
	return func(b *Backend) {
		b.hostAlign = align
	}
}

// Backend draws one triangle per frame into a gg pixmap and converts it into
// the requested output slot.
type Backend struct {
	width, height int
	hostAlign     uint64

	pm *gg.Pixmap
	dc *gg.Context
}

var _ heapipc.RenderBackend = (*Backend)(nil)

// New returns a backend rendering width x height images
func New(width, height int, opts ...Option) *Backend {
	b := &Backend{width: width, height: height, hostAlign: DefaultHostAlignment}
	for _, opt := range opts {
		opt(b)
	}
	b.pm = gg.NewPixmap(width, height)
	b.dc = gg.NewContext(width, height, gg.WithPixmap(b.pm))
	return b
}

// NegotiateAlignment implements heapipc.RenderBackend
func (b *Backend) NegotiateAlignment(mode heapipc.ImportMode) (uint64, error) {
	if b.dc == nil {
		return 0, ErrClosed
	}
	switch mode {
	case heapipc.ImportHostPointer:
		if b.hostAlign == 0 || b.hostAlign&(b.hostAlign-1) != 0 {
			return 0, fmt.Errorf("softgpu: invalid host alignment %d", b.hostAlign)
		}
		return b.hostAlign, nil
	case heapipc.ImportDMABuf:
		return uint64(unix.Getpagesize()), nil
	}
	return 0, fmt.Errorf("softgpu: unsupported import mode %d", mode)
}

// QueryAllocationSize implements heapipc.RenderBackend.
// Uniform buffers occupy whole 256-byte blocks; anything else is rounded to
// a texel.
func (b *Backend) QueryAllocationSize(size uint64, usage gputypes.BufferUsage) (heapipc.AllocationInfo, error) {
	align := uint64(copyAlignment)
	if usage&gputypes.BufferUsageUniform != 0 {
		align = uniformAlignment
	}
	return heapipc.AllocationInfo{
		Size:       (size + align - 1) &^ (align - 1),
		Importable: true,
	}, nil
}

// Import implements heapipc.RenderBackend. Handle imports are mapped and the
// handle is closed; the mapping keeps the dma-buf alive.
func (b *Backend) Import(src heapipc.ImportSource, usage gputypes.BufferUsage) (heapipc.Buffer, error) {
	if b.dc == nil {
		return nil, ErrClosed
	}
	if src.Handle != nil {
		return importHandle(src.Handle, src.Region.Length)
	}

	if len(src.Host) == 0 {
		return nil, fmt.Errorf("softgpu: empty host import at %#x", src.Region.Offset)
	}
	if addr := hostAddr(src.Host); addr%b.hostAlign != 0 {
		return nil, fmt.Errorf("%w: %#x %% %d", ErrUnaligned, addr, b.hostAlign)
	}
	return &buffer{mem: src.Host}, nil
}

func hostAddr(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

func importHandle(f *os.File, size uint64) (*buffer, error) {
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("softgpu: mmap %s: %w", f.Name(), err)
	}
	return &buffer{mem: mem, mapped: true}, nil
}

// DrawAndExtract implements heapipc.RenderBackend
func (b *Backend) DrawAndExtract(color, output heapipc.Buffer) error {
	if b.dc == nil {
		return ErrClosed
	}
	in, ok := color.(*buffer)
	if !ok {
		return ErrForeign
	}
	out, ok := output.(*buffer)
	if !ok {
		return ErrForeign
	}
	if len(out.mem) < b.width*b.height*4 {
		return fmt.Errorf("%w: %d bytes", ErrSmallOutput, len(out.mem))
	}

	if err := b.draw(heapipc.ReadColor(in.mem)); err != nil {
		return err
	}
	swizzle(out.mem, b.pm.Data())
	return nil
}

// draw renders the frame into the pixmap. The triangle spans clip space
// (-1,-1) (0,1) (1,-1) with y pointing down.
func (b *Backend) draw(rgba [4]float32) error {
	w, h := float64(b.width), float64(b.height)

	b.dc.ClearWithColor(clearColor)
	b.dc.SetRGBA(float64(rgba[0]), float64(rgba[1]), float64(rgba[2]), float64(rgba[3]))
	b.dc.MoveTo(0, 0)
	b.dc.LineTo(w/2, h)
	b.dc.LineTo(w, 0)
	b.dc.ClosePath()
	if err := b.dc.Fill(); err != nil {
		return fmt.Errorf("softgpu: fill: %w", err)
	}
	return b.dc.FlushGPU()
}

// swizzle converts RGBA pixels into B8G8R8A8
func swizzle(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
}

// Close implements heapipc.RenderBackend
func (b *Backend) Close() error {
	if b.dc == nil {
		return ErrClosed
	}
	err := b.dc.Close()
	b.dc, b.pm = nil, nil
	return err
}

// buffer is an imported heap region
type buffer struct {
	mem    []byte
	mapped bool // mem was mapped from a dma-buf and must be unmapped
}

func (b *buffer) Size() uint64 {
	return uint64(len(b.mem))
}

func (b *buffer) Close() error {
	if !b.mapped || b.mem == nil {
		b.mem = nil
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}
