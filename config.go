package heapipc

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ImportMode selects how the Renderer hands heap memory to its backend.
//
//go:generate go tool stringer -type=ImportMode -linecomment
type ImportMode uint32

const (
	ImportHostPointer ImportMode = iota // memfd
	ImportDMABuf                        // udmabuf
)

// bytesPerPixel of the B8G8R8A8 output format
const bytesPerPixel = 4

// colorBlockUsedSize is the logical size of the color block: one vec4 of float32
const colorBlockUsedSize = 16

// Config carries everything both roles need. It is built once at startup
// and passed down; nothing in this package keeps global configuration.
type Config struct {
	Name       string     // memfd name, visible in /proc/<pid>/fd
	Executable string     // binary re-executed as the Renderer; empty means os.Executable
	Width      int        // output image width in pixels
	Height     int        // output image height in pixels
	SlotCount  int        // number of output slots in the heap
	HeapSize   uint64     // heap size in bytes, fixed at creation
	Coherent   bool       // whether the heap mapping is coherent with the device
	Import     ImportMode // how the Renderer imports heap memory
}

// DefaultConfig returns the stock configuration: a 600x600 image, 64 slots
// and an 8 GiB heap that is only paged in on demand.
func DefaultConfig() Config {
	return Config{
		Name:      "heapipc",
		Width:     600,
		Height:    600,
		SlotCount: 64,
		HeapSize:  8 << 30,
		Coherent:  true,
		Import:    ImportHostPointer,
	}
}

// ImageSize returns the byte size of one output image
func (c Config) ImageSize() uint64 {
	return uint64(c.Width) * uint64(c.Height) * bytesPerPixel
}

// Validate checks the configuration before any resource is created
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("heapipc: invalid image size %dx%d", c.Width, c.Height)
	case c.SlotCount < 2 || uint64(c.SlotCount) > math.MaxUint32:
		return fmt.Errorf("heapipc: slot count %d out of range", c.SlotCount)
	case c.HeapSize == 0 || c.HeapSize > math.MaxInt:
		return fmt.Errorf("heapipc: invalid heap size %d", c.HeapSize)
	case c.ImageSize() > math.MaxUint32:
		return fmt.Errorf("heapipc: image size %d does not fit a control word", c.ImageSize())
	case c.Import > ImportDMABuf:
		return fmt.Errorf("heapipc: unknown import mode %d", c.Import)
	}
	return nil
}

// RegisterFlags binds the render parameters to fs.
// The same flags are forwarded to the Renderer when it is spawned.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", c.Width, "output image width")
	fs.IntVar(&c.Height, "height", c.Height, "output image height")
	fs.IntVar(&c.SlotCount, "slots", c.SlotCount, "number of output slots")
	fs.Uint64Var(&c.HeapSize, "heap", c.HeapSize, "heap size in bytes")
}

// flagArgs renders the parameters the Renderer needs as arguments
// understood by RegisterFlags. The heap size is not among them; the
// Renderer reads it from the inherited descriptor.
func (c Config) flagArgs() []string {
	return []string{
		"-width=" + strconv.Itoa(c.Width),
		"-height=" + strconv.Itoa(c.Height),
		"-slots=" + strconv.Itoa(c.SlotCount),
	}
}

const rendererPrefix = "renderer-"

var ErrUsage = errors.New("heapipc: usage: [flags] [memfd|udmabuf] [coherent|incoherent]")

// RendererArgs are the descriptors a spawned Renderer inherits
type RendererArgs struct {
	In   int        // Controller->Renderer read end
	Out  int        // Renderer->Controller write end
	Heap int        // heap memfd
	Mode ImportMode // import path selected by the Controller
}

// Token formats the descriptors as the single renderer argument
func (a RendererArgs) Token() string {
	return fmt.Sprintf("%s%d-%d-%d", rendererPrefix, a.In, a.Out, a.Heap)
}

// IsRendererInvocation reports whether args carry a renderer token
func IsRendererInvocation(args []string) bool {
	for _, arg := range args {
		if strings.HasPrefix(arg, rendererPrefix) {
			return true
		}
	}
	return false
}

// ParseArgs applies the positional tokens to cfg.
// It returns the Renderer descriptors and true when a renderer token is
// present; otherwise the process is the Controller.
func ParseArgs(args []string, cfg *Config) (RendererArgs, bool, error) {
	var ra RendererArgs
	renderer := false

	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, rendererPrefix):
			parsed, err := parseToken(strings.TrimPrefix(arg, rendererPrefix))
			if err != nil {
				return RendererArgs{}, false, err
			}
			ra = parsed
			renderer = true
		case arg == ImportDMABuf.String():
			cfg.Import = ImportDMABuf
		case arg == ImportHostPointer.String():
			cfg.Import = ImportHostPointer
		case arg == "coherent":
			cfg.Coherent = true
		case arg == "incoherent":
			cfg.Coherent = false
		default:
			return RendererArgs{}, false, fmt.Errorf("%w: unexpected argument %q", ErrUsage, arg)
		}
	}

	ra.Mode = cfg.Import
	return ra, renderer, nil
}

func parseToken(s string) (RendererArgs, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return RendererArgs{}, fmt.Errorf("heapipc: invalid renderer args %q", s)
	}

	var fds [3]int
	for i, part := range parts {
		fd, err := strconv.Atoi(part)
		if err != nil || fd < 0 {
			return RendererArgs{}, fmt.Errorf("heapipc: invalid renderer args %q", s)
		}
		fds[i] = fd
	}
	return RendererArgs{In: fds[0], Out: fds[1], Heap: fds[2]}, nil
}
