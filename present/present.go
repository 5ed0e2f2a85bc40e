// Package present shows finished frames outside the Controller.
package present

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"

	"gosuda.org/heapipc"
)

// Discard drops every frame
type Discard struct{}

var _ heapipc.Presenter = Discard{}

func (Discard) Present([]byte, int, int) error { return nil }

// BMPDir writes presented frames as BMP files into a directory
type BMPDir struct {
	dir   string
	every int
	seen  int
	img   *image.RGBA
}

var _ heapipc.Presenter = (*BMPDir)(nil)

// NewBMPDir creates dir if needed and writes one of every `every` frames
// into it. every < 1 writes them all.
func NewBMPDir(dir string, every int) (*BMPDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("present: %w", err)
	}
	return &BMPDir{dir: dir, every: max(every, 1)}, nil
}

// Present converts B8G8R8A8 pixels and writes them to frame-NNNNNN.bmp
func (p *BMPDir) Present(pixels []byte, width, height int) error {
	n := p.seen
	p.seen++
	if n%p.every != 0 {
		return nil
	}
	if len(pixels) < width*height*4 {
		return fmt.Errorf("present: %d bytes for a %dx%d frame", len(pixels), width, height)
	}

	if p.img == nil || p.img.Rect.Dx() != width || p.img.Rect.Dy() != height {
		p.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	for i := 0; i < width*height*4; i += 4 {
		p.img.Pix[i+0] = pixels[i+2]
		p.img.Pix[i+1] = pixels[i+1]
		p.img.Pix[i+2] = pixels[i+0]
		p.img.Pix[i+3] = pixels[i+3]
	}

	name := filepath.Join(p.dir, fmt.Sprintf("frame-%06d.bmp", n))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	if err := bmp.Encode(f, p.img); err != nil {
		f.Close()
		return fmt.Errorf("present: encode %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	heapipc.Logger().Debug("frame presented", slog.String("file", name))
	return nil
}

// Frames returns the number of frames presented so far, written or not
func (p *BMPDir) Frames() int {
	return p.seen
}
