// Package dmabuf turns byte ranges of a memfd into dma-buf handles through
// the kernel's udmabuf device.
package dmabuf

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevicePath is the udmabuf character device
const DevicePath = "/dev/udmabuf"

const (
	flagsCloexec = 0x01

	// _IOW('u', 0x42, struct udmabuf_create)
	ioctlCreate = 0x40187542
)

var (
	ErrAlignment = errors.New("dmabuf: offset and size must be page aligned")
	ErrRange     = errors.New("dmabuf: range exceeds the backing file")
	ErrClosed    = errors.New("dmabuf: provider closed")
)

// pagesize is the granularity udmabuf accepts for offsets and sizes
var pagesize = uint64(unix.Getpagesize())

// createRequest mirrors struct udmabuf_create
type createRequest struct {
	memfd  uint32
	flags  uint32
	offset uint64
	size   uint64
}

// Provider is an open handle on the udmabuf device.
// A Renderer opens it once and creates one handle per heap region.
type Provider struct {
	dev *os.File
}

// Open opens the udmabuf device
func Open() (*Provider, error) {
	dev, err := os.OpenFile(DevicePath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("dmabuf: failed to initialize udmabuf: %w", err)
	}
	return &Provider{dev: dev}, nil
}

// Create makes a dma-buf covering [offset, offset+size) of memfd.
//
// The returned file owns the new descriptor; callers hand it to the import
// call, which becomes responsible for closing it.
func (p *Provider) Create(memfd int, offset, size uint64) (*os.File, error) {
	if p.dev == nil {
		return nil, ErrClosed
	}
	if err := checkRange(memfd, offset, size); err != nil {
		return nil, err
	}

	req := createRequest{
		memfd:  uint32(memfd),
		flags:  flagsCloexec,
		offset: offset,
		size:   size,
	}
	fd, _, errno := unix.Syscall(unix.SYS_IOCTL, p.dev.Fd(), ioctlCreate, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return nil, fmt.Errorf("dmabuf: failed to create udmabuf at %#x+%#x: %w", offset, size, errno)
	}
	return os.NewFile(fd, fmt.Sprintf("udmabuf:%#x", offset)), nil
}

// Close closes the device; handles already created stay valid
func (p *Provider) Close() error {
	if p.dev == nil {
		return ErrClosed
	}
	err := p.dev.Close()
	p.dev = nil
	return err
}

// checkRange validates a request before it reaches the kernel so that a bad
// layout is reported as such instead of as a bare EINVAL.
func checkRange(memfd int, offset, size uint64) error {
	if size == 0 || offset%pagesize != 0 || size%pagesize != 0 {
		return fmt.Errorf("%w: offset %#x size %#x (page %#x)", ErrAlignment, offset, size, pagesize)
	}

	var st unix.Stat_t
	if err := unix.Fstat(memfd, &st); err != nil {
		return fmt.Errorf("dmabuf: fstat memfd: %w", err)
	}
	if offset+size < offset || offset+size > uint64(st.Size) {
		return fmt.Errorf("%w: %#x+%#x > %#x", ErrRange, offset, size, st.Size)
	}
	return nil
}
