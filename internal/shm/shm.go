package shm

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Seals applied to every heap right after it is sized.
// F_SEAL_SEAL forbids removing the other two, so the size is fixed for the
// lifetime of the file.
const heapSeals = unix.F_SEAL_SEAL | unix.F_SEAL_SHRINK | unix.F_SEAL_GROW

var (
	ErrInvalidSize = errors.New("shm: invalid heap size")
	ErrMapped      = errors.New("shm: heap already mapped")
	ErrNotMapped   = errors.New("shm: heap not mapped")
)

// SharedMemory represents the anonymous memory-backed file shared between
// the Controller and the Renderer.
//
// The Controller creates it with Create; the Renderer adopts the inherited
// descriptor with Open. Both sides map the whole file with Map.
type SharedMemory struct {
	name string   // Name passed to memfd_create (debugging only)
	size int      // Size of the heap in bytes, fixed once sealed
	file *os.File // Backing memfd
	mem  []byte   // Current mapping, nil until Map
}

// Create allocates a named memfd, sizes it exactly once and seals it against
// any further size change.
func Create(name string, size int) (*SharedMemory, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create %q: %w", name, err)
	}
	file := os.NewFile(uintptr(fd), "memfd:"+name)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: failed to set memfd size: %w", err)
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, heapSeals); err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: failed to seal memfd: %w", err)
	}

	return &SharedMemory{name: name, size: size, file: file}, nil
}

// Open adopts an inherited heap descriptor.
// The size is discovered from the end of the file since the creator already
// sealed it.
func Open(fd int) (*SharedMemory, error) {
	off, err := unix.Seek(fd, 0, unix.SEEK_END)
	if err != nil {
		return nil, fmt.Errorf("shm: failed to get memfd size: %w", err)
	}
	if off <= 0 || int64(int(off)) != off {
		return nil, ErrInvalidSize
	}

	return &SharedMemory{
		name: fmt.Sprintf("fd%d", fd),
		size: int(off),
		file: os.NewFile(uintptr(fd), fmt.Sprintf("memfd:%d", fd)),
	}, nil
}

// Name returns the name the heap was created with
func (s *SharedMemory) Name() string {
	return s.name
}

// Size returns the size of the heap in bytes
// It never changes after Create returns
func (s *SharedMemory) Size() int {
	return s.size
}

// FD returns the file descriptor of the backing memfd
func (s *SharedMemory) FD() uintptr {
	return s.file.Fd()
}

// File returns the backing memfd as an *os.File, suitable for passing to a
// child process through exec.Cmd.ExtraFiles.
func (s *SharedMemory) File() *os.File {
	return s.file
}

// Seals returns the seals currently applied to the heap
func (s *SharedMemory) Seals() (int, error) {
	seals, err := unix.FcntlInt(s.file.Fd(), unix.F_GET_SEALS, 0)
	if err != nil {
		return 0, fmt.Errorf("shm: failed to query seals: %w", err)
	}
	return seals, nil
}

// Resize tries to change the size of the heap.
// On a sealed heap it always fails; it exists so callers can verify the seal.
func (s *SharedMemory) Resize(size int) error {
	if err := unix.Ftruncate(int(s.file.Fd()), int64(size)); err != nil {
		return fmt.Errorf("shm: resize to %d: %w", size, err)
	}
	s.size = size
	return nil
}

// Map maps the whole heap read/write and shared between processes
func (s *SharedMemory) Map() ([]byte, error) {
	if s.mem != nil {
		return nil, ErrMapped
	}

	mem, err := unix.Mmap(int(s.file.Fd()), 0, s.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: failed to map memfd: %w", err)
	}
	s.mem = mem
	return mem, nil
}

// Mapping returns the current mapping, or nil before Map
func (s *SharedMemory) Mapping() []byte {
	return s.mem
}

// Unmap releases the mapping created by Map
func (s *SharedMemory) Unmap() error {
	if s.mem == nil {
		return ErrNotMapped
	}
	if err := unix.Munmap(s.mem); err != nil {
		return fmt.Errorf("shm: munmap failed: %w", err)
	}
	s.mem = nil
	return nil
}

// Close unmaps the heap if needed and closes the descriptor.
// Other processes holding their own descriptor keep the memory alive.
func (s *SharedMemory) Close() error {
	var errs []error
	if s.mem != nil {
		errs = append(errs, s.Unmap())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}
