package shm

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

var (
	ErrOutOfBounds = errors.New("shm: value does not fit in the region")
	ErrMisaligned  = errors.New("shm: offset is not aligned for the value")
)

// Region is a memfd mapped MAP_SHARED into this process. Other processes
// attach to the same memory through Path, or by receiving the descriptor.
type Region struct {
	fd  int
	mem []byte
}

// Create makes a new zero-filled region of size bytes.
func Create(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}

	fd, err := unix.MemfdCreate("futexsync-"+uuid.NewString(), unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}

	err = unix.Ftruncate(fd, int64(size))
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	r, err := FromFd(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return r, nil
}

// Open maps an existing region by path, for example the
// /proc/<pid>/fd/<fd> path another process reported from Path.
func Open(path string) (*Region, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r, err := FromFd(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return r, nil
}

// FromFd maps the whole file behind fd. The region takes ownership of fd and
// closes it in Close.
func FromFd(fd int) (*Region, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size <= 0 {
		return nil, fmt.Errorf("shm: fd %d is empty", fd)
	}

	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	log.Debug("mapped shared region", "fd", fd, "size", st.Size)

	return &Region{fd: fd, mem: mem}, nil
}

// Fd returns the memfd backing r.
func (r *Region) Fd() int {
	return r.fd
}

// Path returns a path through which other processes can Open r while this
// process is alive.
func (r *Region) Path() string {
	return fmt.Sprintf("/proc/%d/fd/%d", os.Getpid(), r.fd)
}

// Bytes returns the mapped memory. It is only valid until Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Size returns the length of the mapping in bytes.
func (r *Region) Size() int {
	return len(r.mem)
}

// Close unmaps the memory and closes the descriptor. Primitives placed in
// the region must not be used afterwards.
func (r *Region) Close() error {
	var result *multierror.Error

	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			result = multierror.Append(result, fmt.Errorf("munmap: %w", err))
		}
		r.mem = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			result = multierror.Append(result, fmt.Errorf("close: %w", err))
		}
		log.Debug("closed shared region", "fd", r.fd)
		r.fd = -1
	}

	return result.ErrorOrNil()
}

// At returns a *T viewing mem at offset off. The value must fit inside mem
// and off must satisfy T's alignment. T must not contain Go pointers, since
// the memory is invisible to the garbage collector and to other processes'
// address spaces.
func At[T any](mem []byte, off int) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	align := int(unsafe.Alignof(zero))

	if off < 0 || size > len(mem)-off {
		return nil, fmt.Errorf("%w: %d bytes at offset %d of %d", ErrOutOfBounds, size, off, len(mem))
	}
	if len(mem) == 0 {
		return nil, fmt.Errorf("%w: empty region", ErrOutOfBounds)
	}

	p := unsafe.Pointer(unsafe.SliceData(mem))
	if (uintptr(p)+uintptr(off))%uintptr(align) != 0 {
		return nil, fmt.Errorf("%w: offset %d, alignment %d", ErrMisaligned, off, align)
	}

	return (*T)(unsafe.Add(p, off)), nil
}
