// package shmlog implements a byte pipe between processes over a shared
// memfd. The ring header holds a shm.Mutex and two shm.Condvars, so readers
// and writers in different processes sleep in the kernel instead of polling.
package shmlog

import (
	"errors"
	"io"
	"unsafe"

	"github.com/codelif/futexsync/shm"
)

type _ring_header struct {
	mu       shm.Mutex
	notEmpty shm.Condvar
	notFull  shm.Condvar
	head     uint32
	tail     uint32
	closed   uint32
}

const _BUF_HEAD_SIZE = unsafe.Sizeof(_ring_header{})
const _BUF_DATA_SIZE = 1 << 20 // should be less than 2^32 (since head/tail are 32bit ints)
const _BUF_SIZE = _BUF_HEAD_SIZE + _BUF_DATA_SIZE
const _BUF_DATA_MASK = _BUF_DATA_SIZE - 1

var ErrClosed = errors.New("shmlog: write to closed log")

type Logger struct {
	region *shm.Region
	hdr    *_ring_header
	buf_d  []byte // buffer payload
}

// New creates an empty log in a fresh region. Other processes attach to it
// through Path.
func New() (*Logger, error) {
	r, err := shm.Create(int(_BUF_SIZE))
	if err != nil {
		return nil, err
	}

	l, err := fromRegion(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return l, nil
}

// Attach maps the log another process created.
func Attach(path string) (*Logger, error) {
	r, err := shm.Open(path)
	if err != nil {
		return nil, err
	}

	l, err := fromRegion(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return l, nil
}

func fromRegion(r *shm.Region) (*Logger, error) {
	if r.Size() < int(_BUF_SIZE) {
		return nil, shm.ErrOutOfBounds
	}
	// a zero-filled header is an empty, open ring
	h, err := shm.At[_ring_header](r.Bytes(), 0)
	if err != nil {
		return nil, err
	}
	return &Logger{region: r, hdr: h, buf_d: r.Bytes()[_BUF_HEAD_SIZE:_BUF_SIZE]}, nil
}

// Path returns the path other processes pass to Attach.
func (l *Logger) Path() string {
	return l.region.Path()
}

// Close unmaps the log from this process.
func (l *Logger) Close() error {
	return l.region.Close()
}

type Reader struct {
	l *Logger
}

func (l *Logger) NewReader() io.Reader {
	return &Reader{l}
}

// Read blocks until data is available. It returns io.EOF once the log is
// closed and drained.
func (r *Reader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	h := r.l.hdr
	h.mu.Lock()
	defer h.mu.Unlock()

	h.notEmpty.WaitWhile(&h.mu, func() bool {
		return h.head == h.tail && h.closed == 0
	})

	for n < len(p) {
		avail := h.head - h.tail
		if avail == 0 {
			break
		}

		chunk := int(avail)

		wrap := int(_BUF_DATA_SIZE - (h.tail & _BUF_DATA_MASK))
		if chunk > wrap {
			chunk = wrap
		}
		remain := len(p) - n
		if chunk > remain {
			chunk = remain
		}

		start := int(h.tail & _BUF_DATA_MASK)
		copy(p[n:n+chunk], r.l.buf_d[start:start+chunk])

		h.tail += uint32(chunk)
		n += chunk
	}

	if n == 0 {
		return 0, io.EOF
	}

	h.notFull.NotifyAll()
	return n, nil
}

type Writer struct {
	l *Logger
}

func (l *Logger) NewWriter() io.WriteCloser {
	return &Writer{l}
}

// Write blocks while the ring is full.
func (w *Writer) Write(p []byte) (n int, err error) {
	h := w.l.hdr
	h.mu.Lock()
	defer h.mu.Unlock()

	total := len(p)

	for n < total {
		h.notFull.WaitWhile(&h.mu, func() bool {
			return h.head-h.tail == _BUF_DATA_SIZE && h.closed == 0
		})
		if h.closed != 0 {
			return n, ErrClosed
		}

		chunk := int(_BUF_DATA_SIZE - (h.head - h.tail))
		endOfBuf := int(_BUF_DATA_SIZE - (h.head & _BUF_DATA_MASK))
		if chunk > endOfBuf {
			chunk = endOfBuf
		}
		if chunk > total-n {
			chunk = total - n
		}

		start := int(h.head & _BUF_DATA_MASK)
		copy(w.l.buf_d[start:start+chunk], p[n:n+chunk])
		h.head += uint32(chunk)
		n += chunk

		h.notEmpty.NotifyAll()
	}
	return n, nil
}

// Close marks the log closed. Readers drain what is left and then get
// io.EOF; blocked writers fail with ErrClosed.
func (w *Writer) Close() error {
	h := w.l.hdr
	h.mu.Lock()
	h.closed = 1
	h.mu.Unlock()

	h.notEmpty.NotifyAll()
	h.notFull.NotifyAll()
	return nil
}
