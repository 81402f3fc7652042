// Package membuf models the SB memory pool collaborator:
// a reference-counted byte buffer pool. TransmitMsg allocates one
// buffer per message and each successful enqueue raises its refcount;
// each dequeue (and eventual drop) lowers it, and the last release
// returns the backing array to the pool.
package membuf

import (
	"sync"

	"go.uber.org/atomic"
)

// Pool is a thread-safe allocator over a single sync.Pool of byte
// slices, the stand-in for the cFS memory pool (GetPoolBuf/PutPoolBuf).
type Pool struct {
	raw sync.Pool
}

// NewPool creates a Pool whose backing arrays default to defaultCap
// bytes; Get grows the array if the caller asks for more.
func NewPool(defaultCap int) *Pool {
	return &Pool{
		raw: sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, defaultCap)
				return &b
			},
		},
	}
}

// Buffer is a reference-counted allocation from a Pool.
type Buffer struct {
	Data []byte

	pool *Pool
	refs atomic.Int32
}

// Get allocates a Buffer of length n from the pool with a single
// reference already held (the caller's).
func (p *Pool) Get(n int) *Buffer {
	bp := p.raw.Get().(*[]byte)
	buf := *bp
	if cap(buf) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	b := &Buffer{Data: buf, pool: p}
	b.refs.Store(1)
	return b
}

// Retain raises the refcount by one; call once per destination a
// message is successfully enqueued to.
func (b *Buffer) Retain() {
	b.refs.Inc()
}

// Release lowers the refcount by one, returning the backing array to
// the pool when it reaches zero. Calling Release more times than the
// buffer has references is a caller bug; it is guarded against by
// clamping at zero rather than panicking, since a flight-software bus
// must not crash on a bookkeeping slip.
func (b *Buffer) Release() {
	for {
		cur := b.refs.Load()
		if cur <= 0 {
			return
		}
		if b.refs.CAS(cur, cur-1) {
			if cur == 1 {
				b.pool.raw.Put(&b.Data)
			}
			return
		}
	}
}

// RefCount reports the current reference count, for tests.
func (b *Buffer) RefCount() int32 {
	return b.refs.Load()
}
