package bufpool

import "sync"

// Pool hands out byte buffers backed by arrays of a fixed capacity.
// Chunk reads borrow one buffer per in-flight chunk and return it after the
// request body has been written.
type Pool struct {
	pool    sync.Pool
	bufSize int
}

// New creates a pool whose buffers have capacity bufSize.
func New(bufSize int) *Pool {
	if bufSize <= 0 {
		panic("bufSize must be positive")
	}
	p := &Pool{bufSize: bufSize}
	p.pool.New = func() any {
		buf := make([]byte, bufSize)
		return &buf
	}
	return p
}

// Get returns a buffer of length n. n is clamped to the pool's buffer size.
func (p *Pool) Get(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > p.bufSize {
		n = p.bufSize
	}
	bp := p.pool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < p.bufSize {
		buf = make([]byte, p.bufSize)
	}
	return buf[:n]
}

// Put returns a buffer obtained from Get. Buffers with a smaller capacity are discarded.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

// BufSize returns the capacity of buffers in this pool.
func (p *Pool) BufSize() int {
	return p.bufSize
}
