package encoder

import (
	"bytes"
	"sync"
)

// Buffers larger than this are dropped on Put instead of being retained.
const maxPooledBuffer = 64 << 20

// BufferPool hands out scratch buffers for encode attempts. A batch run owns
// one pool and shares it with its encoder; every Get must be paired with a Put.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool. The caller must not touch buf afterwards.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
