package queue

import (
	"sync"
	"time"
)

// Entry is one captured frame waiting in the queue.
//
// OWNERSHIP CONTRACT:
//   - Created by the pipeline on successful admission (payload copied from the
//     device buffer, the device may reuse its own buffer after Deliver returns)
//   - Owned by Queue between Push and Pop
//   - Owned by the reader after Pop; the reader disposes of it with Release
//   - Never shared, never mutated after Push
type Entry struct {
	// Stream is the logical stream index (e.g. 0 = video, 1 = audio)
	Stream int

	// PTS is the presentation timestamp reported by the device
	PTS int64

	// Data is the frame payload. Read-only after Push.
	Data []byte

	// Seq is the admission order, monotonically increasing across all streams
	Seq uint64

	// TraceID is a unique identifier for distributed tracing
	TraceID string

	// ArrivedAt is when the producer handed the frame over
	ArrivedAt time.Time

	pool *BufferPool
}

// Size returns the payload length in bytes.
func (e *Entry) Size() int {
	return len(e.Data)
}

// Release returns the payload to its pool. Safe to call more than once.
func (e *Entry) Release() {
	if e == nil || e.pool == nil {
		return
	}
	e.pool.put(e.Data)
	e.pool = nil
	e.Data = nil
}

// BufferPool recycles payload buffers between released entries and new admissions.
//
// Capture devices deliver frames of a near-constant size per stream, so a
// released buffer is almost always large enough for the next frame.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// NewEntry copies buf into a pooled payload and returns an entry owning it.
func (p *BufferPool) NewEntry(stream int, buf []byte, pts int64) *Entry {
	var data []byte
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= len(buf) {
		data = (*v)[:len(buf)]
	} else {
		data = make([]byte, len(buf))
	}
	copy(data, buf)

	return &Entry{
		Stream: stream,
		PTS:    pts,
		Data:   data,
		pool:   p,
	}
}

func (p *BufferPool) put(data []byte) {
	if cap(data) == 0 {
		return
	}
	data = data[:0]
	p.pool.Put(&data)
}
