// Package queue implements the capture queue: an arrival-ordered FIFO of
// frame entries with per-stream buffered-byte accounting.
//
// Queue is NOT safe for concurrent use. The pipeline guards it with the same
// mutex that backs its event channel, so the byte counters move atomically
// with Push/Pop from the point of view of every other goroutine.
package queue

// minCapacity is the initial ring size. Grows by doubling, never shrinks
// below this.
const minCapacity = 16

// Queue is a ring-buffer deque of entries (O(1) push/pop) plus a per-stream
// byte counter.
//
// Invariant: buffered[s] == sum of Size() over queued entries with Stream == s.
type Queue struct {
	ring  []*Entry
	head  int // index of oldest entry
	count int

	buffered []uint64
}

// New creates an empty queue tracking the given number of streams.
func New(streams int) *Queue {
	if streams < 1 {
		streams = 1
	}
	return &Queue{
		ring:     make([]*Entry, minCapacity),
		buffered: make([]uint64, streams),
	}
}

// Streams returns the number of tracked streams.
func (q *Queue) Streams() int {
	return len(q.buffered)
}

// Push appends e at the tail and adds its size to its stream counter.
//
// The caller has already validated e.Stream against Streams().
func (q *Queue) Push(e *Entry) {
	if q.count == len(q.ring) {
		q.grow()
	}
	tail := (q.head + q.count) % len(q.ring)
	q.ring[tail] = e
	q.count++
	q.buffered[e.Stream] += uint64(e.Size())
}

// Pop removes and returns the head entry, or nil when empty. Never blocks.
func (q *Queue) Pop() *Entry {
	if q.count == 0 {
		return nil
	}
	e := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.buffered[e.Stream] -= uint64(e.Size())

	if q.count == 0 {
		q.head = 0
	}
	return e
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return q.count
}

// Buffered returns the bytes currently queued for stream.
func (q *Queue) Buffered(stream int) uint64 {
	if stream < 0 || stream >= len(q.buffered) {
		return 0
	}
	return q.buffered[stream]
}

// Drain pops every entry and hands it to release (nil means drop the
// reference). Returns the number of entries drained.
func (q *Queue) Drain(release func(*Entry)) int {
	n := 0
	for e := q.Pop(); e != nil; e = q.Pop() {
		if release != nil {
			release(e)
		}
		n++
	}
	return n
}

// grow doubles the ring, unrolling it so head lands at index 0.
func (q *Queue) grow() {
	next := make([]*Entry, len(q.ring)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = next
	q.head = 0
}
