package queue

import (
	"math/rand"
	"testing"
)

// sumBuffered recomputes the per-stream byte totals by walking the ring.
func sumBuffered(q *Queue) []uint64 {
	sums := make([]uint64, q.Streams())
	for i := 0; i < q.count; i++ {
		e := q.ring[(q.head+i)%len(q.ring)]
		sums[e.Stream] += uint64(e.Size())
	}
	return sums
}

func TestQueue_FIFOAcrossGrowth(t *testing.T) {
	q := New(2)
	pool := NewBufferPool()

	const total = 100 // forces several grow() calls from minCapacity
	for i := 0; i < total; i++ {
		e := pool.NewEntry(i%2, []byte{byte(i)}, int64(i))
		e.Seq = uint64(i)
		q.Push(e)
	}

	if q.Len() != total {
		t.Fatalf("Len() = %d, want %d", q.Len(), total)
	}

	for i := 0; i < total; i++ {
		e := q.Pop()
		if e == nil {
			t.Fatalf("Pop() returned nil at %d", i)
		}
		if e.Seq != uint64(i) {
			t.Fatalf("out of order: got seq %d, want %d", e.Seq, i)
		}
	}

	if e := q.Pop(); e != nil {
		t.Errorf("Pop() on empty queue = %+v, want nil", e)
	}
}

func TestQueue_WrapAroundKeepsOrder(t *testing.T) {
	q := New(1)
	next, want := 0, 0

	// Interleave pushes and pops so head walks around the ring many times
	for round := 0; round < 50; round++ {
		for i := 0; i < 5; i++ {
			q.Push(&Entry{Seq: uint64(next), Data: make([]byte, 1)})
			next++
		}
		for i := 0; i < 3; i++ {
			e := q.Pop()
			if e.Seq != uint64(want) {
				t.Fatalf("round %d: got seq %d, want %d", round, e.Seq, want)
			}
			want++
		}
	}
}

// TestQueue_Property_BufferedMatchesContents checks the byte-counter invariant
// after every operation of a random push/pop interleaving.
func TestQueue_Property_BufferedMatchesContents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	q := New(3)

	for op := 0; op < 5000; op++ {
		if rng.Intn(3) > 0 {
			q.Push(&Entry{Stream: rng.Intn(3), Data: make([]byte, rng.Intn(512))})
		} else {
			q.Pop()
		}

		sums := sumBuffered(q)
		for s := 0; s < q.Streams(); s++ {
			if q.Buffered(s) != sums[s] {
				t.Fatalf("op %d: Buffered(%d) = %d, contents sum = %d", op, s, q.Buffered(s), sums[s])
			}
		}
	}
}

func TestQueue_DrainReleasesEverything(t *testing.T) {
	q := New(2)
	pool := NewBufferPool()
	for i := 0; i < 20; i++ {
		q.Push(pool.NewEntry(i%2, make([]byte, 100), 0))
	}

	released := 0
	n := q.Drain(func(e *Entry) {
		e.Release()
		released++
	})

	if n != 20 || released != 20 {
		t.Errorf("Drain() = %d (released %d), want 20", n, released)
	}
	if q.Len() != 0 || q.Buffered(0) != 0 || q.Buffered(1) != 0 {
		t.Errorf("queue not empty after drain: len=%d buffered=[%d %d]", q.Len(), q.Buffered(0), q.Buffered(1))
	}
}

func TestQueue_BufferedOutOfRange(t *testing.T) {
	q := New(2)
	if got := q.Buffered(-1); got != 0 {
		t.Errorf("Buffered(-1) = %d, want 0", got)
	}
	if got := q.Buffered(2); got != 0 {
		t.Errorf("Buffered(2) = %d, want 0", got)
	}
}

func TestEntry_ReleaseIdempotent(t *testing.T) {
	pool := NewBufferPool()
	e := pool.NewEntry(0, []byte("frame"), 7)

	if string(e.Data) != "frame" || e.PTS != 7 {
		t.Fatalf("NewEntry copied wrong data: %q pts=%d", e.Data, e.PTS)
	}

	e.Release()
	e.Release() // must not double-put

	if e.Data != nil {
		t.Errorf("Data not cleared after Release")
	}

	var nilEntry *Entry
	nilEntry.Release() // must not panic
}

func TestBufferPool_CopiesInput(t *testing.T) {
	pool := NewBufferPool()
	src := []byte{1, 2, 3}
	e := pool.NewEntry(0, src, 0)

	src[0] = 99 // device reuses its buffer
	if e.Data[0] != 1 {
		t.Errorf("entry shares memory with device buffer")
	}
}
