// Package admission decides, at ingestion time, whether an incoming frame is
// queued or shed.
//
// Graduated backpressure: instead of an all-or-nothing cutoff at 100% the
// controller compares buffer fullness against a fixed cyclic schedule of
// thresholds. With the default schedule {62, 75, 87, 100}:
//
//	fullness <  62%  → 0 of 4 arrivals dropped
//	fullness >= 62%  → 1 of 4
//	fullness >= 75%  → 2 of 4
//	fullness >= 87%  → 3 of 4
//	fullness >= 100% → 4 of 4
//
// Controller is NOT safe for concurrent use; the pipeline calls Decide while
// holding its queue mutex.
package admission

import "fmt"

// DefaultSchedule is the drop-severity rotation used when none is configured.
var DefaultSchedule = []uint8{62, 75, 87, 100}

// CounterScope selects how arrivals advance the schedule.
type CounterScope int

const (
	// SharedCounter advances one counter for every arrival on any stream.
	SharedCounter CounterScope = iota
	// PerStreamCounter keeps an independent rotation per stream.
	PerStreamCounter
)

// String returns a human-readable representation of the scope
func (c CounterScope) String() string {
	switch c {
	case SharedCounter:
		return "shared"
	case PerStreamCounter:
		return "per-stream"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Admit     bool
	Fullness  uint64 // percent of limit, may exceed 100
	Threshold uint8  // schedule slot selected for this arrival
}

// Controller applies the cyclic drop schedule.
type Controller struct {
	schedule []uint8
	limit    uint64
	scope    CounterScope
	counters []uint64 // len 1 for SharedCounter, one per stream otherwise
}

// New creates a controller for the given number of streams.
//
// A zero limit means every arrival is dropped: there is no buffer to fill.
func New(schedule []uint8, limit uint64, scope CounterScope, streams int) (*Controller, error) {
	if len(schedule) == 0 {
		return nil, fmt.Errorf("admission: empty drop schedule")
	}
	for _, th := range schedule {
		if th == 0 || th > 100 {
			return nil, fmt.Errorf("admission: invalid threshold %d (must be 1-100)", th)
		}
	}
	if streams < 1 {
		return nil, fmt.Errorf("admission: invalid stream count %d", streams)
	}

	n := 1
	switch scope {
	case SharedCounter:
	case PerStreamCounter:
		n = streams
	default:
		return nil, fmt.Errorf("admission: invalid counter scope %d", scope)
	}

	sched := make([]uint8, len(schedule))
	copy(sched, schedule)

	return &Controller{
		schedule: sched,
		limit:    limit,
		scope:    scope,
		counters: make([]uint64, n),
	}, nil
}

// Decide advances the arrival counter and returns whether a frame on stream
// may be queued given the bytes already buffered for that stream.
//
// The incoming frame's own size is not part of the check (fullness is
// measured before the frame is added), matching a device that may overshoot
// the limit by at most one frame per stream.
func (c *Controller) Decide(stream int, buffered uint64) Decision {
	idx := 0
	if c.scope == PerStreamCounter && stream >= 0 && stream < len(c.counters) {
		idx = stream
	}
	c.counters[idx]++
	threshold := c.schedule[c.counters[idx]%uint64(len(c.schedule))]

	if c.limit == 0 {
		return Decision{Admit: false, Fullness: 100, Threshold: threshold}
	}

	fullness := buffered * 100 / c.limit

	return Decision{
		Admit:     uint64(threshold) > fullness,
		Fullness:  fullness,
		Threshold: threshold,
	}
}

// Limit returns the configured per-stream buffer limit in bytes.
func (c *Controller) Limit() uint64 {
	return c.limit
}
