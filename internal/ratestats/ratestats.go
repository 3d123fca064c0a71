// Package ratestats measures per-stream arrival rate and jitter.
package ratestats

import (
	"math"
	"time"
)

const (
	// rateStabilityThreshold is the maximum allowed rate standard deviation as a fraction of mean rate.
	// Example: 30 pkt/s mean → stable if stddev < 4.5 pkt/s
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// Example: 30 pkt/s (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Stats contains arrival statistics for one stream
type Stats struct {
	Stream   int
	Packets  int
	Bytes    uint64
	Duration time.Duration

	RateMean   float64 // packets/second over Duration
	RateStdDev float64 // of instantaneous rate
	RateMin    float64
	RateMax    float64
	Throughput float64 // bytes/second over Duration

	JitterMean   float64 // seconds
	JitterStdDev float64
	JitterMax    float64

	IsStable bool
}

// Calculate computes statistics from arrival timestamps
//
// This function:
//  1. Calculates mean rate (overall)
//  2. Calculates instantaneous rate for each arrival interval
//  3. Finds min/max instantaneous rate and its standard deviation
//  4. Calculates jitter (deviation from the expected interval)
//  5. Determines stability (stddev < 15% of mean AND jitter < 20%)
func Calculate(stream int, arrivals []time.Time, bytes uint64, total time.Duration) *Stats {
	n := len(arrivals)
	s := &Stats{Stream: stream, Packets: n, Bytes: bytes, Duration: total}

	if n == 0 || total <= 0 {
		return s
	}

	s.RateMean = float64(n) / total.Seconds()
	s.Throughput = float64(bytes) / total.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := arrivals[i].Sub(arrivals[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}

	// Handle edge case: no valid intervals (single packet, or a burst with
	// identical timestamps)
	if len(instantaneous) == 0 {
		return s
	}

	s.RateMin, s.RateMax = instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, r := range instantaneous {
		s.RateMin = math.Min(s.RateMin, r)
		s.RateMax = math.Max(s.RateMax, r)
		diff := r - s.RateMean
		sumSquares += diff * diff
	}
	s.RateStdDev = math.Sqrt(sumSquares / float64(len(instantaneous)))

	expected := 1.0 / s.RateMean
	jitters := make([]float64, 0, n-1)
	var jitterSum float64
	for i := 1; i < n; i++ {
		j := math.Abs(arrivals[i].Sub(arrivals[i-1]).Seconds() - expected)
		jitters = append(jitters, j)
		jitterSum += j
		s.JitterMax = math.Max(s.JitterMax, j)
	}
	s.JitterMean = jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - s.JitterMean
		jitterSumSquares += diff * diff
	}
	s.JitterStdDev = math.Sqrt(jitterSumSquares / float64(len(jitters)))

	s.IsStable = s.RateStdDev < s.RateMean*rateStabilityThreshold &&
		s.JitterMean < expected*jitterStabilityThreshold

	return s
}

// Recorder accumulates arrivals per stream. Not safe for concurrent use.
type Recorder struct {
	started  time.Time
	arrivals map[int][]time.Time
	bytes    map[int]uint64
}

// NewRecorder starts a recording window at now.
func NewRecorder(now time.Time) *Recorder {
	return &Recorder{
		started:  now,
		arrivals: make(map[int][]time.Time),
		bytes:    make(map[int]uint64),
	}
}

// Add records one arrival.
func (r *Recorder) Add(stream int, at time.Time, size int) {
	r.arrivals[stream] = append(r.arrivals[stream], at)
	r.bytes[stream] += uint64(size)
}

// Finish computes per-stream statistics for a window ending at now.
func (r *Recorder) Finish(now time.Time) map[int]*Stats {
	total := now.Sub(r.started)
	out := make(map[int]*Stats, len(r.arrivals))
	for stream, at := range r.arrivals {
		out[stream] = Calculate(stream, at, r.bytes[stream], total)
	}
	return out
}
