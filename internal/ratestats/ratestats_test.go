package ratestats

import (
	"testing"
	"time"
)

func TestCalculate(t *testing.T) {
	start := time.Unix(0, 0)
	regular := func(n int, interval time.Duration) []time.Time {
		out := make([]time.Time, n)
		for i := range out {
			out[i] = start.Add(time.Duration(i) * interval)
		}
		return out
	}

	tests := []struct {
		name       string
		arrivals   []time.Time
		total      time.Duration
		wantStable bool
		wantRate   float64
	}{
		{
			name:     "no packets",
			arrivals: nil,
			total:    time.Second,
		},
		{
			name:     "single packet",
			arrivals: regular(1, 0),
			total:    time.Second,
			wantRate: 1,
		},
		{
			name:       "steady 10 per second",
			arrivals:   regular(10, 100*time.Millisecond),
			total:      time.Second,
			wantStable: true,
			wantRate:   10,
		},
		{
			name: "bursty",
			arrivals: []time.Time{
				start,
				start.Add(5 * time.Millisecond),
				start.Add(400 * time.Millisecond),
				start.Add(405 * time.Millisecond),
				start.Add(900 * time.Millisecond),
			},
			total:      time.Second,
			wantStable: false,
			wantRate:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Calculate(0, tt.arrivals, uint64(len(tt.arrivals)*100), tt.total)

			if s.Packets != len(tt.arrivals) {
				t.Errorf("Packets = %d, want %d", s.Packets, len(tt.arrivals))
			}
			if s.RateMean != tt.wantRate {
				t.Errorf("RateMean = %.2f, want %.2f", s.RateMean, tt.wantRate)
			}
			if s.IsStable != tt.wantStable {
				t.Errorf("IsStable = %v, want %v (stddev %.2f, jitter %.4f)",
					s.IsStable, tt.wantStable, s.RateStdDev, s.JitterMean)
			}
			t.Logf("rate=%.2f±%.2f jitter=%.4fs", s.RateMean, s.RateStdDev, s.JitterMean)
		})
	}
}

func TestRecorder_PerStream(t *testing.T) {
	start := time.Unix(100, 0)
	r := NewRecorder(start)

	for i := 0; i < 5; i++ {
		at := start.Add(time.Duration(i) * 200 * time.Millisecond)
		r.Add(0, at, 1000)
		if i%2 == 0 {
			r.Add(1, at, 10)
		}
	}

	stats := r.Finish(start.Add(time.Second))
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}
	if stats[0].Packets != 5 || stats[0].Bytes != 5000 {
		t.Errorf("stream 0 = %d packets / %d bytes", stats[0].Packets, stats[0].Bytes)
	}
	if stats[1].Packets != 3 || stats[1].Throughput != 30 {
		t.Errorf("stream 1 = %d packets / %.1f B/s", stats[1].Packets, stats[1].Throughput)
	}
}
