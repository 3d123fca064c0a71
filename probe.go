package devicecapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/ratestats"
)

// RateStats contains per-stream arrival statistics measured by Probe
type RateStats = ratestats.Stats

// Probe consumes packets from p for duration d and reports per-stream arrival
// rate and jitter, keyed by stream index.
//
// Packets read during the probe are released, not returned. Use it right after
// New to check that a device delivers at a stable rate before processing.
//
// Returns:
//   - stats, nil when d elapses
//   - stats, ErrEndOfStream if the device ended during the probe
//   - nil, ctx.Err() if ctx ends first
func Probe(ctx context.Context, p *Pipeline, d time.Duration) (map[int]*RateStats, error) {
	if d <= 0 {
		return nil, fmt.Errorf("device-capture: probe duration must be positive, got %s", d)
	}

	probeCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	slog.Info("device-capture: probing arrival rate", "id", p.id, "duration", d)

	rec := ratestats.NewRecorder(time.Now())
	for {
		pkt, err := p.ReadContext(probeCtx)
		if err != nil {
			stats := rec.Finish(time.Now())
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				logProbe(p, stats)
				return stats, nil
			case errors.Is(err, ErrEndOfStream):
				logProbe(p, stats)
				return stats, err
			default:
				return nil, err
			}
		}
		rec.Add(pkt.Stream, pkt.ArrivedAt, pkt.Size())
		pkt.Release()
	}
}

func logProbe(p *Pipeline, stats map[int]*RateStats) {
	for stream, s := range stats {
		slog.Info("device-capture: probe complete",
			"stream", p.streamName(stream),
			"packets", s.Packets,
			"rate_mean", fmt.Sprintf("%.2f", s.RateMean),
			"rate_stddev", fmt.Sprintf("%.2f", s.RateStdDev),
			"jitter_mean_ms", fmt.Sprintf("%.2f", s.JitterMean*1000),
			"throughput_bps", fmt.Sprintf("%.0f", s.Throughput),
			"stable", s.IsStable,
		)
	}
}
