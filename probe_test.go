package devicecapture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/simdevice"
)

func TestProbe(t *testing.T) {
	t.Run("duration elapses", func(t *testing.T) {
		dev := simdevice.New(simdevice.Config{Streams: 2, Interval: 5 * time.Millisecond, FrameSize: 256})
		p, err := devicecapture.New(devicecapture.Config{Streams: 2}, dev)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer p.Close()

		stats, err := devicecapture.Probe(context.Background(), p, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		for stream := 0; stream < 2; stream++ {
			s, ok := stats[stream]
			if !ok || s.Packets == 0 {
				t.Fatalf("no packets recorded for stream %d", stream)
			}
			if s.Bytes != uint64(s.Packets)*256 {
				t.Errorf("stream %d bytes = %d for %d packets", stream, s.Bytes, s.Packets)
			}
			t.Logf("stream %d: %d packets, %.1f pkt/s", stream, s.Packets, s.RateMean)
		}
	})

	t.Run("end of stream", func(t *testing.T) {
		dev := simdevice.New(simdevice.Config{Streams: 1, Interval: time.Millisecond, Frames: 3})
		p, err := devicecapture.New(devicecapture.Config{Streams: 1}, dev)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer p.Close()

		stats, err := devicecapture.Probe(context.Background(), p, 5*time.Second)
		if !errors.Is(err, devicecapture.ErrEndOfStream) {
			t.Fatalf("Probe() error = %v, want ErrEndOfStream", err)
		}
		if stats[0] == nil || stats[0].Packets != 3 {
			t.Errorf("stats = %+v, want 3 packets on stream 0", stats[0])
		}
	})

	t.Run("parent cancelled", func(t *testing.T) {
		p, _ := newManual(t, devicecapture.Config{Streams: 1})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := devicecapture.Probe(ctx, p, time.Second); !errors.Is(err, context.Canceled) {
			t.Errorf("Probe() error = %v, want Canceled", err)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		p, _ := newManual(t, devicecapture.Config{Streams: 1})
		if _, err := devicecapture.Probe(context.Background(), p, 0); err == nil {
			t.Error("Probe(0) succeeded")
		}
	})
}
