// Package simdevice provides an in-process capture device for tests, examples
// and the capture-probe CLI.
//
// The device emits synthetic frames on every stream from a ticker goroutine
// while Running, reports status codes through the Sink/DrainStatus protocol,
// and can be told to reject or delay control commands.
//
// With Interval == 0 no goroutine is started; frames are pushed with Emit.
package simdevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// ErrForced is the default error returned by a forced command failure.
var ErrForced = errors.New("simdevice: forced failure")

// Config contains configuration for a simulated device
type Config struct {
	// Name is used in logs
	Name string

	// Streams is the number of streams to emit on (default 1)
	Streams int

	// FrameSize is the payload size in bytes per frame (default 1024)
	FrameSize int

	// Interval is the time between frames on each stream (0 = manual Emit only)
	Interval time.Duration

	// Frames stops production after this many frames per stream and reports
	// StatusCompletion (0 = unlimited)
	Frames int

	// AttachErr makes Attach fail after delivering PreAttachFrames frames
	AttachErr       error
	PreAttachFrames int
}

var _ devicecapture.Device = (*Device)(nil)

// Device is a simulated capture device. Safe for concurrent use.
type Device struct {
	cfg Config

	mu          sync.Mutex
	sink        devicecapture.Sink
	state       devicecapture.RunState
	status      []devicecapture.StatusCode
	failNext    error
	pendingNext bool
	report      *devicecapture.RunState
	emitted     int
	released    bool
	stopCalls   int
	runCalls    int
	pauseCalls  int
	stateCalls  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a simulated device. It produces nothing until attached and run.
func New(cfg Config) *Device {
	if cfg.Streams <= 0 {
		cfg.Streams = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}
	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	return &Device{cfg: cfg}
}

// Attach stores the sink and starts the producer goroutine.
func (d *Device) Attach(sink devicecapture.Sink) error {
	d.mu.Lock()
	if d.sink != nil {
		d.mu.Unlock()
		return fmt.Errorf("simdevice: already attached")
	}
	d.sink = sink
	d.mu.Unlock()

	if d.cfg.AttachErr != nil {
		for i := 0; i < d.cfg.PreAttachFrames; i++ {
			sink.Deliver(i%d.cfg.Streams, d.frame(i), int64(i))
		}
		return d.cfg.AttachErr
	}

	if d.cfg.Interval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.mu.Lock()
		d.cancel = cancel
		d.mu.Unlock()

		d.wg.Add(1)
		go d.produce(ctx)
	}

	slog.Debug("simdevice: attached",
		"name", d.cfg.Name,
		"streams", d.cfg.Streams,
		"interval", d.cfg.Interval,
	)
	return nil
}

func (d *Device) produce(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		running := d.state == devicecapture.StateRunning
		n := d.emitted
		if running {
			d.emitted++
		}
		sink := d.sink
		d.mu.Unlock()

		if !running {
			continue
		}

		pts := int64(n) * d.cfg.Interval.Nanoseconds()
		for s := 0; s < d.cfg.Streams; s++ {
			sink.Deliver(s, d.frame(n), pts)
		}

		if d.cfg.Frames > 0 && n+1 >= d.cfg.Frames {
			slog.Debug("simdevice: frame budget exhausted", "name", d.cfg.Name, "frames", n+1)
			d.InjectStatus(devicecapture.StatusNormal, devicecapture.StatusCompletion)
			return
		}
	}
}

// frame builds a payload whose first bytes encode n.
func (d *Device) frame(n int) []byte {
	buf := make([]byte, d.cfg.FrameSize)
	for i := range buf {
		buf[i] = byte(n + i)
	}
	return buf
}

// Emit delivers one frame synchronously on the caller's goroutine.
func (d *Device) Emit(stream int, buf []byte, pts int64) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()

	if sink != nil {
		sink.Deliver(stream, buf, pts)
	}
}

// InjectStatus queues status codes and signals the sink once.
func (d *Device) InjectStatus(codes ...devicecapture.StatusCode) {
	d.mu.Lock()
	d.status = append(d.status, codes...)
	sink := d.sink
	d.mu.Unlock()

	if sink != nil {
		sink.SignalStatus()
	}
}

// FailNext makes the next Run or Pause return err (ErrForced if nil).
func (d *Device) FailNext(err error) {
	if err == nil {
		err = ErrForced
	}
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

// PendingNext makes the next Run or Pause reply CommandPending; the
// following State call reports report instead of the commanded state.
func (d *Device) PendingNext(report devicecapture.RunState) {
	d.mu.Lock()
	d.pendingNext = true
	d.report = &report
	d.mu.Unlock()
}

// Run starts frame production.
func (d *Device) Run() (devicecapture.CommandStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runCalls++
	return d.command(devicecapture.StateRunning)
}

// Pause suspends frame production.
func (d *Device) Pause() (devicecapture.CommandStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pauseCalls++
	return d.command(devicecapture.StatePaused)
}

// command applies a transition. Caller holds d.mu.
func (d *Device) command(target devicecapture.RunState) (devicecapture.CommandStatus, error) {
	if err := d.failNext; err != nil {
		d.failNext = nil
		return devicecapture.CommandDone, err
	}
	if d.released {
		return devicecapture.CommandDone, fmt.Errorf("simdevice: released")
	}

	if d.pendingNext {
		d.pendingNext = false
		if d.report != nil {
			// Only commit if the poll will confirm it
			if *d.report == target {
				d.state = target
			}
		}
		return devicecapture.CommandPending, nil
	}

	d.state = target
	return devicecapture.CommandDone, nil
}

// State reports the device's actual run state.
func (d *Device) State() (devicecapture.RunState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateCalls++

	if d.report != nil {
		r := *d.report
		d.report = nil
		return r, nil
	}
	return d.state, nil
}

// Stop halts production. No frame is delivered after Stop returns.
func (d *Device) Stop() error {
	d.mu.Lock()
	d.stopCalls++
	d.mu.Unlock()

	d.halt()
	return nil
}

func (d *Device) halt() {
	d.mu.Lock()
	d.state = devicecapture.StateStopped
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// DrainStatus returns and removes every pending status code.
func (d *Device) DrainStatus() []devicecapture.StatusCode {
	d.mu.Lock()
	defer d.mu.Unlock()

	codes := d.status
	d.status = nil
	return codes
}

// Release detaches from the sink. Idempotent and safe without Attach.
func (d *Device) Release() error {
	d.halt()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	d.sink = nil
	return nil
}

// Calls reports how many times each command was issued.
type Calls struct {
	Run, Pause, State, Stop int
}

// Calls returns the command counters.
func (d *Device) Calls() Calls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Calls{Run: d.runCalls, Pause: d.pauseCalls, State: d.stateCalls, Stop: d.stopCalls}
}

// Released reports whether Release has been called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}
