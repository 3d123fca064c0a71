// Package gstdevice implements a capture device on top of a GStreamer
// pipeline ending in an appsink.
//
// Frames pulled from the appsink are handed to the pipeline's Sink on the
// GStreamer streaming thread. A bus monitor goroutine turns EOS and error
// messages into status codes. Run/Pause/Stop map to PLAYING/PAUSED/NULL.
//
// Requires the gstreamer1.0 runtime (cgo).
package gstdevice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// Config contains configuration for a GStreamer device
type Config struct {
	// Launch is a gst-launch style description ending in an appsink,
	// e.g. "v4l2src device=/dev/video0 ! videoconvert ! appsink name=sink"
	Launch string

	// SinkName is the appsink element name (default "sink")
	SinkName string

	// Stream is the stream index frames are delivered on (default 0)
	Stream int

	// StateTimeout bounds how long State waits for an asynchronous
	// transition to commit (default 5s)
	StateTimeout time.Duration
}

var _ devicecapture.Device = (*Device)(nil)

// Device is a GStreamer-backed capture device
type Device struct {
	cfg Config

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	sink     devicecapture.Sink
	status   []devicecapture.StatusCode
	current  gst.State     // last committed pipeline state, from the bus
	target   gst.State     // last state requested with SetState
	changed  chan struct{} // closed and replaced on every commit
	released bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics (atomic)
	samples     uint64
	emptySample uint64
	busErrors   uint64
}

// New validates cfg and returns an unattached device.
func New(cfg Config) (*Device, error) {
	if cfg.Launch == "" {
		return nil, fmt.Errorf("gstdevice: launch description is required")
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "sink"
	}
	if cfg.Stream < 0 {
		return nil, fmt.Errorf("gstdevice: invalid stream index %d", cfg.Stream)
	}
	if cfg.StateTimeout <= 0 {
		cfg.StateTimeout = 5 * time.Second
	}
	return &Device{
		cfg:     cfg,
		current: gst.StateNull,
		target:  gst.StateNull,
		changed: make(chan struct{}),
	}, nil
}

// Attach builds the pipeline, installs the appsink callback and starts the
// bus monitor. The pipeline stays in NULL until Run.
func (d *Device) Attach(sink devicecapture.Sink) error {
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(d.cfg.Launch)
	if err != nil {
		return fmt.Errorf("gstdevice: parse launch description: %w", err)
	}

	elem, err := pipeline.GetElementByName(d.cfg.SinkName)
	if err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstdevice: appsink %q not found: %w", d.cfg.SinkName, err)
	}
	appsink := app.SinkFromElement(elem)
	if appsink == nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstdevice: element %q is not an appsink", d.cfg.SinkName)
	}

	d.mu.Lock()
	d.pipeline = pipeline
	d.appsink = appsink
	d.sink = sink
	d.mu.Unlock()

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return d.onNewSample(s, sink)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.monitorBus(ctx, pipeline, sink)

	slog.Info("gstdevice: pipeline attached",
		"launch", d.cfg.Launch,
		"sink", d.cfg.SinkName,
		"stream", d.cfg.Stream,
	)
	return nil
}

// onNewSample runs on the GStreamer streaming thread.
//
// This callback:
//  1. Pulls the sample from the appsink
//  2. Maps the buffer read-only
//  3. Hands the bytes to the sink (which copies them) with the buffer PTS
//  4. Unmaps
//
// A bad sample is skipped, never fatal for the stream.
func (d *Device) onNewSample(s *app.Sink, sink devicecapture.Sink) gst.FlowReturn {
	sample := s.PullSample()
	if sample == nil {
		slog.Warn("gstdevice: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstdevice: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		atomic.AddUint64(&d.emptySample, 1)
		return gst.FlowOK
	}

	sink.Deliver(d.cfg.Stream, data, int64(buffer.PresentationTimestamp()))
	buffer.Unmap()

	atomic.AddUint64(&d.samples, 1)
	return gst.FlowOK
}

// monitorBus polls the pipeline bus and reports status codes.
func (d *Device) monitorBus(ctx context.Context, pipeline *gst.Pipeline, sink devicecapture.Sink) {
	defer d.wg.Done()

	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstdevice: stopping bus monitor")
			return
		default:
		}

		// Short timeout keeps shutdown responsive
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstdevice: end of stream received",
				"uptime", time.Since(started),
				"samples", atomic.LoadUint64(&d.samples),
			)
			d.report(sink, devicecapture.StatusCompletion)
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			atomic.AddUint64(&d.busErrors, 1)

			category := Classify(gerr.Error(), gerr.DebugString())
			slog.Error("gstdevice: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"status", category.Status().String(),
				"uptime", time.Since(started),
			)
			d.report(sink, category.Status())
			return

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, current := msg.ParseStateChanged()
				slog.Debug("gstdevice: pipeline state changed",
					"from", old,
					"to", current,
				)
				d.commit(current)
				d.report(sink, devicecapture.StatusNormal)
			}
		}
	}
}

func (d *Device) report(sink devicecapture.Sink, code devicecapture.StatusCode) {
	d.mu.Lock()
	d.status = append(d.status, code)
	d.mu.Unlock()

	sink.SignalStatus()
}

// Run moves the pipeline to PLAYING. Live sources commit asynchronously, in
// which case CommandPending is returned.
func (d *Device) Run() (devicecapture.CommandStatus, error) {
	return d.setState(gst.StatePlaying)
}

// Pause moves the pipeline to PAUSED.
func (d *Device) Pause() (devicecapture.CommandStatus, error) {
	return d.setState(gst.StatePaused)
}

func (d *Device) setState(target gst.State) (devicecapture.CommandStatus, error) {
	d.mu.Lock()
	pipeline := d.pipeline
	if pipeline != nil {
		d.target = target
	}
	d.mu.Unlock()

	if pipeline == nil {
		return devicecapture.CommandDone, fmt.Errorf("gstdevice: not attached")
	}

	if err := pipeline.SetState(target); err != nil {
		return devicecapture.CommandDone, fmt.Errorf("gstdevice: set state %v: %w", target, err)
	}

	// The bus monitor confirms the transition; until then it is pending.
	d.mu.Lock()
	current := d.current
	d.mu.Unlock()

	if current != target {
		return devicecapture.CommandPending, nil
	}
	return devicecapture.CommandDone, nil
}

// commit records a state change posted on the bus and wakes State callers.
func (d *Device) commit(state gst.State) {
	d.mu.Lock()
	d.current = state
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()
}

// awaitCommitted returns the committed state once it matches the requested
// one, or whatever is committed when timeout elapses.
func (d *Device) awaitCommitted(timeout time.Duration) gst.State {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		d.mu.Lock()
		current, target, changed := d.current, d.target, d.changed
		d.mu.Unlock()

		if current == target {
			return current
		}

		select {
		case <-changed:
		case <-timer.C:
			slog.Warn("gstdevice: state change not committed in time",
				"current", current,
				"target", target,
				"timeout", timeout,
			)
			return current
		}
	}
}

// runState maps a GStreamer state to a run state. READY and NULL both hold
// no data flow.
func runState(s gst.State) devicecapture.RunState {
	switch s {
	case gst.StatePlaying:
		return devicecapture.StateRunning
	case gst.StatePaused:
		return devicecapture.StatePaused
	default:
		return devicecapture.StateStopped
	}
}

// State reports the pipeline state. While an asynchronous transition is in
// flight it waits, up to StateTimeout, for the bus to confirm it.
func (d *Device) State() (devicecapture.RunState, error) {
	d.mu.Lock()
	pipeline := d.pipeline
	d.mu.Unlock()

	if pipeline == nil {
		return devicecapture.StateStopped, fmt.Errorf("gstdevice: not attached")
	}
	return runState(d.awaitCommitted(d.cfg.StateTimeout)), nil
}

// Stop moves the pipeline to NULL, which joins the streaming threads: no
// sample callback runs after Stop returns.
func (d *Device) Stop() error {
	d.mu.Lock()
	pipeline := d.pipeline
	d.mu.Unlock()

	if pipeline == nil {
		return nil
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstdevice: stop pipeline: %w", err)
	}

	// NULL is reached synchronously and posts no bus message
	d.mu.Lock()
	d.target = gst.StateNull
	d.mu.Unlock()
	d.commit(gst.StateNull)
	return nil
}

// DrainStatus returns and removes every pending status code.
func (d *Device) DrainStatus() []devicecapture.StatusCode {
	d.mu.Lock()
	defer d.mu.Unlock()

	codes := d.status
	d.status = nil
	return codes
}

// Release stops the bus monitor and drops the pipeline. Idempotent and safe
// without Attach.
func (d *Device) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	cancel := d.cancel
	pipeline := d.pipeline
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	var err error
	if pipeline != nil {
		if serr := pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("gstdevice: release pipeline: %w", serr)
		}
	}

	d.mu.Lock()
	d.pipeline = nil
	d.appsink = nil
	d.sink = nil
	d.mu.Unlock()

	slog.Debug("gstdevice: released",
		"samples", atomic.LoadUint64(&d.samples),
		"empty_samples", atomic.LoadUint64(&d.emptySample),
		"bus_errors", atomic.LoadUint64(&d.busErrors),
	)
	return err
}
