package devicecapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/admission"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/event"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/teardown"
	"github.com/google/uuid"
)

// streamState holds per-stream counters. Guarded by Pipeline.mu.
type streamState struct {
	admitted     uint64
	dropped      uint64
	lastFullness uint64
	shedding     bool // last arrival was dropped
}

// Pipeline connects a capture Device (producer) to a single reader.
//
// The device calls Deliver and SignalStatus from its own goroutines; the
// application calls Read/ReadContext, Request and Close. One mutex guards the
// queue, the per-stream byte counters and both wakeup flags.
type Pipeline struct {
	id      string
	cfg     Config
	dev     Device
	started time.Time

	mu      sync.Mutex
	queue   *queue.Queue
	pool    *queue.BufferPool
	events  *event.Channel
	admit   *admission.Controller
	streams []streamState
	seq     uint64
	closed  bool // producer fence, set first during Close

	// Reader-side terminal state. Guarded by mu. ending is set when a
	// terminal status was drained with packets still queued; eof latches
	// once those packets have been read.
	ending   bool
	eof      bool
	terminal StatusCode

	rejected  atomic.Uint64
	readCount atomic.Uint64

	control  *control.Plane
	shutdown teardown.Sequencer
}

// New creates a pipeline, attaches dev as its producer and starts it.
//
// Construction order (each step registers its release with the shutdown
// sequencer before the next one runs):
//  1. Validate config (fail-fast)
//  2. Queue, buffer pool, event channel, admission controller
//  3. dev.Attach(p), frames may start arriving immediately
//  4. Initial Run with confirmation → Running
//
// On any failure after step 1 the partially built pipeline is torn down
// before New returns.
func New(cfg Config, dev Device) (*Pipeline, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidConfig)
	}

	p := &Pipeline{
		id:      uuid.NewString(),
		cfg:     cfg,
		dev:     dev,
		started: time.Now(),
	}

	// Producer fence runs after the control plane has stopped the device
	// (LIFO within the stop phase).
	p.shutdown.Add(teardown.PhaseStop, "producer-fence", p.fence)

	p.queue = queue.New(cfg.Streams)
	p.pool = queue.NewBufferPool()
	p.streams = make([]streamState, cfg.Streams)
	p.shutdown.Add(teardown.PhaseDrain, "queue", p.drain)

	p.events = event.New(&p.mu)
	p.shutdown.Add(teardown.PhaseClose, "events", p.closeEvents)

	p.admit, err = admission.New(cfg.DropSchedule, uint64(cfg.MaxBufferBytes), cfg.CounterScope, cfg.Streams)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Release must tolerate a failed Attach, so register it first
	p.shutdown.Add(teardown.PhaseRelease, "device", dev.Release)
	if err := dev.Attach(p); err != nil {
		closeErr := p.Close()
		return nil, errors.Join(fmt.Errorf("device-capture: attach device: %w", err), closeErr)
	}

	p.control = control.New(dev)
	p.shutdown.Add(teardown.PhaseStop, "control", p.control.Shutdown)
	if err := p.control.Start(); err != nil {
		closeErr := p.Close()
		return nil, errors.Join(fmt.Errorf("device-capture: start device: %w", err), closeErr)
	}

	slog.Info("device-capture: pipeline started",
		"id", p.id,
		"device", cfg.Name,
		"streams", cfg.Streams,
		"max_buffer_bytes", cfg.MaxBufferBytes,
		"drop_schedule", fmt.Sprint(cfg.DropSchedule),
		"counter_scope", cfg.CounterScope.String(),
	)

	return p, nil
}

// normalize applies defaults and validates the config.
func (c Config) normalize() (Config, error) {
	if c.Streams == 0 {
		c.Streams = DefaultStreams
	}
	if c.MaxBufferBytes == 0 {
		c.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if len(c.DropSchedule) == 0 {
		c.DropSchedule = DefaultDropSchedule()
	} else {
		s := make([]uint8, len(c.DropSchedule))
		copy(s, c.DropSchedule)
		c.DropSchedule = s
	}

	var errs []error
	if c.Streams < 0 {
		errs = append(errs, fmt.Errorf("streams must be positive, got %d", c.Streams))
	}
	if c.MaxBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("max buffer bytes must not be negative, got %d", c.MaxBufferBytes))
	}
	if len(c.StreamNames) > 0 && len(c.StreamNames) != c.Streams {
		errs = append(errs, fmt.Errorf("%d stream names for %d streams", len(c.StreamNames), c.Streams))
	}
	for i, th := range c.DropSchedule {
		if th == 0 || th > 100 {
			errs = append(errs, fmt.Errorf("drop schedule[%d] = %d (must be 1-100)", i, th))
		}
	}
	if c.CounterScope != SharedCounter && c.CounterScope != PerStreamCounter {
		errs = append(errs, fmt.Errorf("unknown counter scope %d", c.CounterScope))
	}

	if err := errors.Join(errs...); err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, nil
}

// ID returns the pipeline instance identifier.
func (p *Pipeline) ID() string {
	return p.id
}

func (p *Pipeline) streamName(stream int) string {
	if stream >= 0 && stream < len(p.cfg.StreamNames) {
		return p.cfg.StreamNames[stream]
	}
	return fmt.Sprintf("stream-%d", stream)
}

// Deliver is called by the device for every captured frame.
//
// Runs on the producer's goroutine and never blocks beyond the queue mutex:
//   - Copies buf (the device may reuse it after return)
//   - Admission decision against the stream's buffered bytes
//   - Enqueue + data-available, then wake the reader outside the lock
//
// Dropped and invalid frames are counted and logged, never reported back.
func (p *Pipeline) Deliver(stream int, buf []byte, pts int64) {
	if stream < 0 || stream >= p.cfg.Streams || len(buf) == 0 {
		p.rejected.Add(1)
		slog.Debug("device-capture: invalid frame ignored",
			"device", p.cfg.Name,
			"stream", stream,
			"size_bytes", len(buf),
		)
		return
	}

	arrived := time.Now()
	traceID := uuid.NewString()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.ending || p.eof {
		p.mu.Unlock()
		p.rejected.Add(1)
		slog.Debug("device-capture: frame after end of stream ignored",
			"device", p.cfg.Name,
			"stream", p.streamName(stream),
		)
		return
	}

	st := &p.streams[stream]
	d := p.admit.Decide(stream, p.queue.Buffered(stream))
	st.lastFullness = d.Fullness

	if !d.Admit {
		st.dropped++
		first := !st.shedding
		st.shedding = true
		p.mu.Unlock()

		level := slog.LevelDebug
		if first {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "device-capture: real-time buffer too full, frame dropped",
			"device", p.cfg.Name,
			"stream", p.streamName(stream),
			"fullness_pct", d.Fullness,
			"threshold_pct", d.Threshold,
			"max_buffer_bytes", p.cfg.MaxBufferBytes,
			"size_bytes", len(buf),
		)
		return
	}

	if st.shedding {
		st.shedding = false
		slog.Debug("device-capture: admission resumed",
			"stream", p.streamName(stream),
			"fullness_pct", d.Fullness,
		)
	}

	e := p.pool.NewEntry(stream, buf, pts)
	p.seq++
	e.Seq = p.seq
	e.TraceID = traceID
	e.ArrivedAt = arrived

	p.queue.Push(e)
	st.admitted++
	p.events.SetData()
	p.mu.Unlock()

	p.events.Notify()
}

// SignalStatus is called by the device whenever it has queued a status code.
func (p *Pipeline) SignalStatus() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.events.SetStatus()
	p.mu.Unlock()

	p.events.Notify()
}

// Read returns the next packet in admission order.
//
// Behavior:
//   - Queued packet available → returned without consulting the device
//   - Queue empty → every pending device status is drained; a terminal one
//     stops admission, and end-of-stream latches once frames admitted before
//     it have been read
//   - Nothing queued, not terminal → ErrWouldBlock (non-blocking) or wait
//
// Once ErrEndOfStream is returned, every later Read returns it too, even
// after Close. Read after Close (without end-of-stream) returns ErrClosed.
func (p *Pipeline) Read(blocking bool) (*Packet, error) {
	return p.read(blocking, nil)
}

// ReadContext is a blocking Read that also returns when ctx ends.
//
// A context wakeup never consumes or drops a packet: if ctx ends while the
// reader is parked, the queue is left as is and ctx.Err() is returned.
func (p *Pipeline) ReadContext(ctx context.Context) (*Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Notify under the lock so the waiter cannot miss the wakeup between
	// its abort check and parking.
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.events.Notify()
		p.mu.Unlock()
	})
	defer stop()

	return p.read(true, ctx.Err)
}

func (p *Pipeline) read(blocking bool, abort func() error) (*Packet, error) {
	for {
		p.mu.Lock()
		if p.eof {
			p.mu.Unlock()
			return nil, ErrEndOfStream
		}
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if e := p.queue.Pop(); e != nil {
			if p.queue.Len() == 0 {
				p.events.ClearData()
			}
			p.mu.Unlock()
			p.readCount.Add(1)
			return e, nil
		}

		// Queue empty after a terminal status: everything admitted before
		// it has been read.
		if p.ending {
			p.eof = true
			code := p.terminal
			p.mu.Unlock()

			slog.Info("device-capture: end of stream",
				"id", p.id,
				"device", p.cfg.Name,
				"status", code.String(),
			)
			return nil, ErrEndOfStream
		}

		// Queue empty: reset data-available and take the status flag, the
		// device is drained below, outside the lock.
		p.events.ClearData()
		p.events.TakeStatus()
		p.mu.Unlock()

		if code, terminal := p.drainStatus(); terminal {
			// Frames may have been admitted while the lock was released.
			// Stop admission and let the loop hand them out before EOF.
			p.mu.Lock()
			if !p.ending {
				p.ending = true
				p.terminal = code
			}
			p.mu.Unlock()
			continue
		}

		if !blocking {
			return nil, ErrWouldBlock
		}

		p.mu.Lock()
		var aborted error
		p.events.Wait(func() bool {
			if abort == nil {
				return false
			}
			aborted = abort()
			return aborted != nil
		})
		p.mu.Unlock()

		if aborted != nil {
			return nil, aborted
		}
	}
}

// drainStatus consumes every pending device status code and reports the
// first terminal one. Codes after a terminal one are still drained.
func (p *Pipeline) drainStatus() (StatusCode, bool) {
	var (
		first    StatusCode
		terminal bool
	)
	for _, code := range p.dev.DrainStatus() {
		slog.Debug("device-capture: device status",
			"device", p.cfg.Name,
			"status", code.String(),
		)
		if code.IsTerminal() && !terminal {
			first, terminal = code, true
		}
	}
	return first, terminal
}

// Request applies a play/pause/toggle request with synchronous device
// confirmation. On ErrControlRejected the run state is unchanged.
func (p *Pipeline) Request(req ControlRequest) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := p.control.Request(req); err != nil {
		if errors.Is(err, control.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// State returns the confirmed run state.
func (p *Pipeline) State() RunState {
	if p.control == nil {
		return StateStopped
	}
	return p.control.State()
}

// Stats returns a snapshot of pipeline statistics.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		ID:       p.id,
		Device:   p.cfg.Name,
		State:    p.State(),
		Rejected: p.rejected.Load(),
		Read:     p.readCount.Load(),
		Uptime:   time.Since(p.started),
	}

	p.mu.Lock()
	s.EOF = p.eof
	s.TerminalStatus = p.terminal
	s.Closed = p.closed
	if p.queue != nil {
		s.QueuedPackets = p.queue.Len()
	}
	s.Streams = make([]StreamStats, len(p.streams))
	for i, st := range p.streams {
		ss := StreamStats{
			Index:       i,
			FullnessPct: st.lastFullness,
			Admitted:    st.admitted,
			Dropped:     st.dropped,
		}
		if i < len(p.cfg.StreamNames) {
			ss.Name = p.cfg.StreamNames[i]
		}
		if p.queue != nil {
			ss.BufferedBytes = p.queue.Buffered(i)
		}
		s.Admitted += st.admitted
		s.Dropped += st.dropped
		s.Streams[i] = ss
	}
	p.mu.Unlock()

	if total := s.Admitted + s.Dropped; total > 0 {
		s.DropRate = float64(s.Dropped) / float64(total) * 100
	}
	return s
}

// Close tears the pipeline down. Idempotent; the first call's error is
// returned by every later call.
//
// Teardown order:
//  1. Stop the control plane (device Stop), then fence producers so
//     Deliver and SignalStatus become no-ops
//  2. Release the device
//  3. Drain every queued packet back to the buffer pool
//  4. Close the event channel, waking any blocked reader with ErrClosed
func (p *Pipeline) Close() error {
	if p.shutdown.Done() {
		return p.shutdown.Run()
	}

	err := p.shutdown.Run()
	if err != nil {
		slog.Warn("device-capture: pipeline closed with errors", "id", p.id, "error", err)
	} else {
		slog.Info("device-capture: pipeline closed", "id", p.id, "device", p.cfg.Name)
	}
	return err
}

func (p *Pipeline) fence() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) drain() error {
	p.mu.Lock()
	n := p.queue.Drain((*queue.Entry).Release)
	p.mu.Unlock()

	if n > 0 {
		slog.Debug("device-capture: released queued packets", "count", n)
	}
	return nil
}

func (p *Pipeline) closeEvents() error {
	p.mu.Lock()
	p.events.Close()
	p.mu.Unlock()

	p.events.Notify()
	return nil
}
