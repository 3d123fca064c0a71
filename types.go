package devicecapture

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/admission"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/queue"
)

// Packet is one captured frame handed to the reader.
// Re-exported from internal/queue; see internal/queue/entry.go for the
// ownership contract. The reader calls Release when done with Data.
type Packet = queue.Entry

// RunState is the pipeline (and device) run state.
type RunState = control.State

const (
	// StateStopped is the state before start and the terminal teardown state
	StateStopped = control.Stopped
	// StateRunning means the device is producing frames
	StateRunning = control.Running
	// StatePaused means the device is attached but idle
	StatePaused = control.Paused
)

// ControlRequest is an application play/pause request.
type ControlRequest = control.Request

const (
	// RequestPlay asks for Running
	RequestPlay = control.Play
	// RequestPause asks for Paused
	RequestPause = control.Pause
	// RequestToggle flips Running and Paused
	RequestToggle = control.Toggle
)

// ParseControlRequest converts "play", "pause" or "toggle" into a ControlRequest.
func ParseControlRequest(s string) (ControlRequest, error) {
	return control.ParseRequest(s)
}

// CommandStatus is the device's immediate reply to Run or Pause.
type CommandStatus = control.Reply

const (
	// CommandDone means the transition completed
	CommandDone = control.Done
	// CommandPending means the transition is in progress
	CommandPending = control.Pending
)

// CounterScope selects whether the admission schedule rotates per arrival on
// any stream (shared) or independently per stream.
type CounterScope = admission.CounterScope

const (
	// SharedCounter advances one rotation for all streams
	SharedCounter = admission.SharedCounter
	// PerStreamCounter keeps a rotation per stream
	PerStreamCounter = admission.PerStreamCounter
)

const (
	// DefaultStreams covers a dual video + audio source
	DefaultStreams = 2

	// DefaultMaxBufferBytes is the per-stream real-time buffer size used when
	// none is configured (3041280 bytes, ~3 MB).
	DefaultMaxBufferBytes = 3041280
)

// DefaultDropSchedule returns the standard drop-severity rotation {62, 75, 87, 100}.
func DefaultDropSchedule() []uint8 {
	s := make([]uint8, len(admission.DefaultSchedule))
	copy(s, admission.DefaultSchedule)
	return s
}

// Config contains configuration for a capture pipeline
type Config struct {
	// Name identifies the device in logs (e.g. "video=Integrated Camera")
	Name string

	// Streams is the number of logical streams (default 2)
	Streams int

	// StreamNames optionally labels each stream in logs and stats ("video", "audio")
	StreamNames []string

	// MaxBufferBytes is the per-stream buffered-bytes limit driving admission.
	// 0 selects DefaultMaxBufferBytes; negative is invalid.
	MaxBufferBytes int64

	// DropSchedule is the cyclic threshold rotation in percent (default {62,75,87,100})
	DropSchedule []uint8

	// CounterScope selects shared or per-stream schedule rotation (default shared)
	CounterScope CounterScope
}

// StreamStats contains per-stream counters
type StreamStats struct {
	// Index is the stream index
	Index int
	// Name is the configured stream label, if any
	Name string
	// BufferedBytes is the sum of payload sizes currently queued for this stream
	BufferedBytes uint64
	// FullnessPct is the fullness computed at the last arrival (may exceed 100)
	FullnessPct uint64
	// Admitted is the number of frames queued
	Admitted uint64
	// Dropped is the number of frames shed by admission
	Dropped uint64
}

// Stats contains a snapshot of pipeline statistics
type Stats struct {
	// ID is the pipeline instance identifier
	ID string
	// Device is the configured device name
	Device string
	// State is the confirmed run state
	State RunState
	// EOF is true once a terminal device status has been observed
	EOF bool
	// TerminalStatus is the first terminal status seen (StatusNormal if none)
	TerminalStatus StatusCode
	// Closed is true after Close
	Closed bool
	// QueuedPackets is the number of packets waiting to be read
	QueuedPackets int
	// Admitted is the total number of frames queued, all streams
	Admitted uint64
	// Dropped is the total number of frames shed by admission, all streams
	Dropped uint64
	// Rejected counts deliveries with an invalid stream index or empty buffer
	Rejected uint64
	// DropRate is the percentage of valid deliveries shed (0-100)
	DropRate float64
	// Read is the number of packets handed to the reader
	Read uint64
	// Uptime is the time since the pipeline was created
	Uptime time.Duration
	// Streams holds per-stream counters, indexed by stream
	Streams []StreamStats
}
