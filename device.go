package devicecapture

// StatusCode is a device-originated status event.
type StatusCode int

const (
	// StatusNormal is any non-terminal event (state change, clock change, ...)
	StatusNormal StatusCode = iota
	// StatusCompletion means the source reached its end
	StatusCompletion
	// StatusDeviceLost means the device disappeared (unplugged, network gone)
	StatusDeviceLost
	// StatusErrorAbort means the device aborted on an error
	StatusErrorAbort
)

// String returns a human-readable representation of the status code
func (c StatusCode) String() string {
	switch c {
	case StatusNormal:
		return "normal"
	case StatusCompletion:
		return "completion"
	case StatusDeviceLost:
		return "device-lost"
	case StatusErrorAbort:
		return "error-abort"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further data will arrive after c.
func (c StatusCode) IsTerminal() bool {
	switch c {
	case StatusCompletion, StatusDeviceLost, StatusErrorAbort:
		return true
	default:
		return false
	}
}

// Sink is the producer-facing side of a Pipeline, handed to Device.Attach.
//
// Both methods may be called from any goroutine (typically a driver or
// engine thread) and return quickly; neither blocks on the consumer.
type Sink interface {
	// Deliver hands over one frame. buf is copied before Deliver returns.
	Deliver(stream int, buf []byte, pts int64)

	// SignalStatus tells the pipeline that status codes are pending in the
	// device's queue (see Device.DrainStatus).
	SignalStatus()
}

// Device is the external capture layer: it produces frames, reports status
// events, and obeys run/pause/stop commands.
//
// Implementations must guarantee:
//   - Attach starts routing frames to sink; frames may arrive before Run returns
//   - Run/Pause reply CommandPending when the transition is still in progress
//   - State reports the device's actual run state
//   - DrainStatus returns and removes every pending status code; safe to call
//     concurrently with the producer
//   - Release is safe after a failed or missing Attach, and idempotent
//   - After Stop returns, Deliver is no longer called
type Device interface {
	Attach(sink Sink) error
	Run() (CommandStatus, error)
	Pause() (CommandStatus, error)
	State() (RunState, error)
	Stop() error
	DrainStatus() []StatusCode
	Release() error
}
