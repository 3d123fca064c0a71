// Package control implements the run/pause state machine that mediates
// between application requests and the device's actual play state.
//
// States:
//
//	Stopped ──Start──▶ Running ◀──Play/Toggle── Paused
//	                      │ ──────Pause/Toggle──▶   │
//	                      └────────Shutdown─────────┴──▶ Stopped (terminal)
//
// Every transition is confirmed synchronously by the device before the new
// state becomes visible. A rejected confirmation leaves the state unchanged.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the run state of the capture pipeline (and of the device).
type State int

const (
	// Stopped is the state before Start and the terminal state after Shutdown
	Stopped State = iota
	// Running means the device is producing frames
	Running
	// Paused means the device is attached but not producing frames
	Paused
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Request is an application-level control request.
type Request int

const (
	// Play asks for Running
	Play Request = iota
	// Pause asks for Paused
	Pause
	// Toggle flips Running and Paused
	Toggle
)

// String returns a human-readable representation of the request
func (r Request) String() string {
	switch r {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Toggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// ParseRequest converts a command name ("play", "pause", "toggle") into a Request.
func ParseRequest(s string) (Request, error) {
	switch s {
	case "play", "run", "resume":
		return Play, nil
	case "pause":
		return Pause, nil
	case "toggle":
		return Toggle, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// Reply is the device's immediate answer to a run/pause command.
type Reply int

const (
	// Done means the device completed the transition
	Done Reply = iota
	// Pending means the transition is in progress; the device state must be
	// polled once more before the transition is accepted
	Pending
)

// Commander is the device-side command set used by the plane.
type Commander interface {
	Run() (Reply, error)
	Pause() (Reply, error)
	State() (State, error)
	Stop() error
}

var (
	// ErrRejected is returned when the device does not confirm a transition
	ErrRejected = errors.New("control: transition not confirmed by device")
	// ErrStopped is returned for requests after shutdown or before start
	ErrStopped = errors.New("control: pipeline is stopped")
	// ErrUnsupported is returned for unknown requests
	ErrUnsupported = errors.New("control: unsupported request")
)

// Plane is the control state machine. Safe for concurrent use.
type Plane struct {
	mu       sync.Mutex
	dev      Commander
	state    State
	started  bool
	shutdown bool
}

// New creates a plane in the Stopped state.
func New(dev Commander) *Plane {
	return &Plane{dev: dev}
}

// State returns the confirmed state.
func (p *Plane) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start issues the initial run command. Only valid once, from Stopped.
func (p *Plane) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrStopped
	}
	if p.started {
		return fmt.Errorf("control: already started")
	}

	if err := p.transition(Running); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Request applies an application request.
//
// Algorithm:
//  1. Compute the effective target from the current state and req
//  2. If target == current, return nil (no device command)
//  3. Issue Run or Pause and confirm it (one follow-up state poll if pending)
//  4. On confirmation, commit the new state; otherwise return ErrRejected
//     with the state unchanged
func (p *Plane) Request(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Stopped {
		return ErrStopped
	}

	var target State
	switch req {
	case Play:
		target = Running
	case Pause:
		target = Paused
	case Toggle:
		if p.state == Running {
			target = Paused
		} else {
			target = Running
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupported, req)
	}

	if target == p.state {
		return nil
	}

	return p.transition(target)
}

// Shutdown stops the device if it is running or paused and moves to the
// terminal Stopped state. The state is Stopped afterwards even if the
// device's Stop fails. Idempotent.
func (p *Plane) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return nil
	}
	p.shutdown = true

	if p.state == Stopped {
		return nil
	}

	prev := p.state
	p.state = Stopped

	if err := p.dev.Stop(); err != nil {
		slog.Warn("control: device stop failed during shutdown",
			"from", prev.String(),
			"error", err,
		)
		return fmt.Errorf("control: stop device: %w", err)
	}

	slog.Debug("control: device stopped", "from", prev.String())
	return nil
}

// transition issues the command for target and commits on confirmation.
// Caller holds p.mu.
func (p *Plane) transition(target State) error {
	var (
		reply Reply
		err   error
	)
	if target == Running {
		reply, err = p.dev.Run()
	} else {
		reply, err = p.dev.Pause()
	}

	if err == nil && reply == Pending {
		var reported State
		reported, err = p.dev.State()
		if err == nil && reported != target {
			err = fmt.Errorf("device reports %s", reported)
		}
	}

	if err != nil {
		slog.Error("control: could not run/pause device",
			"from", p.state.String(),
			"to", target.String(),
			"error", err,
		)
		return fmt.Errorf("%w: %s → %s: %w", ErrRejected, p.state, target, err)
	}

	slog.Info("control: state changed",
		"from", p.state.String(),
		"to", target.String(),
	)
	p.state = target
	return nil
}
