// Package teardown releases pipeline resources in a fixed phase order,
// whatever subset of them was actually acquired.
//
// Resources register a release step as they are acquired. Run executes the
// phases in order and, within a phase, the steps in reverse registration
// (LIFO) order, so a construction that failed halfway releases exactly what
// it acquired, in reverse acquisition order.
package teardown

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Phase orders the release steps.
type Phase int

const (
	// PhaseStop halts the producer (control plane → Stopped)
	PhaseStop Phase = iota
	// PhaseRelease releases device/engine handles
	PhaseRelease
	// PhaseDrain frees every entry still queued
	PhaseDrain
	// PhaseClose closes the lock-protected signals and wakes any reader
	PhaseClose

	numPhases
)

// String returns a human-readable representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseStop:
		return "stop"
	case PhaseRelease:
		return "release"
	case PhaseDrain:
		return "drain"
	case PhaseClose:
		return "close"
	default:
		return "unknown"
	}
}

type step struct {
	name string
	fn   func() error
}

// Sequencer holds the registered release steps. Safe for concurrent use.
type Sequencer struct {
	mu     sync.Mutex
	steps  [numPhases][]step
	done   bool
	result error
}

// Add registers a release step. A nil fn is ignored. Steps added after Run
// has completed are executed immediately.
func (s *Sequencer) Add(phase Phase, name string, fn func() error) {
	if fn == nil {
		return
	}
	if phase < 0 || phase >= numPhases {
		panic(fmt.Sprintf("teardown: invalid phase %d", phase))
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		if err := fn(); err != nil {
			slog.Warn("teardown: late release step failed", "step", name, "error", err)
		}
		return
	}
	s.steps[phase] = append(s.steps[phase], step{name: name, fn: fn})
	s.mu.Unlock()
}

// Run executes every registered step once. Later calls return the first
// call's result without doing anything.
//
// A failing step does not stop the sequence; all errors are joined.
func (s *Sequencer) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return s.result
	}
	s.done = true

	var errs []error
	for phase := Phase(0); phase < numPhases; phase++ {
		steps := s.steps[phase]
		for i := len(steps) - 1; i >= 0; i-- {
			if err := steps[i].fn(); err != nil {
				slog.Warn("teardown: release step failed",
					"phase", phase.String(),
					"step", steps[i].name,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("%s/%s: %w", phase, steps[i].name, err))
			}
		}
		s.steps[phase] = nil
	}

	s.result = errors.Join(errs...)
	return s.result
}

// Done reports whether Run has been called.
func (s *Sequencer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
