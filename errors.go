package devicecapture

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/control"
)

var (
	// ErrWouldBlock is returned by a non-blocking Read when no packet is queued
	// and the device has not reached a terminal condition.
	ErrWouldBlock = errors.New("device-capture: no packet available")

	// ErrEndOfStream is returned by Read once a terminal device status has been
	// observed, and by every Read after that.
	ErrEndOfStream = errors.New("device-capture: end of stream")

	// ErrClosed is returned by Read and Request after Close.
	ErrClosed = errors.New("device-capture: pipeline closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("device-capture: invalid configuration")

	// ErrControlRejected is returned by Request when the device does not
	// confirm a run/pause transition. The run state is unchanged.
	ErrControlRejected = control.ErrRejected

	// ErrUnsupportedRequest is returned for unknown control requests.
	ErrUnsupportedRequest = control.ErrUnsupported
)
