package gstdevice

import (
	"testing"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(Config{Launch: "videotestsrc ! appsink name=sink"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestRunState(t *testing.T) {
	tests := []struct {
		state gst.State
		want  devicecapture.RunState
	}{
		{gst.StatePlaying, devicecapture.StateRunning},
		{gst.StatePaused, devicecapture.StatePaused},
		{gst.StateReady, devicecapture.StateStopped},
		{gst.StateNull, devicecapture.StateStopped},
	}

	for _, tt := range tests {
		if got := runState(tt.state); got != tt.want {
			t.Errorf("runState(%v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestAwaitCommitted_AsyncTransition(t *testing.T) {
	d := newTestDevice(t)

	// Run issued: PLAYING requested, the bus commits it in steps
	d.mu.Lock()
	d.target = gst.StatePlaying
	d.mu.Unlock()

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.commit(gst.StateReady)
		time.Sleep(10 * time.Millisecond)
		d.commit(gst.StatePaused)
		time.Sleep(10 * time.Millisecond)
		d.commit(gst.StatePlaying)
	}()

	got := d.awaitCommitted(5 * time.Second)
	if got != gst.StatePlaying {
		t.Fatalf("awaitCommitted() = %v, want PLAYING", got)
	}
	if rs := runState(got); rs != devicecapture.StateRunning {
		t.Errorf("run state = %v, want running", rs)
	}
}

func TestAwaitCommitted_AlreadyCommitted(t *testing.T) {
	d := newTestDevice(t)
	d.commit(gst.StatePaused)

	d.mu.Lock()
	d.target = gst.StatePaused
	d.mu.Unlock()

	start := time.Now()
	if got := d.awaitCommitted(5 * time.Second); got != gst.StatePaused {
		t.Errorf("awaitCommitted() = %v, want PAUSED", got)
	}
	if time.Since(start) > time.Second {
		t.Error("awaitCommitted() waited for a committed state")
	}
}

func TestAwaitCommitted_Timeout(t *testing.T) {
	d := newTestDevice(t)

	d.mu.Lock()
	d.target = gst.StatePlaying
	d.mu.Unlock()
	d.commit(gst.StateReady)

	if got := d.awaitCommitted(20 * time.Millisecond); got != gst.StateReady {
		t.Errorf("awaitCommitted() = %v, want READY (last committed)", got)
	}
}

func TestState_NotAttached(t *testing.T) {
	d := newTestDevice(t)
	if d.cfg.StateTimeout != 5*time.Second {
		t.Errorf("StateTimeout = %v, want default 5s", d.cfg.StateTimeout)
	}

	state, err := d.State()
	if err == nil {
		t.Error("State() on unattached device succeeded")
	}
	if state != devicecapture.StateStopped {
		t.Errorf("State() = %v, want stopped", state)
	}
}
