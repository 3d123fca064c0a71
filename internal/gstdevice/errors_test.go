package gstdevice

import (
	"testing"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		debug      string
		want       ErrorCategory
		wantStatus devicecapture.StatusCode
	}{
		{
			name:       "v4l2 device unplugged",
			message:    "Could not read from resource.",
			debug:      "v4l2src0: system error: No such device",
			want:       ErrCategoryResource,
			wantStatus: devicecapture.StatusDeviceLost,
		},
		{
			name:       "device busy",
			message:    "Device '/dev/video0' is busy",
			want:       ErrCategoryResource,
			wantStatus: devicecapture.StatusDeviceLost,
		},
		{
			name:       "rtsp timeout",
			message:    "Could not connect to server",
			debug:      "gstrtspsrc.c: Timeout while waiting",
			want:       ErrCategoryNetwork,
			wantStatus: devicecapture.StatusDeviceLost,
		},
		{
			name:       "caps negotiation",
			message:    "Internal data stream error.",
			debug:      "streaming stopped, reason not-negotiated (-4)",
			want:       ErrCategoryCodec,
			wantStatus: devicecapture.StatusErrorAbort,
		},
		{
			name:       "auth",
			message:    "Unauthorized",
			debug:      "401 response",
			want:       ErrCategoryAuth,
			wantStatus: devicecapture.StatusErrorAbort,
		},
		{
			name:       "unknown",
			message:    "something odd happened",
			want:       ErrCategoryUnknown,
			wantStatus: devicecapture.StatusErrorAbort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message, tt.debug)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
			if status := got.Status(); status != tt.wantStatus {
				t.Errorf("Status() = %v, want %v", status, tt.wantStatus)
			}
			if !got.Status().IsTerminal() {
				t.Errorf("error category %v maps to a non-terminal status", got)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without launch description succeeded")
	}
	if _, err := New(Config{Launch: "videotestsrc ! appsink", Stream: -1}); err == nil {
		t.Error("New() with negative stream succeeded")
	}

	d, err := New(Config{Launch: "videotestsrc ! appsink name=sink"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.cfg.SinkName != "sink" {
		t.Errorf("SinkName = %q, want default", d.cfg.SinkName)
	}

	// Never attached: release is a no-op and control commands fail cleanly
	if err := d.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := d.Run(); err == nil {
		t.Error("Run() on unattached device succeeded")
	}
}
