package remote

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

type fakeController struct {
	state  devicecapture.RunState
	err    error
	called []devicecapture.ControlRequest
}

func (f *fakeController) Request(req devicecapture.ControlRequest) error {
	f.called = append(f.called, req)
	if f.err != nil {
		return f.err
	}
	switch req {
	case devicecapture.RequestPlay:
		f.state = devicecapture.StateRunning
	case devicecapture.RequestPause:
		f.state = devicecapture.StatePaused
	case devicecapture.RequestToggle:
		if f.state == devicecapture.StateRunning {
			f.state = devicecapture.StatePaused
		} else {
			f.state = devicecapture.StateRunning
		}
	}
	return nil
}

func (f *fakeController) State() devicecapture.RunState { return f.state }

func (f *fakeController) Stats() devicecapture.Stats {
	return devicecapture.Stats{ID: "abc", Device: "cam0", State: f.state, Admitted: 10, Dropped: 2}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name       string
		cmd        string
		err        error
		wantStatus string
		wantCalls  int
		wantState  devicecapture.RunState
	}{
		{"pause", "pause", nil, "paused", 1, devicecapture.StatePaused},
		{"resume alias", "resume", nil, "running", 1, devicecapture.StateRunning},
		{"toggle", "toggle", nil, "paused", 1, devicecapture.StatePaused},
		{"rejected", "pause", fmt.Errorf("wrap: %w", devicecapture.ErrControlRejected), "error", 1, devicecapture.StateRunning},
		{"closed", "play", devicecapture.ErrClosed, "error", 1, devicecapture.StateRunning},
		{"unknown", "reboot", nil, "error", 0, devicecapture.StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{state: devicecapture.StateRunning, err: tt.err}

			resp := Handle(ctrl, Command{Command: tt.cmd})

			assert.Equal(t, tt.cmd, resp.CommandAck)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, ctrl.called, tt.wantCalls)
			assert.Equal(t, tt.wantState, ctrl.state)
			if tt.wantStatus == "error" {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestHandle_RejectedReportsState(t *testing.T) {
	ctrl := &fakeController{state: devicecapture.StateRunning, err: devicecapture.ErrControlRejected}

	resp := Handle(ctrl, Command{Command: "pause"})

	require.Equal(t, "error", resp.Status)
	assert.Equal(t, true, resp.Data["rejected"])
	assert.Equal(t, "running", resp.Data["state"])
}

func TestHandle_GetStatus(t *testing.T) {
	ctrl := &fakeController{state: devicecapture.StatePaused}

	resp := Handle(ctrl, Command{Command: "get_status"})

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "get_status", resp.CommandAck)
	assert.Equal(t, "paused", resp.Data["state"])
	assert.Equal(t, uint64(2), resp.Data["dropped"])
	assert.Empty(t, ctrl.called)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"command":"toggle","params":{"source":"ui"}}`))
	require.NoError(t, err)
	assert.Equal(t, "toggle", cmd.Command)
	assert.Equal(t, "ui", cmd.Params["source"])

	_, err = DecodeCommand([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{"params":{}}`))
	assert.Error(t, err)
}

func TestEncodeResponse(t *testing.T) {
	payload, err := EncodeResponse(Response{CommandAck: "pause", Status: "paused"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "pause", decoded["command_ack"])
	assert.NotEmpty(t, decoded["timestamp"])
	assert.NotContains(t, decoded, "error")
}
