// Package remote exposes pipeline play/pause control over MQTT.
//
// Commands arrive as JSON on the control topic; every command is answered
// with a JSON Response on the status topic.
//
//	{"command": "pause"}
//	{"command_ack": "pause", "status": "paused", "data": {"state": "paused"}, "timestamp": "..."}
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Controller is the pipeline surface driven by remote commands.
type Controller interface {
	Request(req devicecapture.ControlRequest) error
	State() devicecapture.RunState
	Stats() devicecapture.Stats
}

// Topics names the MQTT topics used by the handler
type Topics struct {
	Control string
	Status  string
}

// Handler handles control plane commands
type Handler struct {
	client   mqtt.Client
	ctrl     Controller
	topics   Topics
	qos      byte
	commands chan Command
}

// NewHandler creates a new control plane handler
func NewHandler(client mqtt.Client, topics Topics, qos byte, ctrl Controller) *Handler {
	return &Handler{
		client:   client,
		ctrl:     ctrl,
		topics:   topics,
		qos:      qos,
		commands: make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx ends
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("remote: subscribing to control topic", "topic", h.topics.Control, "qos", h.qos)

	token := h.client.Subscribe(h.topics.Control, h.qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("remote: control subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("remote: control subscription failed: %w", err)
	}

	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes from the control topic
func (h *Handler) Stop() error {
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.topics.Control)
		token.WaitTimeout(2 * time.Second)
	}

	slog.Info("remote: control handler stopped")
	return nil
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := DecodeCommand(msg.Payload())
	if err != nil {
		slog.Error("remote: failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("remote: control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("remote: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(Handle(h.ctrl, cmd))
		}
	}
}

// PublishStatus publishes an unsolicited status report (e.g. on end-of-stream)
func (h *Handler) PublishStatus(reason string) {
	resp := statusResponse(h.ctrl)
	resp.CommandAck = reason
	h.sendResponse(resp)
}

func (h *Handler) sendResponse(resp Response) {
	payload, err := EncodeResponse(resp)
	if err != nil {
		slog.Error("remote: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.topics.Status, h.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("remote: response publish timeout", "topic", h.topics.Status)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("remote: failed to publish response", "error", err)
		return
	}

	slog.Debug("remote: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

// DecodeCommand parses a JSON command payload
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, err
	}
	if cmd.Command == "" {
		return Command{}, fmt.Errorf("missing command field")
	}
	return cmd, nil
}

// EncodeResponse stamps and marshals a response
func EncodeResponse(resp Response) ([]byte, error) {
	if resp.Timestamp == "" {
		resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(resp)
}

// Handle executes a command against ctrl
func Handle(ctrl Controller, cmd Command) Response {
	if cmd.Command == "get_status" {
		resp := statusResponse(ctrl)
		resp.CommandAck = cmd.Command
		return resp
	}

	resp := Response{CommandAck: cmd.Command}

	req, err := devicecapture.ParseControlRequest(cmd.Command)
	if err != nil {
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
		return resp
	}

	if err := ctrl.Request(req); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		switch {
		case errors.Is(err, devicecapture.ErrControlRejected):
			resp.Data = map[string]interface{}{"rejected": true, "state": ctrl.State().String()}
		case errors.Is(err, devicecapture.ErrClosed):
			resp.Data = map[string]interface{}{"closed": true}
		}
		return resp
	}

	state := ctrl.State()
	resp.Status = state.String()
	resp.Data = map[string]interface{}{"state": state.String()}
	return resp
}

func statusResponse(ctrl Controller) Response {
	s := ctrl.Stats()
	return Response{
		Status: "success",
		Data: map[string]interface{}{
			"id":              s.ID,
			"device":          s.Device,
			"state":           s.State.String(),
			"eof":             s.EOF,
			"terminal_status": s.TerminalStatus.String(),
			"queued_packets":  s.QueuedPackets,
			"admitted":        s.Admitted,
			"dropped":         s.Dropped,
			"drop_rate":       s.DropRate,
			"read":            s.Read,
			"uptime_s":        s.Uptime.Seconds(),
		},
	}
}
