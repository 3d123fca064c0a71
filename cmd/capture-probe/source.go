package main

import (
	"fmt"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/gstdevice"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/simdevice"
)

// openDevice creates the configured capture device
func openDevice(cfg *config.Config) (devicecapture.Device, error) {
	switch cfg.Source.Kind {
	case "gst":
		return gstdevice.New(gstdevice.Config{
			Launch:   cfg.Source.Launch,
			SinkName: cfg.Source.SinkName,
		})
	case "sim":
		return simdevice.New(simdevice.Config{
			Name:      cfg.Capture.Name,
			Streams:   cfg.Capture.Streams,
			FrameSize: cfg.Source.Sim.FrameSize,
			Interval:  cfg.Source.Sim.Interval(),
			Frames:    cfg.Source.Sim.Frames,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// openPipeline opens a device and a pipeline over it. New releases the device
// itself when it fails after Attach.
func openPipeline(cfg *config.Config) (*devicecapture.Pipeline, error) {
	dev, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}
	p, err := devicecapture.New(cfg.Pipeline(), dev)
	if err != nil {
		return nil, fmt.Errorf("open %s device: %w", cfg.Source.Kind, err)
	}
	return p, nil
}
