package main

import (
	"sync/atomic"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// livePipeline points at the pipeline currently open. Remote control and
// metrics keep one handle across device reopens.
type livePipeline struct {
	p atomic.Pointer[devicecapture.Pipeline]
}

func (l *livePipeline) Store(p *devicecapture.Pipeline) {
	l.p.Store(p)
}

func (l *livePipeline) Request(req devicecapture.ControlRequest) error {
	p := l.p.Load()
	if p == nil {
		return devicecapture.ErrClosed
	}
	return p.Request(req)
}

func (l *livePipeline) State() devicecapture.RunState {
	p := l.p.Load()
	if p == nil {
		return devicecapture.StateStopped
	}
	return p.State()
}

func (l *livePipeline) Stats() devicecapture.Stats {
	p := l.p.Load()
	if p == nil {
		return devicecapture.Stats{Closed: true}
	}
	return p.Stats()
}
