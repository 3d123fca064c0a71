// Package metrics exports pipeline statistics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// StatsSource is anything that can snapshot pipeline stats.
type StatsSource interface {
	Stats() devicecapture.Stats
}

// Collector reads a fresh Stats snapshot on every scrape.
type Collector struct {
	src StatsSource

	admitted *prometheus.Desc
	dropped  *prometheus.Desc
	buffered *prometheus.Desc
	fullness *prometheus.Desc
	queued   *prometheus.Desc
	read     *prometheus.Desc
	rejected *prometheus.Desc
	eof      *prometheus.Desc
	state    *prometheus.Desc
	uptime   *prometheus.Desc
}

// NewCollector creates a collector for src. device is attached as a constant label.
func NewCollector(src StatsSource, device string) *Collector {
	constLabels := prometheus.Labels{"device": device}
	streamLabels := []string{"stream", "name"}

	return &Collector{
		src: src,
		admitted: prometheus.NewDesc(
			"device_capture_packets_admitted_total",
			"Frames admitted to the capture queue",
			streamLabels, constLabels,
		),
		dropped: prometheus.NewDesc(
			"device_capture_packets_dropped_total",
			"Frames shed by the admission schedule",
			streamLabels, constLabels,
		),
		buffered: prometheus.NewDesc(
			"device_capture_buffered_bytes",
			"Payload bytes currently queued",
			streamLabels, constLabels,
		),
		fullness: prometheus.NewDesc(
			"device_capture_fullness_percent",
			"Buffer fullness computed at the last arrival",
			streamLabels, constLabels,
		),
		queued: prometheus.NewDesc(
			"device_capture_queued_packets",
			"Packets waiting to be read",
			nil, constLabels,
		),
		read: prometheus.NewDesc(
			"device_capture_packets_read_total",
			"Packets handed to the reader",
			nil, constLabels,
		),
		rejected: prometheus.NewDesc(
			"device_capture_frames_rejected_total",
			"Deliveries with an invalid stream index or empty buffer",
			nil, constLabels,
		),
		eof: prometheus.NewDesc(
			"device_capture_end_of_stream",
			"1 once a terminal device status was observed",
			[]string{"status"}, constLabels,
		),
		state: prometheus.NewDesc(
			"device_capture_run_state",
			"Current run state (1 for the active state)",
			[]string{"state"}, constLabels,
		),
		uptime: prometheus.NewDesc(
			"device_capture_uptime_seconds",
			"Seconds since the pipeline was created",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.admitted
	ch <- c.dropped
	ch <- c.buffered
	ch <- c.fullness
	ch <- c.queued
	ch <- c.read
	ch <- c.rejected
	ch <- c.eof
	ch <- c.state
	ch <- c.uptime
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	for _, st := range s.Streams {
		idx := strconv.Itoa(st.Index)
		ch <- prometheus.MustNewConstMetric(c.admitted, prometheus.CounterValue, float64(st.Admitted), idx, st.Name)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.Dropped), idx, st.Name)
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(st.BufferedBytes), idx, st.Name)
		ch <- prometheus.MustNewConstMetric(c.fullness, prometheus.GaugeValue, float64(st.FullnessPct), idx, st.Name)
	}

	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.QueuedPackets))
	ch <- prometheus.MustNewConstMetric(c.read, prometheus.CounterValue, float64(s.Read))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))

	eof := 0.0
	if s.EOF {
		eof = 1
	}
	ch <- prometheus.MustNewConstMetric(c.eof, prometheus.GaugeValue, eof, s.TerminalStatus.String())

	for _, st := range []devicecapture.RunState{
		devicecapture.StateStopped,
		devicecapture.StateRunning,
		devicecapture.StatePaused,
	} {
		v := 0.0
		if s.State == st {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st.String())
	}

	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds())
}
