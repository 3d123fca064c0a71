package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

type staticSource devicecapture.Stats

func (s staticSource) Stats() devicecapture.Stats { return devicecapture.Stats(s) }

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestCollector(t *testing.T) {
	src := staticSource{
		State:          devicecapture.StatePaused,
		EOF:            true,
		TerminalStatus: devicecapture.StatusDeviceLost,
		QueuedPackets:  3,
		Read:           40,
		Rejected:       2,
		Uptime:         90 * time.Second,
		Streams: []devicecapture.StreamStats{
			{Index: 0, Name: "video", Admitted: 30, Dropped: 5, BufferedBytes: 4096, FullnessPct: 71},
			{Index: 1, Name: "audio", Admitted: 13, Dropped: 0, BufferedBytes: 512, FullnessPct: 2},
		},
	}

	families := gather(t, NewCollector(src, "cam0"))

	dropped := families["device_capture_packets_dropped_total"]
	require.NotNil(t, dropped)
	require.Len(t, dropped.GetMetric(), 2)
	for _, m := range dropped.GetMetric() {
		assert.Equal(t, "cam0", labelValue(m, "device"))
		switch labelValue(m, "name") {
		case "video":
			assert.Equal(t, 5.0, m.GetCounter().GetValue())
		case "audio":
			assert.Equal(t, 0.0, m.GetCounter().GetValue())
		default:
			t.Errorf("unexpected stream label %q", labelValue(m, "name"))
		}
	}

	buffered := families["device_capture_buffered_bytes"]
	require.NotNil(t, buffered)
	assert.Equal(t, 4096.0, buffered.GetMetric()[0].GetGauge().GetValue())

	assert.Equal(t, 3.0, families["device_capture_queued_packets"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 40.0, families["device_capture_packets_read_total"].GetMetric()[0].GetCounter().GetValue())

	eof := families["device_capture_end_of_stream"].GetMetric()[0]
	assert.Equal(t, 1.0, eof.GetGauge().GetValue())
	assert.Equal(t, "device-lost", labelValue(eof, "status"))

	active := map[string]float64{}
	for _, m := range families["device_capture_run_state"].GetMetric() {
		active[labelValue(m, "state")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"stopped": 0, "running": 0, "paused": 1}, active)

	assert.Equal(t, 90.0, families["device_capture_uptime_seconds"].GetMetric()[0].GetGauge().GetValue())
}
