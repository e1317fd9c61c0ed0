package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorRecordsReadsAndWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.ObserveRead(true, 20*time.Millisecond)
	collector.ObserveRead(false, time.Second)
	collector.ObserveRead(true, 10*time.Millisecond)
	collector.IncModeWrite("away", true)
	collector.IncCoalesced()
	collector.SetStatusValid(true)
	collector.SetFastRefreshRemaining(4)

	require.Equal(t, 2.0, testutil.ToFloat64(collector.reads.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.reads.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.writes.WithLabelValues("away", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.coalesced))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.statusValid))
	require.Equal(t, 4.0, testutil.ToFloat64(collector.fastRefresh))

	families, err := reg.Gather()
	require.NoError(t, err)
	var histogram *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "infodisplay_box_read_duration_seconds" {
			histogram = family
		}
	}
	require.NotNil(t, histogram)
	require.Equal(t, uint64(3), histogram.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestPrometheusCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	second, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	first.IncHotReload("/etc/infodisplay/config.yaml")
	second.IncHotReload("/etc/infodisplay/config.yaml")
	require.Equal(t, 2.0, testutil.ToFloat64(second.hotReloads.WithLabelValues("/etc/infodisplay/config.yaml")))
}

func TestNoopCollectorIgnoresCalls(t *testing.T) {
	collector := Noop()
	collector.ObserveRead(true, time.Millisecond)
	collector.SetDisplayOn(true)
}
