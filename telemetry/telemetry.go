package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the runtime.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the communicator loop and the display controller.
type Collector interface {
	IncHotReload(file string)
	ObserveRead(success bool, duration time.Duration)
	IncModeWrite(mode string, success bool)
	IncCoalesced()
	SetStatusValid(valid bool)
	SetFastRefreshRemaining(remaining int)
	SetDisplayOn(on bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)             {}
func (noopCollector) ObserveRead(bool, time.Duration) {}
func (noopCollector) IncModeWrite(string, bool)       {}
func (noopCollector) IncCoalesced()                   {}
func (noopCollector) SetStatusValid(bool)             {}
func (noopCollector) SetFastRefreshRemaining(int)     {}
func (noopCollector) SetDisplayOn(bool)               {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads   *prometheus.CounterVec
	reads        *prometheus.CounterVec
	readDuration prometheus.Histogram
	writes       *prometheus.CounterVec
	coalesced    prometheus.Counter
	statusValid  prometheus.Gauge
	fastRefresh  prometheus.Gauge
	displayOn    prometheus.Gauge
}

var registerLock sync.Mutex

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics that are already registered (for example after a hot reload) are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerLock.Lock()
	defer registerLock.Unlock()

	hotReloads, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infodisplay_config_hot_reload_total",
		Help: "Number of hot reload operations triggered per configuration source file.",
	}, []string{"file"}))
	if err != nil {
		return nil, err
	}
	reads, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infodisplay_box_reads_total",
		Help: "Status reads performed against the automation box by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	readDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "infodisplay_box_read_duration_seconds",
		Help:    "Duration of status reads against the automation box.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}))
	if err != nil {
		return nil, err
	}
	writes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infodisplay_box_writes_total",
		Help: "House mode writes sent to the automation box by mode and result.",
	}, []string{"mode", "result"}))
	if err != nil {
		return nil, err
	}
	coalesced, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "infodisplay_mode_requests_coalesced_total",
		Help: "Mode requests replaced by a newer request before they were applied.",
	}))
	if err != nil {
		return nil, err
	}
	statusValid, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infodisplay_status_valid",
		Help: "1 when the cached box status comes from a successful read.",
	}))
	if err != nil {
		return nil, err
	}
	fastRefresh, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infodisplay_fast_refresh_remaining",
		Help: "Accelerated polls left after the last mode change.",
	}))
	if err != nil {
		return nil, err
	}
	displayOn, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infodisplay_display_on",
		Help: "1 while the panel display is powered.",
	}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		hotReloads:   hotReloads,
		reads:        reads,
		readDuration: readDuration,
		writes:       writes,
		coalesced:    coalesced,
		statusValid:  statusValid,
		fastRefresh:  fastRefresh,
		displayOn:    displayOn,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// ObserveRead records the outcome and duration of a status read.
func (p *PrometheusCollector) ObserveRead(success bool, duration time.Duration) {
	if p == nil {
		return
	}
	p.reads.WithLabelValues(result(success)).Inc()
	p.readDuration.Observe(duration.Seconds())
}

// IncModeWrite counts a mode write attempt.
func (p *PrometheusCollector) IncModeWrite(mode string, success bool) {
	if p == nil {
		return
	}
	p.writes.WithLabelValues(mode, result(success)).Inc()
}

// IncCoalesced counts a pending mode request that was overwritten.
func (p *PrometheusCollector) IncCoalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

// SetStatusValid mirrors the validity of the cached snapshot.
func (p *PrometheusCollector) SetStatusValid(valid bool) {
	if p == nil {
		return
	}
	p.statusValid.Set(boolValue(valid))
}

// SetFastRefreshRemaining exposes the accelerated poll budget.
func (p *PrometheusCollector) SetFastRefreshRemaining(remaining int) {
	if p == nil {
		return
	}
	p.fastRefresh.Set(float64(remaining))
}

// SetDisplayOn mirrors the display power state.
func (p *PrometheusCollector) SetDisplayOn(on bool) {
	if p == nil {
		return
	}
	p.displayOn.Set(boolValue(on))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
