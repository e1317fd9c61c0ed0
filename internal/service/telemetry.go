package service

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/telemetry"
)

// NewTelemetry returns the collector selected by cfg and the handler serving
// its metrics. The handler is nil when telemetry is disabled. A nil registry
// selects the process-wide default registry.
func NewTelemetry(cfg config.TelemetryConfig, reg *prometheus.Registry) (telemetry.Collector, http.Handler, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "prometheus":
	default:
		return telemetry.Noop(), nil, fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
	if reg == nil {
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return telemetry.Noop(), nil, err
		}
		return collector, promhttp.Handler(), nil
	}
	collector, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		return telemetry.Noop(), nil, err
	}
	return collector, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
