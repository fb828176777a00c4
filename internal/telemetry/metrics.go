// Package telemetry exposes run health over HTTP: prometheus metrics and
// a liveness endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the run counters and gauges the live loop maintains.
type Metrics struct {
	Iterations     prometheus.Counter
	Signals        *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	PortfolioValue prometheus.Gauge
	FearGreed      prometheus.Gauge
	OpenLots       prometheus.Gauge
}

// NewMetrics registers everything on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fearproto",
			Name:      "iterations_total",
			Help:      "Completed live-loop iterations.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fearproto",
			Name:      "signals_total",
			Help:      "Strategy signals by action.",
		}, []string{"action"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fearproto",
			Name:      "orders_total",
			Help:      "Order results by status.",
		}, []string{"status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fearproto",
			Name:      "errors_total",
			Help:      "Iteration failures by kind.",
		}, []string{"kind"}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fearproto",
			Name:      "portfolio_value_usd",
			Help:      "Mark-to-market portfolio value.",
		}),
		FearGreed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fearproto",
			Name:      "fear_greed_index",
			Help:      "Latest fear/greed reading.",
		}),
		OpenLots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fearproto",
			Name:      "open_lots",
			Help:      "Open DCA lots.",
		}),
	}
	reg.MustRegister(m.Iterations, m.Signals, m.Orders, m.Errors,
		m.PortfolioValue, m.FearGreed, m.OpenLots)
	return m
}
