// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/envmon"
)

// Collector turns contract events into Prometheus metrics. It is registered
// on its own registry so several monitors can run in one process.
type Collector struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	pending   prometheus.Gauge
	refunded  prometheus.Counter
	withdrawn prometheus.Counter
	lastLevel *prometheus.GaugeVec
	calls     *prometheus.CounterVec
	paused    prometheus.Gauge
}

var _ envmon.Listener = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envmon",
			Name:      "events_total",
			Help:      "Contract events by type.",
		}, []string{"type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envmon",
			Name:      "alerts_total",
			Help:      "Threshold alerts by pollutant category.",
		}, []string{"category"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "envmon",
			Name:      "reports_pending",
			Help:      "Reports waiting for decryption.",
		}),
		refunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "envmon",
			Name:      "refunded_units_total",
			Help:      "Stake refunded to reporters in whole units.",
		}),
		withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "envmon",
			Name:      "fees_withdrawn_units_total",
			Help:      "Protocol fees withdrawn in whole units.",
		}),
		lastLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "envmon",
			Name:      "station_last_reading",
			Help:      "Last noised reading per station.",
		}, []string{"station"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envmon",
			Name:      "calls_total",
			Help:      "Contract calls by method and error kind.",
		}, []string{"method", "result"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "envmon",
			Name:      "paused",
			Help:      "1 while report submission is paused.",
		}),
	}
	c.reg.MustRegister(
		c.events, c.alerts, c.pending, c.refunded, c.withdrawn,
		c.lastLevel, c.calls, c.paused,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// OnEvent counts events. Gauges are derived from state in Sync.
func (c *Collector) OnEvent(ev envmon.Event) {
	c.events.WithLabelValues(ev.Type.String()).Inc()
	switch ev.Type {
	case envmon.EventAlertTriggered:
		c.alerts.WithLabelValues(strconv.FormatUint(uint64(ev.Category), 10)).Inc()
	case envmon.EventRefundClaimed:
		c.refunded.Add(units(ev.Amount))
	case envmon.EventFeesWithdrawn:
		c.withdrawn.Add(units(ev.Amount))
	}
}

// ObserveCall counts a contract call outcome by error kind.
func (c *Collector) ObserveCall(method string, err error) {
	result := "ok"
	if err != nil {
		result = envmon.KindOf(err).String()
	}
	c.calls.WithLabelValues(method, result).Inc()
}

// Sync sets gauges from the current contract state.
func (c *Collector) Sync(m *envmon.Monitor) {
	var n int
	for _, r := range m.Reports {
		if r.State == envmon.Pending {
			n++
		}
	}
	c.pending.Set(float64(n))
	c.paused.Set(0)
	if m.Paused {
		c.paused.Set(1)
	}
	for id, s := range m.Stations {
		if s.LastUpdateAt > 0 {
			c.lastLevel.WithLabelValues(strconv.FormatUint(uint64(id), 10)).Set(float64(s.LastReading))
		}
	}
}

func units(m chain.Money) float64 {
	return float64(m) / float64(chain.Unit)
}
