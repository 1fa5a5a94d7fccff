// Package metrics exposes Prometheus counters for notification processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// Metrics groups the collectors the gateway reports.
type Metrics struct {
	Events         *prometheus.CounterVec
	Results        *prometheus.CounterVec
	ProcessingTime prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// historyLen, when non-nil, backs a gauge of the sent-history size.
func New(reg prometheus.Registerer, historyLen func() int) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_events_total",
			Help: "Events accepted for processing, by source",
		}, []string{"source"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_results_total",
			Help: "Notification results, by channel and outcome",
		}, []string{"channel", "outcome"}),
		ProcessingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Time to process one event through every matching config",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Events, m.Results, m.ProcessingTime)
	if historyLen != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "notifications_history_size",
			Help: "Messages currently held in the sent-history",
		}, func() float64 { return float64(historyLen()) }))
	}
	return m
}

// Observe counts one result. It matches registry.Observer.
func (m *Metrics) Observe(r models.NotificationResult) {
	m.Results.WithLabelValues(r.Channel, r.Outcome()).Inc()
}

// Track counts events from source and records how long process took.
func (m *Metrics) Track(source string, n int, process func()) {
	m.Events.WithLabelValues(source).Add(float64(n))
	start := time.Now()
	process()
	m.ProcessingTime.Observe(time.Since(start).Seconds())
}
