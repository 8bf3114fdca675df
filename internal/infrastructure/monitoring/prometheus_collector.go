package monitoring

import (
	"time"

	"smartclean/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	queueLength     prometheus.Gauge
	observersActive prometheus.Gauge

	// Counters
	turnsStarted     prometheus.Counter
	turnsEnded       *prometheus.CounterVec
	deviceIntents    *prometheus.CounterVec
	observersEvicted prometheus.Counter
	sweepsTotal      *prometheus.CounterVec
	sessionsEvicted  prometheus.Counter

	// Histograms
	turnHeldDuration *prometheus.HistogramVec
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the collector's metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smartclean_queue_length",
			Help: "Number of identities in the waiting line, including the active one",
		}),

		observersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smartclean_observers_active",
			Help: "Number of connected snapshot observers",
		}),

		turnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartclean_turns_started_total",
			Help: "Total number of turns started",
		}),

		turnsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartclean_turns_ended_total",
			Help: "Total number of turns ended, by reason",
		}, []string{"reason"}),

		deviceIntents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartclean_device_intents_total",
			Help: "Device intents received, by intent and result",
		}, []string{"intent", "result"}),

		observersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartclean_observers_evicted_total",
			Help: "Observers dropped after a failed delivery",
		}),

		sweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartclean_sweeps_total",
			Help: "Maintenance sweep ticks, by sweep and outcome",
		}, []string{"sweep", "outcome"}),

		sessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartclean_sessions_evicted_total",
			Help: "Session records evicted for inactivity",
		}),

		turnHeldDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartclean_turn_duration_seconds",
			Help:    "How long turns were held before ending",
			Buckets: []float64{5, 15, 30, 60, 120, 180, 240, 300},
		}, []string{"reason"}),
	}
}

func (p *PrometheusCollector) SetQueueLength(n int) {
	p.queueLength.Set(float64(n))
}

func (p *PrometheusCollector) SetObservers(n int) {
	p.observersActive.Set(float64(n))
}

func (p *PrometheusCollector) RecordTurnStarted() {
	p.turnsStarted.Inc()
}

func (p *PrometheusCollector) RecordTurnEnded(reason string, held time.Duration) {
	p.turnsEnded.WithLabelValues(reason).Inc()
	p.turnHeldDuration.WithLabelValues(reason).Observe(held.Seconds())
}

func (p *PrometheusCollector) RecordDeviceIntent(intent, result string) {
	p.deviceIntents.WithLabelValues(intent, result).Inc()
}

func (p *PrometheusCollector) RecordObserverEvicted() {
	p.observersEvicted.Inc()
}

func (p *PrometheusCollector) RecordSweep(name string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "panic"
	}
	p.sweepsTotal.WithLabelValues(name, outcome).Inc()
}

func (p *PrometheusCollector) RecordSessionsEvicted(n int) {
	p.sessionsEvicted.Add(float64(n))
}
