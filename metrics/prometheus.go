package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	skippedTotal    *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec

	queueDepth    prometheus.Gauge
	rejectedTotal prometheus.Counter
}

// NewPrometheusSink creates the collectors and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initChainMetrics(reg)
	s.initRelayMetrics(reg)
	return s
}

func (s *PrometheusSink) initChainMetrics(reg prometheus.Registerer) {
	s.attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sosrelay_strategy_attempts_total",
		Help: "Total number of delivery strategy attempts.",
	}, []string{"strategy", "outcome"})

	s.attemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sosrelay_strategy_attempt_duration_seconds",
		Help:    "Duration of a single strategy attempt in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"strategy"})

	s.skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sosrelay_strategy_skipped_total",
		Help: "Total number of strategies skipped because their precondition did not hold.",
	}, []string{"strategy"})

	s.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sosrelay_delivery_outcomes_total",
		Help: "Total number of final delivery outcomes per request.",
	}, []string{"outcome"})

	s.register(reg, s.attemptsTotal, "sosrelay_strategy_attempts_total")
	s.register(reg, s.attemptDuration, "sosrelay_strategy_attempt_duration_seconds")
	s.register(reg, s.skippedTotal, "sosrelay_strategy_skipped_total")
	s.register(reg, s.outcomesTotal, "sosrelay_delivery_outcomes_total")
}

func (s *PrometheusSink) initRelayMetrics(reg prometheus.Registerer) {
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sosrelay_queue_depth",
		Help: "Number of delivery requests waiting for the worker.",
	})
	s.rejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sosrelay_queue_rejected_total",
		Help: "Total number of requests rejected because the queue was full.",
	})

	s.register(reg, s.queueDepth, "sosrelay_queue_depth")
	s.register(reg, s.rejectedTotal, "sosrelay_queue_rejected_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: register failed", "metric", name, "error", err)
	}
}

func (s *PrometheusSink) AttemptCompleted(strategy, outcome string, duration time.Duration) {
	s.attemptsTotal.WithLabelValues(strategy, outcome).Inc()
	s.attemptDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (s *PrometheusSink) StrategySkipped(strategy string) {
	s.skippedTotal.WithLabelValues(strategy).Inc()
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) QueueDepthUpdate(depth int) {
	s.queueDepth.Set(float64(depth))
}

func (s *PrometheusSink) QueueRejected() {
	s.rejectedTotal.Inc()
}
