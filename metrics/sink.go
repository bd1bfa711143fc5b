// Package metrics records delivery counters and timings.
package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Chain metrics
	AttemptCompleted(strategy, outcome string, duration time.Duration)
	StrategySkipped(strategy string)
	DeliveryOutcome(outcome string)

	// Relay metrics
	QueueDepthUpdate(depth int)
	QueueRejected()
}

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	OutcomeDelivered = "delivered"
	OutcomeFailed    = "all_failed"
)
