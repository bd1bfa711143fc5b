package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) AttemptCompleted(strategy, outcome string, d time.Duration) {}
func (n *NoopSink) StrategySkipped(strategy string)                            {}
func (n *NoopSink) DeliveryOutcome(outcome string)                             {}
func (n *NoopSink) QueueDepthUpdate(depth int)                                 {}
func (n *NoopSink) QueueRejected()                                             {}
