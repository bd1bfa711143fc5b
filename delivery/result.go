package delivery

import (
	"strings"
	"time"
)

// Outcome of a single strategy attempt.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// FinalOutcome of the whole chain.
type FinalOutcome string

const (
	Delivered           FinalOutcome = "delivered"
	AllStrategiesFailed FinalOutcome = "all_failed"
)

// Attempt records one strategy invocation, or a strategy skipped because
// the request deadline had passed.
type Attempt struct {
	Strategy  string    `json:"strategy"`
	Outcome   Outcome   `json:"outcome"`
	Kind      Kind      `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration is the wall time the attempt took.
func (a Attempt) Duration() time.Duration { return a.EndedAt.Sub(a.StartedAt) }

// Result is what the Controller returns for a request. Attempts are in
// invocation order.
type Result struct {
	RequestID string       `json:"request_id"`
	Outcome   FinalOutcome `json:"outcome"`
	Strategy  string       `json:"strategy,omitempty"`
	Attempts  []Attempt    `json:"attempts"`
}

// Delivered reports whether some strategy succeeded.
func (r Result) Delivered() bool { return r.Outcome == Delivered }

// Summary is the one-line terminal message for r.
func (r Result) Summary() string {
	if r.Delivered() {
		return "delivered via " + r.Strategy
	}
	if len(r.Attempts) == 0 {
		return "all strategies failed: no strategy was attempted"
	}
	parts := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		parts = append(parts, a.Strategy+": "+a.Detail)
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}
