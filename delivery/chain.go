package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/sosrelay/metrics"
)

// Controller runs strategies in order until one succeeds. Strategies run
// strictly one after another, never concurrently.
type Controller struct {
	strategies []Strategy
	log        *slog.Logger
	sink       metrics.Sink
	now        func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

func WithSink(s metrics.Sink) Option { return func(c *Controller) { c.sink = s } }

// WithClock overrides the clock used for attempt timestamps.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// NewController returns a Controller trying strategies in the given order.
func NewController(strategies []Strategy, opts ...Option) *Controller {
	c := &Controller{
		strategies: append([]Strategy(nil), strategies...),
		log:        slog.Default(),
		sink:       metrics.NewNoopSink(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Strategies returns the strategy names in chain order.
func (c *Controller) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Deliver runs the chain for req. The only error returned is
// ErrInvalidRequest; strategy failures are recorded in the Result.
func (c *Controller) Deliver(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	log := c.log.With("request_id", req.ID)
	res := Result{RequestID: req.ID, Outcome: AllStrategiesFailed, Attempts: []Attempt{}}

	for _, s := range c.strategies {
		name := s.Name()

		if ctx.Err() != nil {
			now := c.now()
			res.Attempts = append(res.Attempts, Attempt{
				Strategy:  name,
				Outcome:   Failure,
				Kind:      KindDeadlineExceeded,
				Detail:    "deadline exceeded",
				StartedAt: now,
				EndedAt:   now,
			})
			c.sink.AttemptCompleted(name, metrics.OutcomeFailure, 0)
			log.Warn("delivery: strategy skipped, deadline exceeded", "strategy", name)
			continue
		}

		if g, ok := s.(Gate); ok && !g.Ready(ctx) {
			c.sink.StrategySkipped(name)
			log.Info("delivery: strategy not ready, skipped", "strategy", name)
			continue
		}

		log.Info("delivery: trying strategy", "strategy", name)
		a := Attempt{Strategy: name, StartedAt: c.now()}
		err := c.invoke(ctx, s, req)
		a.EndedAt = c.now()

		if err == nil {
			a.Outcome = Success
			res.Attempts = append(res.Attempts, a)
			res.Outcome = Delivered
			res.Strategy = name
			c.sink.AttemptCompleted(name, metrics.OutcomeSuccess, a.Duration())
			log.Info("delivery: delivered", "strategy", name, "duration_ms", a.Duration().Milliseconds())
			break
		}

		a.Outcome = Failure
		a.Kind = KindOf(err)
		a.Detail = detail(err)
		res.Attempts = append(res.Attempts, a)
		c.sink.AttemptCompleted(name, metrics.OutcomeFailure, a.Duration())
		log.Warn("delivery: strategy failed", "strategy", name, "kind", a.Kind, "error", err)
	}

	if res.Delivered() {
		c.sink.DeliveryOutcome(metrics.OutcomeDelivered)
	} else {
		c.sink.DeliveryOutcome(metrics.OutcomeFailed)
		log.Error("delivery: all strategies failed", "attempts", len(res.Attempts))
	}
	return res, nil
}

// invoke calls s.Attempt, turning a panic into an internal failure.
func (c *Controller) invoke(ctx context.Context, s Strategy, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("delivery: strategy panicked", "strategy", s.Name(), "panic", r, "stack", string(debug.Stack()))
			err = &Error{Strategy: s.Name(), Kind: KindInternal, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.Attempt(ctx, req)
}
