// CLAUDE:SUMMARY Alert relay: a bounded queue drained by one worker so deliveries never overlap, journalling each result.
// Package relay accepts alerts over HTTP and MCP and feeds them, one at a
// time, to the delivery chain. Strategies share the browser profile, so the
// worker never runs two deliveries at once.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/journal"
	"github.com/hazyhaar/sosrelay/metrics"
	"github.com/hazyhaar/sosrelay/severity"
)

var (
	// ErrQueueFull is returned when the queue cannot take another request.
	ErrQueueFull = errors.New("relay: queue full")
	// ErrNoJournal is returned by Status when no journal is configured.
	ErrNoJournal = errors.New("relay: no journal configured")
)

// Deliverer runs the strategy chain. *delivery.Controller satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error)
}

// Journal persists requests and results. *journal.Store satisfies it.
type Journal interface {
	Enqueued(ctx context.Context, req delivery.Request) error
	Record(ctx context.Context, req delivery.Request, res delivery.Result) error
	Get(ctx context.Context, id string) (*journal.Entry, error)
	Recent(ctx context.Context, limit int) ([]*journal.Entry, error)
}

// Classifier weighs an incident description. *severity.Client satisfies it.
type Classifier interface {
	Predict(ctx context.Context, text string) (*severity.Prediction, error)
}

type job struct {
	req  delivery.Request
	done chan delivery.Result // nil for fire-and-forget
}

// Service owns the queue and its single worker.
type Service struct {
	deliverer  Deliverer
	journal    Journal
	classifier Classifier
	sink       metrics.Sink
	logger     *slog.Logger
	timeout    time.Duration
	signature  string
	strip      *bluemonday.Policy

	queue chan job
}

// Option configures a Service.
type Option func(*Service)

func WithJournal(j Journal) Option { return func(s *Service) { s.journal = j } }

func WithClassifier(c Classifier) Option { return func(s *Service) { s.classifier = c } }

func WithSink(m metrics.Sink) Option { return func(s *Service) { s.sink = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithQueueSize bounds the number of waiting requests. Default 64.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan job, n)
		}
	}
}

// WithTimeout bounds each delivery. Default 3m.
func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

// WithSignature sets the closing line of composed SOS messages.
func WithSignature(sig string) Option { return func(s *Service) { s.signature = sig } }

// New returns a Service. Call Run to start the worker.
func New(d Deliverer, opts ...Option) *Service {
	s := &Service{
		deliverer: d,
		sink:      metrics.NewNoopSink(),
		logger:    slog.Default(),
		timeout:   3 * time.Minute,
		signature: "Sent via sosrelay",
		strip:     bluemonday.StrictPolicy(),
		queue:     make(chan job, 64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drains the queue until ctx is done. Requests still queued at that
// point are dropped; their journal entries stay pending.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("relay: worker started", "queue_size", cap(s.queue))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("relay: worker stopped", "dropped", len(s.queue))
			return nil
		case j := <-s.queue:
			s.sink.QueueDepthUpdate(len(s.queue))
			res := s.process(ctx, j.req)
			if j.done != nil {
				j.done <- res
			}
		}
	}
}

func (s *Service) process(ctx context.Context, req delivery.Request) delivery.Result {
	log := s.logger.With("request_id", req.ID)
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.deliverer.Deliver(dctx, req)
	if err != nil {
		log.Error("relay: delivery rejected", "error", err)
		res = delivery.Result{RequestID: req.ID, Outcome: delivery.AllStrategiesFailed, Attempts: []delivery.Attempt{}}
	}
	log.Info("relay: delivery finished", "outcome", res.Outcome, "summary", res.Summary())

	if s.journal != nil {
		// The worker ctx may be ending; the result is still worth keeping.
		jctx, jcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.journal.Record(jctx, req, res); err != nil {
			log.Error("relay: journal record", "error", err)
		}
		jcancel()
	}
	return res
}

// Enqueue queues req and returns without waiting for delivery.
func (s *Service) Enqueue(ctx context.Context, req delivery.Request) error {
	return s.enqueue(ctx, job{req: req})
}

// DeliverNow queues req and waits for its result or ctx.
func (s *Service) DeliverNow(ctx context.Context, req delivery.Request) (delivery.Result, error) {
	j := job{req: req, done: make(chan delivery.Result, 1)}
	if err := s.enqueue(ctx, j); err != nil {
		return delivery.Result{}, err
	}
	select {
	case res := <-j.done:
		return res, nil
	case <-ctx.Done():
		return delivery.Result{}, ctx.Err()
	}
}

func (s *Service) enqueue(ctx context.Context, j job) error {
	if err := j.req.Validate(); err != nil {
		return err
	}
	select {
	case s.queue <- j:
		s.sink.QueueDepthUpdate(len(s.queue))
		// The worker may already have recorded the result; Enqueued never
		// overwrites an existing row.
		if s.journal != nil {
			if err := s.journal.Enqueued(ctx, j.req); err != nil {
				s.logger.Warn("relay: journal enqueue", "request_id", j.req.ID, "error", err)
			}
		}
		return nil
	default:
		s.sink.QueueRejected()
		s.logger.Warn("relay: queue full", "request_id", j.req.ID)
		return ErrQueueFull
	}
}

// Status returns the journalled entry for a request ID.
func (s *Service) Status(ctx context.Context, id string) (*journal.Entry, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.Get(ctx, id)
}

// Recent returns the latest journalled entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]*journal.Entry, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.journal.Recent(ctx, limit)
}
