package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler opens url outside any automation and presses Enter after lead.
// *schedule.Scheduler satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, url string, lead time.Duration) error
}

// Scheduled is the last resort: no driver and no debug session needed.
type Scheduled struct {
	AppURL    string
	LeadTime  time.Duration
	Scheduler Scheduler // required
	Logger    *slog.Logger
}

func (s *Scheduled) Name() string { return "scheduled" }

func (s *Scheduled) Attempt(ctx context.Context, req Request) error {
	if s.Scheduler == nil {
		return &Error{Strategy: s.Name(), Kind: KindInternal, Cause: errors.New("no scheduler configured")}
	}
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("delivery: scheduling send", "lead", s.LeadTime)
	if err := s.Scheduler.Schedule(ctx, req.ComposeURL(s.AppURL), s.LeadTime); err != nil {
		return fail(ctx, s.Name(), KindSchedulerFailed, err)
	}
	return nil
}
