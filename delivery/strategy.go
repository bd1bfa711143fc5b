// CLAUDE:SUMMARY Strategy contract shared by attach, launch and scheduled delivery, plus the locate-settle-press sequence both browser strategies run.
// Package delivery sends an alert through an ordered chain of strategies:
// attach to a running browser, launch a new one, then hand off to the
// system browser with a timed keystroke. The first success ends the chain.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/sosrelay/locator"
)

// Strategy is one technique for delivering a Request. Attempt returns nil
// on success. Errors should be *Error so the Controller can classify them.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) error
}

// Gate is implemented by strategies with a cheap precondition. A strategy
// whose Ready returns false is skipped without an Attempt being recorded.
type Gate interface {
	Ready(ctx context.Context) bool
}

// Session is a browser session owned by a single attempt.
type Session interface {
	Open(ctx context.Context, url string) (locator.Finder, error)
	Close() error
}

// sendSteps waits for the message box, lets it settle, presses Enter, then
// keeps the page open long enough for the send to leave.
type sendSteps struct {
	strategy   string
	candidates []locator.Spec
	maxWait    time.Duration
	settle     time.Duration
	postSend   time.Duration
	log        *slog.Logger
}

func (s sendSteps) run(ctx context.Context, f locator.Finder) error {
	el, matched, err := locator.Resolve(ctx, f, s.candidates, s.maxWait)
	if err != nil {
		return fail(ctx, s.strategy, KindLocatorNotFound, err)
	}
	s.log.Debug("delivery: message box found", "strategy", s.strategy, "locator", matched.String())

	if err := sleep(ctx, s.settle); err != nil {
		return fail(ctx, s.strategy, KindDeadlineExceeded, err)
	}
	if err := el.Press(ctx, input.Enter); err != nil {
		return fail(ctx, s.strategy, KindSendTriggerFailed, err)
	}
	s.log.Info("delivery: send triggered", "strategy", s.strategy)

	// The keystroke has landed; running out of budget here does not undo it.
	_ = sleep(ctx, s.postSend)
	return nil
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeSession closes s and logs, never returns, the error.
func closeSession(log *slog.Logger, strategy string, s Session) {
	if err := s.Close(); err != nil {
		log.Warn("delivery: session close", "strategy", strategy, "error", err)
	}
}
