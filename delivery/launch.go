package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/sosrelay/browser"
	"github.com/hazyhaar/sosrelay/locator"
)

// LaunchFunc starts a browser session from cfg.
type LaunchFunc func(ctx context.Context, cfg browser.LaunchConfig) (Session, error)

// DriverResolver yields the browser binary path. *driver.Resolver satisfies it.
type DriverResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Launch starts a fresh browser, optionally on the user's logged-in profile.
// The session is closed before Attempt returns, whatever the outcome.
type Launch struct {
	AppURL string
	// Browser is the template LaunchConfig; Bin is filled from Driver.
	Browser  browser.LaunchConfig
	Profile  string
	Locators []locator.Spec
	MaxWait  time.Duration // per locator candidate
	Settle   time.Duration
	PostSend time.Duration

	Driver DriverResolver // required
	Start  LaunchFunc     // required
	Logger *slog.Logger
}

func (l *Launch) Name() string { return "launch" }

func (l *Launch) Attempt(ctx context.Context, req Request) error {
	log := l.logger()
	if l.Driver == nil || l.Start == nil {
		return &Error{Strategy: l.Name(), Kind: KindInternal, Cause: errors.New("launch strategy not configured")}
	}

	bin, err := l.Driver.Resolve(ctx)
	if err != nil {
		return &Error{Strategy: l.Name(), Kind: KindDriverUnavailable, Cause: err}
	}

	cfg := l.Browser.WithProfile(l.Profile)
	cfg.Bin = bin
	cfg.Logger = log

	sess, err := l.Start(ctx, cfg)
	if err != nil {
		return fail(ctx, l.Name(), KindSessionLaunchFailed, err)
	}
	defer closeSession(log, l.Name(), sess)

	page, err := sess.Open(ctx, req.ComposeURL(l.AppURL))
	if err != nil {
		return fail(ctx, l.Name(), KindSessionLaunchFailed, err)
	}
	steps := sendSteps{
		strategy:   l.Name(),
		candidates: l.Locators,
		maxWait:    l.MaxWait,
		settle:     l.Settle,
		postSend:   l.PostSend,
		log:        log,
	}
	return steps.run(ctx, page)
}

func (l *Launch) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
