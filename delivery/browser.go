package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/sosrelay/browser"
	"github.com/hazyhaar/sosrelay/locator"
)

// browserSession adapts *browser.Session to Session.
type browserSession struct {
	s       *browser.Session
	stealth bool
}

func (b browserSession) Open(ctx context.Context, url string) (locator.Finder, error) {
	p, err := b.s.Open(ctx, url, b.stealth)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b browserSession) Close() error { return b.s.Close() }

// LaunchBrowser starts a real browser. Tabs are opened with stealth scripts.
func LaunchBrowser(ctx context.Context, cfg browser.LaunchConfig) (Session, error) {
	s, err := browser.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return browserSession{s: s, stealth: true}, nil
}

// AttachBrowser returns an AttachFunc that connects to a running browser.
// step bounds every DevTools handshake step and tab creation, so a port
// held by something that never answers fails fast.
func AttachBrowser(logger *slog.Logger, step time.Duration) AttachFunc {
	return func(ctx context.Context, addr string) (Session, error) {
		s, err := browser.Attach(ctx, addr, step, logger)
		if err != nil {
			return nil, err
		}
		return browserSession{s: s}, nil
	}
}
