// CLAUDE:SUMMARY Browser session lifecycle: launch a local Chromium or attach to a remote-debugging endpoint, open stealth tabs, idempotent teardown.
// Package browser owns one browser automation session per delivery attempt:
// launch (or attach), open tabs, and tear everything down exactly once.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	navigateTimeout = 30 * time.Second
	// DefaultStepTimeout bounds each DevTools handshake step (version
	// lookup, websocket connect, tab creation) when no timeout is given.
	DefaultStepTimeout = 15 * time.Second
)

// ErrStepTimeout means a DevTools step got no answer within its bound.
var ErrStepTimeout = errors.New("browser: devtools step timed out")

// Session is a connected browser. The caller that obtained it owns it and
// must call Close; Close is safe to call more than once.
type Session struct {
	browser  *rod.Browser
	lnch     *launcher.Launcher // nil when attached
	keepData bool               // user profile in use: never delete the data dir
	attached bool
	step     time.Duration
	log      *slog.Logger

	// release cancels the contexts the connection and tabs were created
	// under once the session is torn down.
	release []context.CancelFunc

	mu    sync.Mutex
	pages []*rod.Page

	closeOnce sync.Once
	closeErr  error
}

// Launch starts a browser configured by cfg and connects to it. When
// cfg.RemoteDebugAddress is set it attaches to that endpoint instead.
func Launch(ctx context.Context, cfg LaunchConfig) (*Session, error) {
	cfg.defaults()
	if cfg.RemoteDebugAddress != "" {
		return Attach(ctx, cfg.RemoteDebugAddress, DefaultStepTimeout, cfg.Logger)
	}
	log := cfg.Logger

	l := newLauncher(cfg).Context(ctx)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	log.Info("browser: launched", "bin", cfg.Bin, "headless", cfg.Headless,
		"profile", cfg.ProfileName, "user_data_dir", cfg.ProfileDataDir != "")

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		if cfg.ProfileDataDir == "" {
			l.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &Session{
		browser:  b,
		lnch:     l,
		keepData: cfg.ProfileDataDir != "",
		step:     DefaultStepTimeout,
		log:      log,
	}, nil
}

// Attach connects to a browser already listening on addr (host:port) with
// remote debugging enabled. Each handshake step, and each later tab
// creation, must answer within step. Closing the session closes only the
// tabs it opened; the browser keeps running.
func Attach(ctx context.Context, addr string, step time.Duration, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if step <= 0 {
		step = DefaultStepTimeout
	}

	var u string
	resolved, err := bounded(ctx, step, func(ctx context.Context) error {
		var err error
		u, err = resolveControlURL(ctx, addr)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("browser: attach %s: %w", addr, err)
	}
	resolved()

	var b *rod.Browser
	release, err := bounded(ctx, step, func(ctx context.Context) error {
		b = rod.New().ControlURL(u).Context(ctx)
		return b.Connect()
	})
	if err != nil {
		return nil, fmt.Errorf("browser: attach %s: connect: %w", addr, err)
	}
	logger.Info("browser: attached", "addr", addr)

	return &Session{
		browser:  b,
		attached: true,
		step:     step,
		log:      logger,
		release:  []context.CancelFunc{release},
	}, nil
}

// Open creates a tab, navigates it to pageURL and waits for load. With
// stealth the tab is created with anti-detection scripts injected.
func (s *Session) Open(ctx context.Context, pageURL string, useStealth bool) (*Page, error) {
	var page *rod.Page
	release, err := bounded(ctx, s.stepTimeout(), func(ctx context.Context) error {
		var err error
		b := s.browser.Context(ctx)
		if useStealth {
			page, err = stealth.Page(b)
		} else {
			page, err = b.Page(proto.TargetCreateTarget{URL: ""})
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.release = append(s.release, release)
	s.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate: %w", err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load", "error", err)
	}
	return &Page{page: page}, nil
}

func (s *Session) stepTimeout() time.Duration {
	if s.step <= 0 {
		return DefaultStepTimeout
	}
	return s.step
}

// Attached reports whether the session reuses a running browser.
func (s *Session) Attached() bool { return s.attached }

// Close closes the tabs opened by this session and, for launched sessions,
// the browser process. Only the first call does work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.teardown()
	})
	return s.closeErr
}

func (s *Session) teardown() error {
	s.mu.Lock()
	pages := s.pages
	release := s.release
	s.pages, s.release = nil, nil
	s.mu.Unlock()

	defer func() {
		for _, cancel := range release {
			cancel()
		}
	}()

	for _, p := range pages {
		if err := p.Close(); err != nil {
			s.log.Debug("browser: close tab", "error", err)
		}
	}
	if s.attached {
		return nil
	}

	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Kill()
		if !s.keepData {
			s.lnch.Cleanup()
		}
	}
	s.log.Debug("browser: session closed")
	return err
}

// bounded runs fn under a child of ctx that is cancelled when fn has not
// returned within d. fn runs in its own goroutine so a peer that never
// answers cannot hold the caller past d. On success the child context stays
// live for whatever fn created under it; the returned cancel releases it.
func bounded(ctx context.Context, d time.Duration, fn func(context.Context) error) (context.CancelFunc, error) {
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			cancel()
			return nil, err
		}
		return cancel, nil
	case <-timer.C:
		cancel()
		return nil, fmt.Errorf("%w after %s", ErrStepTimeout, d)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// resolveControlURL asks the DevTools HTTP endpoint for the browser's
// websocket URL.
func resolveControlURL(ctx context.Context, addr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("devtools version: status %d", resp.StatusCode)
	}
	var v struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("devtools version: %w", err)
	}
	if v.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("devtools version: no websocket url")
	}
	return v.WebSocketDebuggerURL, nil
}
