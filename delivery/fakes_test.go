package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/sosrelay/browser"
	"github.com/hazyhaar/sosrelay/locator"
)

var errNoMatch = errors.New("fake: no match")

// fakeFinder matches only the expressions in found and records lookup order.
type fakeFinder struct {
	mu      sync.Mutex
	found   map[string]bool
	tried   []string
	el      *fakeElement
	panicOn string
}

func (f *fakeFinder) Find(ctx context.Context, s locator.Spec) (locator.Element, error) {
	f.mu.Lock()
	f.tried = append(f.tried, s.Expr)
	f.mu.Unlock()
	if s.Expr == f.panicOn {
		panic("fake: renderer crashed")
	}
	if f.found[s.Expr] {
		return f.el, nil
	}
	return nil, errNoMatch
}

type fakeElement struct {
	mu      sync.Mutex
	presses [][]input.Key
	err     error
}

func (e *fakeElement) Press(_ context.Context, keys ...input.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.presses = append(e.presses, keys)
	return e.err
}

func (e *fakeElement) pressCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.presses)
}

type fakeSession struct {
	mu      sync.Mutex
	finder  *fakeFinder
	openErr error
	urls    []string
	closes  int
}

func (s *fakeSession) Open(_ context.Context, url string) (locator.Finder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.finder, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeDriver struct {
	path  string
	err   error
	calls int
}

func (d *fakeDriver) Resolve(context.Context) (string, error) {
	d.calls++
	return d.path, d.err
}

type fakeScheduler struct {
	err  error
	urls []string
	lead time.Duration
}

func (s *fakeScheduler) Schedule(_ context.Context, url string, lead time.Duration) error {
	s.urls = append(s.urls, url)
	s.lead = lead
	return s.err
}

// probeHosts returns a ProbeFunc reporting only the listed hosts as reachable.
func probeHosts(hosts ...string) ProbeFunc {
	return func(_ context.Context, host string, _ int, _ time.Duration) bool {
		for _, h := range hosts {
			if h == host {
				return true
			}
		}
		return false
	}
}

func launchWith(sess *fakeSession, got *browser.LaunchConfig, starts *int) LaunchFunc {
	return func(_ context.Context, cfg browser.LaunchConfig) (Session, error) {
		*starts++
		if got != nil {
			*got = cfg
		}
		return sess, nil
	}
}

var testLocators = []locator.Spec{
	{Kind: locator.XPath, Expr: "//div[@contenteditable='true' and @data-tab]"},
	{Kind: locator.CSS, Expr: "div[title='Type a message']"},
	{Kind: locator.CSS, Expr: "div.lexical-rich-text-input div[contenteditable='true']"},
}

func mustRequest(phone, msg string) Request {
	r, err := NewRequest(phone, msg)
	if err != nil {
		panic(err)
	}
	return r
}

// recordingSink counts metric calls.
type recordingSink struct {
	mu       sync.Mutex
	attempts map[string]int
	skipped  []string
	outcomes []string
	depths   []int
	rejected int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{attempts: map[string]int{}}
}

func (s *recordingSink) AttemptCompleted(strategy, outcome string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[strategy+"/"+outcome]++
}

func (s *recordingSink) StrategySkipped(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, strategy)
}

func (s *recordingSink) DeliveryOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *recordingSink) QueueDepthUpdate(depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depths = append(s.depths, depth)
}

func (s *recordingSink) QueueRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}
