package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/sosrelay/locator"
	"github.com/hazyhaar/sosrelay/probe"
)

// AttachFunc connects to a browser listening for remote debugging on addr.
type AttachFunc func(ctx context.Context, addr string) (Session, error)

// ProbeFunc reports whether host:port accepts TCP connections.
type ProbeFunc func(ctx context.Context, host string, port int, timeout time.Duration) bool

// Attach reuses a browser the user already runs with remote debugging on.
// Only the most specific locator is tried: a live session renders the
// current app version.
type Attach struct {
	AppURL       string
	Hosts        []string
	Port         int
	ProbeTimeout time.Duration
	Locator      locator.Spec
	MaxWait      time.Duration
	Settle       time.Duration
	PostSend     time.Duration

	Probe   ProbeFunc  // default probe.Reachable
	Connect AttachFunc // required
	Logger  *slog.Logger

	mu    sync.Mutex
	ready []string // hosts found by the last Ready, consumed by Attempt
}

func (a *Attach) Name() string { return "attach" }

// Ready reports whether any configured host answers on the debug port.
// The reachable hosts are kept for the Attempt that follows.
func (a *Attach) Ready(ctx context.Context) bool {
	hosts := a.reachable(ctx)
	a.mu.Lock()
	a.ready = hosts
	a.mu.Unlock()
	return len(hosts) > 0
}

// Attempt tries every reachable host in order until one delivers. Hosts
// already probed by Ready are not probed again.
func (a *Attach) Attempt(ctx context.Context, req Request) error {
	a.mu.Lock()
	hosts := a.ready
	a.ready = nil
	a.mu.Unlock()
	if len(hosts) == 0 {
		hosts = a.reachable(ctx)
	}
	if len(hosts) == 0 {
		return fail(ctx, a.Name(), KindProbeUnreachable,
			fmt.Errorf("no debug endpoint on %v port %d", a.Hosts, a.Port))
	}
	if a.Connect == nil {
		return &Error{Strategy: a.Name(), Kind: KindSessionLaunchFailed, Cause: errors.New("no attach function configured")}
	}

	var last error
	for _, h := range hosts {
		addr := net.JoinHostPort(h, strconv.Itoa(a.Port))
		last = a.attemptAddr(ctx, addr, req)
		if last == nil {
			return nil
		}
		a.logger().Warn("delivery: attach failed", "addr", addr, "error", last)
		if ctx.Err() != nil {
			break
		}
	}
	return last
}

func (a *Attach) attemptAddr(ctx context.Context, addr string, req Request) error {
	sess, err := a.Connect(ctx, addr)
	if err != nil {
		return fail(ctx, a.Name(), KindSessionLaunchFailed, err)
	}
	defer closeSession(a.logger(), a.Name(), sess)

	page, err := sess.Open(ctx, req.ComposeURL(a.AppURL))
	if err != nil {
		return fail(ctx, a.Name(), KindSessionLaunchFailed, err)
	}
	steps := sendSteps{
		strategy:   a.Name(),
		candidates: []locator.Spec{a.Locator},
		maxWait:    a.MaxWait,
		settle:     a.Settle,
		postSend:   a.PostSend,
		log:        a.logger(),
	}
	return steps.run(ctx, page)
}

// reachable probes hosts in order.
func (a *Attach) reachable(ctx context.Context) []string {
	p := a.Probe
	if p == nil {
		p = probe.Reachable
	}
	var out []string
	for _, h := range a.Hosts {
		if p(ctx, h, a.Port, a.ProbeTimeout) {
			out = append(out, h)
		}
	}
	return out
}

func (a *Attach) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
