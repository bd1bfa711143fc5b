// CLAUDE:SUMMARY Locates or downloads the Chromium binary that rod drives, caching the answer for the life of the process.
// Package driver resolves the browser binary driven over the DevTools protocol.
//
// Resolution order: an explicitly configured binary, then a system install
// found by launcher.LookPath, then a download of the revision pinned by rod.
// The first path found is kept until the process exits and is never
// re-validated: a binary deleted later is still returned. A failed
// resolution is not kept; the next call tries again.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-rod/rod/lib/launcher"
)

// ErrUnavailable means no browser binary could be found or provisioned.
// Callers skip browser-based delivery; it is not fatal.
var ErrUnavailable = errors.New("driver: browser binary unavailable")

// Resolver finds the browser binary and keeps the first path found.
type Resolver struct {
	// LocalPath is checked first. Empty skips the check.
	LocalPath string

	// Lookup searches the system for an installed browser.
	// Default: launcher.LookPath.
	Lookup func() (string, bool)

	// Provision downloads a browser when none is installed.
	// Default: rod's pinned Chromium revision via launcher.NewBrowser.
	Provision func(ctx context.Context) (string, error)

	Logger *slog.Logger

	mu   sync.Mutex
	path string
}

// Resolve returns the cached browser path, resolving it when none is cached
// yet. ctx bounds provisioning. Concurrent callers wait for one resolution.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path != "" {
		return r.path, nil
	}
	p, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	r.path = p
	return p, nil
}

func (r *Resolver) resolve(ctx context.Context) (string, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	if r.LocalPath != "" {
		if fi, err := os.Stat(r.LocalPath); err == nil && !fi.IsDir() {
			log.Debug("driver: using local binary", "path", r.LocalPath)
			return r.LocalPath, nil
		}
		log.Warn("driver: configured binary missing", "path", r.LocalPath)
	}

	lookup := r.Lookup
	if lookup == nil {
		lookup = launcher.LookPath
	}
	if p, ok := lookup(); ok {
		log.Debug("driver: using system browser", "path", p)
		return p, nil
	}

	provision := r.Provision
	if provision == nil {
		provision = download
	}
	log.Info("driver: provisioning browser")
	p, err := provision(ctx)
	if err != nil {
		log.Error("driver: provisioning failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if p == "" {
		return "", ErrUnavailable
	}
	log.Info("driver: browser provisioned", "path", p)
	return p, nil
}

func download(ctx context.Context) (string, error) {
	b := launcher.NewBrowser()
	b.Context = ctx
	return b.Get()
}

// Default is the process-wide resolver. Configure its fields before the
// first successful Resolve; changes afterwards have no effect.
var Default = &Resolver{}
