// CLAUDE:SUMMARY Last-resort sender: opens the compose URL in the system browser and presses Enter after a lead time through a one-shot cron entry.
// Package schedule sends a prepared message without any automation driver.
// The compose URL is handed to the desktop's default browser, and once the
// lead time has passed an Enter keystroke is delivered to the focused window.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
)

// Opener hands url to the system's default browser.
type Opener func(ctx context.Context, url string) error

// KeySender presses Enter in whatever window currently has focus.
type KeySender func(ctx context.Context) error

// Scheduler opens a URL now and fires a keystroke later.
type Scheduler struct {
	Open    Opener
	SendKey KeySender
	Logger  *slog.Logger
}

// New returns a Scheduler using the host OS commands.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{Open: SystemOpen, SendKey: SystemEnter, Logger: logger}
}

// Schedule opens url and, lead after that, sends Enter. It returns the
// keystroke's error once the job has run, or ctx's error if ctx ends first.
func (s *Scheduler) Schedule(ctx context.Context, url string, lead time.Duration) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	open, send := s.Open, s.SendKey
	if open == nil {
		open = SystemOpen
	}
	if send == nil {
		send = SystemEnter
	}

	if err := open(ctx, url); err != nil {
		return fmt.Errorf("schedule: open: %w", err)
	}
	if lead <= 0 {
		return runJob(ctx, send)
	}

	at := time.Now().Add(lead)
	done := make(chan error, 1)

	c := cron.New(cron.WithLogger(cronLogger{log}))
	c.Schedule(&once{at: at}, cron.FuncJob(func() {
		done <- runJob(ctx, send)
	}))
	log.Info("schedule: keystroke armed", "at", at.Format(time.RFC3339), "lead", lead)
	c.Start()
	defer func() { <-c.Stop().Done() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runJob(ctx context.Context, send KeySender) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule: keystroke panicked: %v", r)
		}
	}()
	if err := send(ctx); err != nil {
		return fmt.Errorf("schedule: keystroke: %w", err)
	}
	return nil
}

// once fires a single time at a fixed instant. An instant already in the
// past when cron first asks fires immediately. Next is only called from the
// cron goroutine.
type once struct {
	at    time.Time
	armed bool
}

func (o *once) Next(time.Time) time.Time {
	if o.armed {
		return time.Time{}
	}
	o.armed = true
	return o.at
}

// cronLogger routes cron's internal logging into slog.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("schedule: cron "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("schedule: cron "+msg, append(kv, "error", err)...)
}

// ErrUnsupported is returned on platforms without a known open/keystroke command.
var ErrUnsupported = errors.New("schedule: unsupported platform")

// SystemOpen starts the platform URL handler without waiting for the browser.
func SystemOpen(ctx context.Context, url string) error {
	name, args, err := openCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	return exec.CommandContext(ctx, name, args...).Start()
}

// SystemEnter sends Enter to the focused window and waits for the command.
func SystemEnter(ctx context.Context) error {
	name, args, err := enterCommand(runtime.GOOS)
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

func openCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "windows":
		// start treats a first quoted argument as the window title.
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
}

func enterCommand(goos string) (string, []string, error) {
	switch goos {
	case "windows":
		return "powershell", []string{"-NoProfile", "-Command",
			"Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('{ENTER}')"}, nil
	case "darwin":
		return "osascript", []string{"-e", `tell application "System Events" to key code 36`}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdotool", []string{"key", "Return"}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
}
