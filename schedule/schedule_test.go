package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedule_OpensThenPressesAfterLead(t *testing.T) {
	var openedAt, pressedAt time.Time
	var gotURL string
	s := &Scheduler{
		Open: func(_ context.Context, url string) error {
			gotURL = url
			openedAt = time.Now()
			return nil
		},
		SendKey: func(context.Context) error {
			pressedAt = time.Now()
			return nil
		},
	}

	lead := 50 * time.Millisecond
	if err := s.Schedule(context.Background(), "https://web.example/send?phone=1", lead); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if gotURL != "https://web.example/send?phone=1" {
		t.Errorf("opened %q", gotURL)
	}
	if pressedAt.IsZero() {
		t.Fatal("keystroke never sent")
	}
	if gap := pressedAt.Sub(openedAt); gap < lead {
		t.Errorf("keystroke after %v, want at least %v", gap, lead)
	}
}

func TestSchedule_OpenFailureSkipsKeystroke(t *testing.T) {
	var pressed atomic.Bool
	openErr := errors.New("no display")
	s := &Scheduler{
		Open:    func(context.Context, string) error { return openErr },
		SendKey: func(context.Context) error { pressed.Store(true); return nil },
	}
	err := s.Schedule(context.Background(), "u", 10*time.Millisecond)
	if !errors.Is(err, openErr) {
		t.Fatalf("err = %v, want %v", err, openErr)
	}
	if pressed.Load() {
		t.Error("keystroke sent after failed open")
	}
}

func TestSchedule_KeystrokeError(t *testing.T) {
	keyErr := errors.New("xdotool: not found")
	s := &Scheduler{
		Open:    func(context.Context, string) error { return nil },
		SendKey: func(context.Context) error { return keyErr },
	}
	if err := s.Schedule(context.Background(), "u", 10*time.Millisecond); !errors.Is(err, keyErr) {
		t.Fatalf("err = %v, want %v", err, keyErr)
	}
}

func TestSchedule_KeystrokePanicIsContained(t *testing.T) {
	s := &Scheduler{
		Open:    func(context.Context, string) error { return nil },
		SendKey: func(context.Context) error { panic("boom") },
	}
	if err := s.Schedule(context.Background(), "u", 0); err == nil {
		t.Fatal("expected error from panicking keystroke")
	}
}

func TestSchedule_DeadlineBeforeLead(t *testing.T) {
	var pressed atomic.Bool
	s := &Scheduler{
		Open:    func(context.Context, string) error { return nil },
		SendKey: func(context.Context) error { pressed.Store(true); return nil },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Schedule(ctx, "u", time.Hour)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if pressed.Load() {
		t.Error("keystroke sent after deadline")
	}
}

func TestOnce_Next(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &once{at: at}
	if got := o.Next(at.Add(time.Second)); !got.Equal(at) {
		t.Errorf("first: Next = %v, want %v", got, at)
	}
	if got := o.Next(at.Add(-time.Minute)); !got.IsZero() {
		t.Errorf("second: Next = %v, want zero", got)
	}
}

func TestPlatformCommands(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		name, args, err := openCommand(goos, "https://x/send?phone=1&text=a%20b")
		if err != nil || name == "" || args[len(args)-1] != "https://x/send?phone=1&text=a%20b" {
			t.Errorf("openCommand(%s) = %q %v %v", goos, name, args, err)
		}
		if name, _, err := enterCommand(goos); err != nil || name == "" {
			t.Errorf("enterCommand(%s) = %q %v", goos, name, err)
		}
	}
	if _, _, err := openCommand("plan9", "u"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("plan9 open: %v", err)
	}
	if _, _, err := enterCommand("plan9"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("plan9 enter: %v", err)
	}
}
