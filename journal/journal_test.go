package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sosrelay/dbopen"
	"github.com/hazyhaar/sosrelay/delivery"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func request(t *testing.T, id string, at time.Time) delivery.Request {
	t.Helper()
	r, err := delivery.NewRequest("+1 555-0100", "Test "+id)
	if err != nil {
		t.Fatal(err)
	}
	r.ID = id
	r.RequestedAt = at
	return r
}

func TestRecordAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	req := request(t, "req_a", t0)

	if err := s.Enqueued(ctx, req); err != nil {
		t.Fatal(err)
	}
	e, err := s.Get(ctx, "req_a")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusPending || e.Result != nil || e.FinishedAt != nil {
		t.Fatalf("pending entry = %+v", e)
	}

	res := delivery.Result{
		RequestID: req.ID,
		Outcome:   delivery.Delivered,
		Strategy:  "launch",
		Attempts: []delivery.Attempt{
			{Strategy: "attach", Outcome: delivery.Failure, Kind: delivery.KindLocatorNotFound,
				Detail: "locator_not_found: timeout", StartedAt: t0, EndedAt: t0.Add(45 * time.Second)},
			{Strategy: "launch", Outcome: delivery.Success,
				StartedAt: t0.Add(45 * time.Second), EndedAt: t0.Add(80 * time.Second)},
		},
	}
	if err := s.Record(ctx, req, res); err != nil {
		t.Fatalf("Record: %v", err)
	}

	e, err = s.Get(ctx, "req_a")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != string(delivery.Delivered) || e.FinishedAt == nil {
		t.Fatalf("entry = %+v", e)
	}
	if e.Request.Phone != "15550100" || !e.Request.RequestedAt.Equal(t0) {
		t.Errorf("request = %+v", e.Request)
	}
	got := e.Result
	if got.Strategy != "launch" || len(got.Attempts) != 2 {
		t.Fatalf("result = %+v", got)
	}
	if got.Attempts[0].Kind != delivery.KindLocatorNotFound || got.Attempts[0].Duration() != 45*time.Second {
		t.Errorf("attempt 0 = %+v", got.Attempts[0])
	}
	if got.Summary() != "delivered via launch" {
		t.Errorf("Summary = %q", got.Summary())
	}
}

func TestRecord_WithoutEnqueue(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	req := request(t, "req_b", time.Now())
	res := delivery.Result{RequestID: req.ID, Outcome: delivery.AllStrategiesFailed, Attempts: []delivery.Attempt{}}
	if err := s.Record(ctx, req, res); err != nil {
		t.Fatal(err)
	}
	e, err := s.Get(ctx, "req_b")
	if err != nil {
		t.Fatal(err)
	}
	if e.Result == nil || e.Result.Outcome != delivery.AllStrategiesFailed {
		t.Errorf("entry = %+v", e)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Get(context.Background(), "req_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"req_1", "req_2", "req_3"} {
		if err := s.Enqueued(ctx, request(t, id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Request.ID != "req_3" || entries[1].Request.ID != "req_2" {
		t.Fatalf("entries = %v", entries)
	}
}

func TestOpen_File(t *testing.T) {
	s, err := Open(t.TempDir() + "/data/journal.db")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Enqueued(context.Background(), request(t, "req_f", time.Now())); err != nil {
		t.Fatal(err)
	}
}
