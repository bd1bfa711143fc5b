package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sosrelay/dbopen"
	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/journal"
	"github.com/hazyhaar/sosrelay/severity"
)

// fakeDeliverer delivers to every phone except those in fail, and tracks
// how many deliveries overlap.
type fakeDeliverer struct {
	mu      sync.Mutex
	phones  []string
	fail    map[string]bool
	delay   time.Duration
	active  atomic.Int32
	overlap atomic.Bool
	block   chan struct{}
}

func (f *fakeDeliverer) Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.phones = append(f.phones, req.Phone)
	f.mu.Unlock()

	now := time.Now()
	if f.fail[req.Phone] {
		return delivery.Result{
			RequestID: req.ID,
			Outcome:   delivery.AllStrategiesFailed,
			Attempts: []delivery.Attempt{{Strategy: "scheduled", Outcome: delivery.Failure,
				Kind: delivery.KindSchedulerFailed, Detail: "scheduler_failed: no display", StartedAt: now, EndedAt: now}},
		}, nil
	}
	return delivery.Result{
		RequestID: req.ID,
		Outcome:   delivery.Delivered,
		Strategy:  "attach",
		Attempts:  []delivery.Attempt{{Strategy: "attach", Outcome: delivery.Success, StartedAt: now, EndedAt: now}},
	}, nil
}

func (f *fakeDeliverer) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.phones...)
}

type fakeClassifier struct {
	err  error
	text string
}

func (c *fakeClassifier) Predict(_ context.Context, text string) (*severity.Prediction, error) {
	c.text = text
	if c.err != nil {
		return nil, c.err
	}
	conf := 0.9
	return &severity.Prediction{Label: "high", Level: severity.High, Confidence: &conf}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newService(t *testing.T, d Deliverer, opts ...Option) (*Service, *journal.Store) {
	t.Helper()
	store, err := journal.New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	all := append([]Option{WithJournal(store), WithLogger(quietLogger())}, opts...)
	return New(d, all...), store
}

func startWorker(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, s *Service, id string) *journal.Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		e, err := s.Status(context.Background(), id)
		if err == nil && e.Status != journal.StatusPending {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %s never finished", id)
	return nil
}

func TestService_SerialisesDeliveries(t *testing.T) {
	d := &fakeDeliverer{delay: 5 * time.Millisecond}
	s, _ := newService(t, d)
	ignore := goleak.IgnoreCurrent()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	var ids []string
	for _, p := range []string{"111", "222", "333", "444"} {
		r, _ := delivery.NewRequest(p, "hello")
		if err := s.Enqueue(context.Background(), r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	for _, id := range ids {
		waitStatus(t, s, id)
	}
	if d.overlap.Load() {
		t.Error("two deliveries ran concurrently")
	}
	if got := strings.Join(d.delivered(), ","); got != "111,222,333,444" {
		t.Errorf("order = %s", got)
	}

	cancel()
	<-stopped
	goleak.VerifyNone(t, ignore)
}

func TestService_DeliverNow(t *testing.T) {
	d := &fakeDeliverer{fail: map[string]bool{"999": true}}
	s, _ := newService(t, d)
	startWorker(t, s)

	r, _ := delivery.NewRequest("+999", "x")
	res, err := s.DeliverNow(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered() || len(res.Attempts) != 1 {
		t.Fatalf("result = %+v", res)
	}
	e, err := s.Status(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != string(delivery.AllStrategiesFailed) || e.Result.Attempts[0].Kind != delivery.KindSchedulerFailed {
		t.Errorf("journal entry = %+v", e)
	}
}

func TestService_QueueFull(t *testing.T) {
	d := &fakeDeliverer{block: make(chan struct{})}
	s, store := newService(t, d, WithQueueSize(1))
	startWorker(t, s)
	defer close(d.block)

	enqueue := func(phone string) (delivery.Request, error) {
		r, _ := delivery.NewRequest(phone, "x")
		return r, s.Enqueue(context.Background(), r)
	}
	if _, err := enqueue("111"); err != nil {
		t.Fatal(err)
	}
	// Wait for the worker to pick up the first request.
	for d.active.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	queued, err := enqueue("222")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	rejected, err := enqueue("333")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third enqueue err = %v, want ErrQueueFull", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, rejected.ID); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("rejected request journalled: err = %v", err)
	}
	e, err := store.Get(ctx, queued.ID)
	if err != nil {
		t.Fatalf("queued request: %v", err)
	}
	if e.Status != journal.StatusPending {
		t.Errorf("queued status = %q", e.Status)
	}
}

func TestService_RejectsInvalid(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{})
	if err := s.Enqueue(context.Background(), delivery.Request{ID: "req_x", Message: "x"}); !errors.Is(err, delivery.ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestComposeSOS(t *testing.T) {
	s := New(&fakeDeliverer{}, WithSignature("Sent via SafeVoice"))
	msg, err := s.ComposeSOS(SOS{
		MapsLink:    "https://maps.google.com/?q=28.61,77.20",
		TrackURL:    "https://safe.example/sos-track/ab12cd34",
		Description: "<b>Followed</b> near the <script>alert(1)</script>metro & bus stop",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "🚨 EMERGENCY ALERT 🚨\nI am in danger. Please help immediately!\n" +
		"\n📍 Live Location:\nhttps://maps.google.com/?q=28.61,77.20\n" +
		"\n(Real-time tracking started)\nTrack me live: https://safe.example/sos-track/ab12cd34\n" +
		"\nFollowed near the metro & bus stop\n" +
		"\nSent via SafeVoice"
	if msg != want {
		t.Errorf("message =\n%q\nwant\n%q", msg, want)
	}

	if _, err := s.ComposeSOS(SOS{MapsLink: "javascript:alert(1)"}); err == nil {
		t.Error("non-http maps link accepted")
	}
}

func TestRaiseSOS_OneRequestPerContact(t *testing.T) {
	d := &fakeDeliverer{}
	cl := &fakeClassifier{}
	s, _ := newService(t, d, WithClassifier(cl))
	startWorker(t, s)

	receipt, err := s.RaiseSOS(context.Background(), SOS{
		Contacts:    []Contact{{Name: "Mum", Phone: "+91 98765 43210"}, {Name: "Sam", Phone: "+1 555-0100"}},
		MapsLink:    "https://maps.google.com/?q=1,2",
		Description: "someone is <i>following</i> me",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(receipt.RequestIDs) != 2 {
		t.Fatalf("ids = %v", receipt.RequestIDs)
	}
	if receipt.Severity == nil || receipt.Severity.Level != severity.High {
		t.Errorf("severity = %+v", receipt.Severity)
	}
	if cl.text != "someone is following me" {
		t.Errorf("classified text = %q", cl.text)
	}
	for _, id := range receipt.RequestIDs {
		waitStatus(t, s, id)
	}
	if got := strings.Join(d.delivered(), ","); got != "919876543210,15550100" {
		t.Errorf("delivered = %s", got)
	}
}

func TestRaiseSOS_ClassifierFailureDoesNotBlock(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{}, WithClassifier(&fakeClassifier{err: errors.New("model not loaded")}))
	receipt, err := s.RaiseSOS(context.Background(), SOS{
		Contacts:    []Contact{{Phone: "123"}},
		Description: "help",
	})
	if err != nil || len(receipt.RequestIDs) != 1 || receipt.Severity != nil {
		t.Fatalf("receipt = %+v err = %v", receipt, err)
	}
}

func TestRaiseSOS_Invalid(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{})
	if _, err := s.RaiseSOS(context.Background(), SOS{}); !errors.Is(err, delivery.ErrInvalidRequest) {
		t.Errorf("no contacts: %v", err)
	}
	_, err := s.RaiseSOS(context.Background(), SOS{Contacts: []Contact{{Phone: "123"}, {Phone: "n/a"}}})
	if !errors.Is(err, delivery.ErrInvalidRequest) {
		t.Errorf("bad phone: %v", err)
	}
	if q := len(s.queue); q != 0 {
		t.Errorf("queued %d requests from an invalid SOS", q)
	}
}

func newRouter(s *Service, hash string) http.Handler {
	r := chi.NewRouter()
	s.Routes(r, hash)
	return r
}

func TestHTTP_AlertLifecycle(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{})
	startWorker(t, s)
	h := newRouter(s, "")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"phone":"+1 555-0100","message":"Test"}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST status %d: %s", w.Code, w.Body)
	}
	var resp alertResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || !strings.HasPrefix(resp.RequestID, "req_") {
		t.Fatalf("response %+v err %v", resp, err)
	}

	waitStatus(t, s, resp.RequestID)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts/"+resp.RequestID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status %d", w.Code)
	}
	var e journal.Entry
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Result == nil || e.Result.Strategy != "attach" {
		t.Errorf("entry = %+v", e)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts?limit=5", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), resp.RequestID) {
		t.Errorf("recent: %d %s", w.Code, w.Body)
	}
}

func TestHTTP_Errors(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{})
	h := newRouter(s, "")
	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/v1/alerts", `{"phone":"","message":"x"}`, http.StatusBadRequest},
		{http.MethodPost, "/v1/alerts", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/v1/sos", `{"contacts":[]}`, http.StatusBadRequest},
		{http.MethodGet, "/v1/alerts/req_unknown", "", http.StatusNotFound},
		{http.MethodGet, "/healthz", "", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
		if w.Code != tt.want {
			t.Errorf("%s %s: %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body)
		}
	}
}

func TestHTTP_QueueFullIs503(t *testing.T) {
	s, _ := newService(t, &fakeDeliverer{}, WithQueueSize(1))
	h := newRouter(s, "")
	body := `{"phone":"123","message":"x"}`
	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(body)))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusServiceUnavailable {
		t.Errorf("codes = %v", codes)
	}
}

func TestHTTP_BearerAuth(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("tok"), bcrypt.MinCost)
	s, _ := newService(t, &fakeDeliverer{})
	h := newRouter(s, string(hash))

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"phone":"1","message":"x"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"phone":"1","message":"x"}`))
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("with token: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz must stay open: %d", w.Code)
	}
}
