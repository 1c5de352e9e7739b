package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"op-platform/core/internal/audit/domain"
)

type memorySink struct {
	mu   sync.Mutex
	logs []*domain.RequestLog
}

func (m *memorySink) Create(_ context.Context, l *domain.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memorySink) all() []*domain.RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.RequestLog(nil), m.logs...)
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, nil, time.Hour)

	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/otp/verify", nil)
	req.RemoteAddr = "10.1.2.3:5511"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	logs := sink.all()
	if len(logs) != 1 {
		t.Fatalf("recorded %d logs, want 1", len(logs))
	}
	l := logs[0]
	if l.Method != http.MethodPost || l.URL != "/api/v1/otp/verify" {
		t.Fatalf("recorded %s %s", l.Method, l.URL)
	}
	if l.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", l.StatusCode, http.StatusTeapot)
	}
	if l.IPAddress != "10.1.2.3" {
		t.Fatalf("ip = %q, want host without port", l.IPAddress)
	}
	if l.UserAgent != "test-agent" {
		t.Fatalf("user agent = %q", l.UserAgent)
	}
}

func TestMiddlewareDefaultsStatusTo200(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, nil, time.Hour)

	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler writes nothing.
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := sink.all()[0].StatusCode; got != http.StatusOK {
		t.Fatalf("status = %d, want 200", got)
	}
}

func TestSweepThrottled(t *testing.T) {
	sink := &memorySink{}
	var mu sync.Mutex
	var sweeps int
	done := make(chan struct{}, 16)

	rec := NewRecorder(sink, nil, func(context.Context) {
		mu.Lock()
		sweeps++
		mu.Unlock()
		done <- struct{}{}
	}, time.Hour)

	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected one sweep to run")
	}

	// No second sweep inside the gap.
	select {
	case <-done:
		t.Fatal("sweep ran twice inside the gap")
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	if sweeps != 1 {
		t.Fatalf("sweeps = %d, want 1", sweeps)
	}
}
