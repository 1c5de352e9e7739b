// Package audit records request logs and hosts the opportunistic sweep hook.
package audit

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"op-platform/core/internal/audit/domain"
)

// LogSink is where recorded requests go.
type LogSink interface {
	Create(ctx context.Context, l *domain.RequestLog) error
}

// SweepFunc runs a maintenance sweep. Called from request handling, so it
// must bound its own work.
type SweepFunc func(ctx context.Context)

// Recorder is HTTP middleware that writes one log row per request. It also
// piggy-backs a sweep on request traffic, throttled so at most one sweep runs
// per interval regardless of request volume.
type Recorder struct {
	sink      LogSink
	logger    *zap.Logger
	sweep     SweepFunc
	sweepGap  time.Duration
	lastSweep atomic.Int64 // unix nanos of the last sweep
}

// NewRecorder returns a Recorder writing to sink. sweep may be nil.
func NewRecorder(sink LogSink, logger *zap.Logger, sweep SweepFunc, sweepGap time.Duration) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sweepGap <= 0 {
		sweepGap = 15 * time.Minute
	}
	return &Recorder{sink: sink, logger: logger, sweep: sweep, sweepGap: sweepGap}
}

// Middleware wraps next, recording method, path, status, client address, and
// latency. Recording happens after the response is written and never affects
// the response itself.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		entry := &domain.RequestLog{
			ID:         uuid.New().String(),
			Method:     r.Method,
			URL:        r.URL.Path,
			StatusCode: ww.Status(),
			IPAddress:  clientIP(r),
			UserAgent:  r.UserAgent(),
			Duration:   time.Since(start),
			CreatedAt:  start.UTC(),
		}
		if entry.StatusCode == 0 {
			entry.StatusCode = http.StatusOK
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := rec.sink.Create(ctx, entry); err != nil {
			rec.logger.Warn("request log write failed", zap.Error(err))
		}

		rec.maybeSweep()
	})
}

// maybeSweep triggers the sweep if the gap has elapsed. A CAS on the
// timestamp keeps concurrent requests from starting duplicate sweeps.
func (rec *Recorder) maybeSweep() {
	if rec.sweep == nil {
		return
	}
	now := time.Now().UnixNano()
	last := rec.lastSweep.Load()
	if now-last < rec.sweepGap.Nanoseconds() {
		return
	}
	if !rec.lastSweep.CompareAndSwap(last, now) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rec.sweep(ctx)
	}()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
