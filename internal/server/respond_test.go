package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"op-platform/core/internal/platform/errs"
)

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", errs.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("account: %w", errs.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", errs.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid or expired", errs.ErrInvalidOrExpired, http.StatusBadRequest, "invalid_or_expired"},
		{"attempts exceeded", errs.ErrAttemptsExceeded, http.StatusForbidden, "attempts_exceeded"},
		{"unauthorized", errs.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"dependency", errs.Dependency(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "dependency_unavailable"},
		{"account not active", &errs.AccountNotActiveError{Reason: "suspended"}, http.StatusForbidden, "account_not_active"},
		{"rate limited", &errs.RateLimitedError{RetryAfter: 42 * time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, nil, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tc.wantCode)
			}
		})
	}
}

func TestWriteErrorRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil, &errs.RateLimitedError{RetryAfter: 90 * time.Second})
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Fatalf("Retry-After = %q, want 90", got)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.RetryAfter != 90 {
		t.Fatalf("retry_after_seconds = %d, want 90", body.RetryAfter)
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil, errors.New("pq: column does not exist"))
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal server error" {
		t.Fatalf("internal detail leaked: %q", body.Error)
	}
}
