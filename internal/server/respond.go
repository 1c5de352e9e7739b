package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"op-platform/core/internal/platform/errs"
)

// errorBody is the JSON shape of every error response. Code is a stable
// machine-readable string; Error is for humans.
type errorBody struct {
	Code       string `json:"code"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the service error taxonomy to a transport status and a
// stable code. Unclassified errors are logged and become a generic 500 so
// internals never leak to clients.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if rl, ok := errs.RateLimited(err); ok {
		secs := int(rl.RetryAfter.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Code: "rate_limited", Error: err.Error(), RetryAfter: secs,
		})
		return
	}

	var notActive *errs.AccountNotActiveError
	if errors.As(err, &notActive) {
		writeJSON(w, http.StatusForbidden, errorBody{Code: "account_not_active", Error: err.Error()})
		return
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Error: err.Error()})
	case errors.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Code: "conflict", Error: err.Error()})
	case errors.Is(err, errs.ErrInvalidOrExpired):
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_or_expired", Error: err.Error()})
	case errors.Is(err, errs.ErrAttemptsExceeded):
		writeJSON(w, http.StatusForbidden, errorBody{Code: "attempts_exceeded", Error: err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Error: err.Error()})
	case errors.Is(err, errs.ErrDependencyUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "dependency_unavailable", Error: "a backing service is unavailable, retry later"})
	default:
		if logger != nil {
			logger.Error("unhandled error", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal server error"})
	}
}

// decodeJSON reads the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Error: msg})
}
