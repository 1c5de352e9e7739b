package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	accountdomain "op-platform/core/internal/account/domain"
	"op-platform/core/internal/platform/errs"
	"op-platform/core/internal/ratelimit"
	sessiondomain "op-platform/core/internal/session/domain"
)

type contextKey string

const (
	ctxAccount contextKey = "account"
	ctxToken   contextKey = "token"
)

// AccountFrom returns the authenticated account stored by requireAuth.
func AccountFrom(ctx context.Context) (*accountdomain.Account, bool) {
	a, ok := ctx.Value(ctxAccount).(*accountdomain.Account)
	return a, ok
}

// TokenFrom returns the authenticated token row stored by requireAuth.
func TokenFrom(ctx context.Context) (*sessiondomain.Token, bool) {
	t, ok := ctx.Value(ctxToken).(*sessiondomain.Token)
	return t, ok
}

// requireAuth resolves the Authorization bearer against the token store and
// stashes token and account in the request context. No bearer, an unknown
// bearer, or a revoked/expired row all end the request with 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" {
			writeError(w, s.logger, errs.ErrUnauthorized)
			return
		}
		token, acct, err := s.sessions.Authenticate(r.Context(), bearer)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxAccount, acct)
		ctx = context.WithValue(ctx, ctxToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the per-client fixed window. When the limiter's Redis is
// unreachable the request is rejected, not waved through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			key := ratelimit.RequestKey(clientAddr(r), r.URL.Path)
			if err := s.limiter.Allow(r.Context(), key); err != nil {
				writeError(w, s.logger, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
