// Package server is the HTTP boundary. Handlers stay thin: decode, call an
// engine, map the result. All business rules live in the services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	accountdomain "op-platform/core/internal/account/domain"
	accountservice "op-platform/core/internal/account/service"
	auditdomain "op-platform/core/internal/audit/domain"
	otpdomain "op-platform/core/internal/otp/domain"
	otpservice "op-platform/core/internal/otp/service"
	"op-platform/core/internal/ratelimit"
	sessiondomain "op-platform/core/internal/session/domain"
	sessionservice "op-platform/core/internal/session/service"
)

// AccountAPI is what the handlers need from the account engine.
type AccountAPI interface {
	Register(ctx context.Context, req accountservice.RegisterRequest) (*accountdomain.Account, error)
	Get(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	Activate(ctx context.Context, id string) error
	Update(ctx context.Context, id string, upd accountdomain.Update) error
	Delete(ctx context.Context, id string) error
}

// OTPAPI is what the handlers need from the OTP engine.
type OTPAPI interface {
	Issue(ctx context.Context, identifier string, channel otpdomain.Channel, purpose otpdomain.Purpose, opts otpservice.IssueOptions) (string, error)
	Verify(ctx context.Context, identifier, submitted string) error
}

// SessionAPI is what the handlers and auth middleware need from the session engine.
type SessionAPI interface {
	Issue(ctx context.Context, accountID, deviceInfo, ipAddress string) (*sessiondomain.Token, error)
	Authenticate(ctx context.Context, accessToken string) (*sessiondomain.Token, *accountdomain.Account, error)
	Revoke(ctx context.Context, accessToken string) error
	RevokeAll(ctx context.Context, accountID string) (int64, error)
	ListActive(ctx context.Context, accountID, currentToken string) ([]sessionservice.ActiveToken, error)
}

// LogAPI is what the log-listing handler needs from the request-log store.
type LogAPI interface {
	ListRecent(ctx context.Context, limit int) ([]*auditdomain.RequestLog, error)
}

// HealthChecker reports whether a named dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Server wires the engines behind a chi router.
type Server struct {
	accounts AccountAPI
	otp      OTPAPI
	sessions SessionAPI
	logs     LogAPI
	limiter  *ratelimit.Limiter
	health   map[string]HealthChecker
	logger   *zap.Logger
}

// New returns a Server. logs may be nil to omit the log-listing route;
// limiter may be nil to disable request limiting; health checkers may be nil.
func New(accounts AccountAPI, otp OTPAPI, sessions SessionAPI, logs LogAPI, limiter *ratelimit.Limiter, health map[string]HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		accounts: accounts,
		otp:      otp,
		sessions: sessions,
		logs:     logs,
		limiter:  limiter,
		health:   health,
		logger:   logger,
	}
}

// Router builds the route tree. extra middleware (request logging) is applied
// outermost, before rate limiting, so rejected requests are still recorded.
func (s *Server) Router(extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	for _, m := range extra {
		r.Use(m)
	}
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/register", s.handleRegister)
		api.Post("/otp/request", s.handleOTPRequest)
		api.Post("/otp/verify", s.handleOTPVerify)

		api.Group(func(priv chi.Router) {
			priv.Use(s.requireAuth)
			priv.Get("/account", s.handleAccountGet)
			priv.Patch("/account", s.handleAccountUpdate)
			priv.Delete("/account", s.handleAccountDelete)
			priv.Get("/sessions", s.handleSessionList)
			priv.Delete("/sessions/current", s.handleSessionRevokeCurrent)
			priv.Delete("/sessions", s.handleSessionRevokeAll)
			if s.logs != nil {
				priv.Get("/logs", s.handleLogList)
			}
		})
	})

	return r
}

// handleHealth pings each registered dependency with a short deadline.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.health))
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "up"
		}
	}
	writeJSON(w, status, map[string]any{"status": httpStatusWord(status), "dependencies": deps})
}

func httpStatusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
