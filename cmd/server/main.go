package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	accountrepo "op-platform/core/internal/account/repository"
	accountservice "op-platform/core/internal/account/service"
	"op-platform/core/internal/audit"
	auditrepo "op-platform/core/internal/audit/repository"
	"op-platform/core/internal/cache"
	"op-platform/core/internal/config"
	"op-platform/core/internal/db"
	"op-platform/core/internal/identity"
	"op-platform/core/internal/notify"
	otprepo "op-platform/core/internal/otp/repository"
	otpservice "op-platform/core/internal/otp/service"
	"op-platform/core/internal/ratelimit"
	"op-platform/core/internal/security"
	"op-platform/core/internal/server"
	sessionrepo "op-platform/core/internal/session/repository"
	sessionservice "op-platform/core/internal/session/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer database.Close()

	redisClient, err := cache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer redisClient.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	tokenProvider := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL())

	var dispatcher notify.Dispatcher = notify.Noop{}
	if cfg.SMTPHost != "" {
		dispatcher = notify.NewSMTPDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	accounts := accountservice.NewAccountService(
		accountrepo.NewPostgresRepository(database),
		identity.NewClient(cfg.UsersServiceURL),
		logger,
	)
	otp := otpservice.NewOTPService(
		otprepo.NewPostgresRepository(database),
		otprepo.NewRedisCodeStore(redisClient),
		dispatcher,
		hasher,
		otpservice.Config{
			CodeLength:  cfg.OTPLength,
			Expiry:      cfg.OTPExpiry(),
			MaxResends:  cfg.OTPMaxResends,
			Cooldown:    cfg.OTPCooldown(),
			MaxAttempts: cfg.OTPMaxAttempts,
		},
		logger,
	)
	sessions := sessionservice.NewSessionService(
		sessionrepo.NewPostgresRepository(database),
		accountrepo.NewPostgresRepository(database),
		tokenProvider,
		logger,
	)

	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimitMaxRequests, cfg.RateLimitWindow())

	auditRepo := auditrepo.NewPostgresRepository(database)
	recorder := audit.NewRecorder(
		auditRepo,
		logger,
		func(ctx context.Context) {
			if _, err := sessions.SweepExpired(ctx); err != nil {
				logger.Warn("piggy-backed token sweep failed", zap.Error(err))
			}
		},
		cfg.SweepInterval(),
	)

	srv := server.New(accounts, otp, sessions, auditRepo, limiter, map[string]server.HealthChecker{
		"postgres": database.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(recorder.Middleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
