// The sweeper runs the periodic expiry passes: expired OTP records, expired
// session tokens, and stale request logs.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	accountrepo "op-platform/core/internal/account/repository"
	auditrepo "op-platform/core/internal/audit/repository"
	"op-platform/core/internal/config"
	"op-platform/core/internal/db"
	otprepo "op-platform/core/internal/otp/repository"
	otpservice "op-platform/core/internal/otp/service"
	"op-platform/core/internal/security"
	sessionrepo "op-platform/core/internal/session/repository"
	sessionservice "op-platform/core/internal/session/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer database.Close()

	otp := otpservice.NewOTPService(
		otprepo.NewPostgresRepository(database),
		nil, // sweeps never touch the ephemeral store; Redis entries expire on their own
		nil,
		security.NewHasher(cfg.BcryptCost),
		otpservice.Config{},
		logger,
	)
	sessions := sessionservice.NewSessionService(
		sessionrepo.NewPostgresRepository(database),
		accountrepo.NewPostgresRepository(database),
		security.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL()),
		logger,
	)
	logs := auditrepo.NewPostgresRepository(database)
	retention := time.Duration(cfg.LogRetentionDays) * 24 * time.Hour

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := cfg.SweepInterval()
	logger.Info("sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if _, err := otp.SweepExpired(runCtx); err != nil {
			logger.Warn("otp sweep failed", zap.Error(err))
		}
		if _, err := sessions.SweepExpired(runCtx); err != nil {
			logger.Warn("token sweep failed", zap.Error(err))
		}
		if retention > 0 {
			cutoff := time.Now().UTC().Add(-retention)
			if n, err := logs.DeleteOlderThan(runCtx, cutoff); err != nil {
				logger.Warn("request log sweep failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("deleted stale request logs", zap.Int64("count", n))
			}
		}
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
