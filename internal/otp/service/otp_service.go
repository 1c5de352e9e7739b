package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"op-platform/core/internal/notify"
	"op-platform/core/internal/otp/domain"
	"op-platform/core/internal/platform/errs"
	"op-platform/core/internal/security"
)

// writeTimeout bounds store writes that must complete even when the caller's
// request has been aborted, so no partial OTP state is left behind.
const writeTimeout = 5 * time.Second

// RecordRepo is the durable side of OTP storage needed by the engine.
type RecordRepo interface {
	GetActive(ctx context.Context, identifier string, channel domain.Channel, purpose domain.Purpose) (*domain.Record, error)
	CreateOrRefresh(ctx context.Context, r *domain.Record) (*domain.Record, error)
	IncrementVerifyCount(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string) error
	MarkUsedByIdentifier(ctx context.Context, identifier string) error
	MarkSent(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// CodeStore is the ephemeral side of OTP storage needed by the engine.
type CodeStore interface {
	SaveCode(ctx context.Context, identifier, code string, ttl time.Duration) error
	GetCode(ctx context.Context, identifier string) (string, error)
	ConsumeCode(ctx context.Context, identifier string) (string, error)
	DeleteCode(ctx context.Context, identifier string) error
	IncrementAttempts(ctx context.Context, identifier string, window time.Duration) (int64, error)
	IncrementResend(ctx context.Context, identifier string, window time.Duration) (int64, error)
	ResendTTL(ctx context.Context, identifier string) (time.Duration, error)
	SetCooldown(ctx context.Context, identifier string, ttl time.Duration) error
}

// Config holds the engine's ceilings and windows.
type Config struct {
	CodeLength  int
	Expiry      time.Duration
	MaxResends  int
	Cooldown    time.Duration
	MaxAttempts int
}

// IssueOptions carries the optional context of an issuance.
type IssueOptions struct {
	AccountID   string
	DeviceInfo  string
	DisplayName string
}

// OTPService generates, stores, validates, and expires one-time codes. The
// ephemeral store is the live single-use path; the durable record is the
// audit shadow. Both paths enforce the verify-attempt ceiling.
type OTPService struct {
	records    RecordRepo
	codes      CodeStore
	dispatcher notify.Dispatcher
	hasher     *security.Hasher
	cfg        Config
	logger     *zap.Logger
}

// NewOTPService returns an OTPService with the given dependencies.
func NewOTPService(records RecordRepo, codes CodeStore, dispatcher notify.Dispatcher, hasher *security.Hasher, cfg Config, logger *zap.Logger) *OTPService {
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 5 * time.Minute
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OTPService{
		records:    records,
		codes:      codes,
		dispatcher: dispatcher,
		hasher:     hasher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Issue generates a fresh code for the identifier, replacing any live entry,
// and refreshes the durable record in place. Issuing past the resend ceiling
// within the cooldown window fails with RateLimitedError carrying the
// remaining window. Delivery is dispatched out of band and never rolls back
// issuance. Returns the plaintext code.
func (s *OTPService) Issue(ctx context.Context, identifier string, channel domain.Channel, purpose domain.Purpose, opts IssueOptions) (string, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" {
		return "", errors.New("identifier is required")
	}
	if !channel.Valid() {
		return "", errors.New("invalid channel")
	}
	if !purpose.Valid() {
		return "", errors.New("invalid purpose")
	}

	sent, err := s.codes.IncrementResend(ctx, identifier, s.cfg.Cooldown)
	if err != nil {
		return "", err
	}
	if sent > int64(s.cfg.MaxResends) {
		retryAfter, ttlErr := s.codes.ResendTTL(ctx, identifier)
		if ttlErr != nil {
			retryAfter = s.cfg.Cooldown
		}
		return "", &errs.RateLimitedError{RetryAfter: retryAfter}
	}

	code := generateCode(s.cfg.CodeLength)
	codeHash, err := s.hasher.Hash([]byte(code))
	if err != nil {
		return "", err
	}

	// Once past the ceiling check the writes must land even if the request
	// is aborted mid-flight.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.codes.SaveCode(wctx, identifier, code, s.cfg.Expiry); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	rec, err := s.records.CreateOrRefresh(wctx, &domain.Record{
		ID:         uuid.New().String(),
		Identifier: identifier,
		Channel:    channel,
		Purpose:    purpose,
		CodeHash:   codeHash,
		AccountID:  opts.AccountID,
		DeviceInfo: opts.DeviceInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Expiry),
	})
	if err != nil {
		return "", errs.Dependency(err)
	}

	go s.dispatch(rec.ID, identifier, code, opts.DisplayName)

	return code, nil
}

// Verify checks submitted against the live entry for identifier. A match
// atomically consumes the entry and marks the durable record used, so
// replaying the same code fails on both paths. Repeated
// mismatches burn the attempt budget; hitting the ceiling discards the entry
// and locks the identifier out until a new code is issued.
func (s *OTPService) Verify(ctx context.Context, identifier, submitted string) error {
	identifier = strings.TrimSpace(strings.ToLower(identifier))

	stored, err := s.codes.GetCode(ctx, identifier)
	if err != nil {
		return err
	}
	if stored == "" {
		return errs.ErrInvalidOrExpired
	}

	if submitted != stored {
		attempts, err := s.codes.IncrementAttempts(ctx, identifier, s.cfg.Expiry)
		if err != nil {
			return err
		}
		if attempts >= int64(s.cfg.MaxAttempts) {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
			defer cancel()
			_ = s.codes.DeleteCode(wctx, identifier)
			_ = s.codes.SetCooldown(wctx, identifier, s.cfg.Cooldown)
			return errs.ErrAttemptsExceeded
		}
		return errs.ErrInvalidOrExpired
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	consumed, err := s.codes.ConsumeCode(wctx, identifier)
	if err != nil {
		return err
	}
	if consumed != submitted {
		// A concurrent verify consumed the entry between the read and here.
		return errs.ErrInvalidOrExpired
	}
	if err := s.records.MarkUsedByIdentifier(wctx, identifier); err != nil {
		s.logger.Warn("mark durable otp record used failed",
			zap.String("identifier", identifier), zap.Error(err))
	}
	return nil
}

// ValidateDurable checks code against the durable record for the tuple. This
// is the audit/fallback path: every attempt bumps the record's verify count,
// and past the ceiling even the correct code fails until a new OTP is issued.
// A used record never validates again.
func (s *OTPService) ValidateDurable(ctx context.Context, identifier, code string, channel domain.Channel, purpose domain.Purpose) error {
	identifier = strings.TrimSpace(strings.ToLower(identifier))

	rec, err := s.records.GetActive(ctx, identifier, channel, purpose)
	if err != nil {
		return errs.Dependency(err)
	}
	if rec == nil {
		return errs.ErrInvalidOrExpired
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	count, err := s.records.IncrementVerifyCount(wctx, rec.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrInvalidOrExpired
		}
		return errs.Dependency(err)
	}

	if s.hasher.Compare(rec.CodeHash, []byte(code)) != nil {
		if count >= s.cfg.MaxAttempts {
			_ = s.codes.SetCooldown(wctx, identifier, s.cfg.Cooldown)
			return errs.ErrAttemptsExceeded
		}
		return errs.ErrInvalidOrExpired
	}

	if count > s.cfg.MaxAttempts {
		_ = s.codes.SetCooldown(wctx, identifier, s.cfg.Cooldown)
		return errs.ErrAttemptsExceeded
	}

	if err := s.records.MarkUsed(wctx, rec.ID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Another validation consumed the record first.
			return errs.ErrInvalidOrExpired
		}
		return errs.Dependency(err)
	}
	return nil
}

// SweepExpired deletes every durable record past its expiry and returns the
// count removed. Meant for the background sweeper, not the request path.
func (s *OTPService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.records.DeleteExpired(ctx)
	if err != nil {
		return 0, errs.Dependency(err)
	}
	if n > 0 {
		s.logger.Info("swept expired otp records", zap.Int64("count", n))
	}
	return n, nil
}

func (s *OTPService) dispatch(recordID, identifier, code, displayName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.dispatcher.SendCode(ctx, identifier, code, displayName); err != nil {
		s.logger.Warn("otp dispatch failed", zap.String("identifier", identifier), zap.Error(err))
		return
	}
	if err := s.records.MarkSent(ctx, recordID); err != nil {
		s.logger.Warn("mark sent failed", zap.String("record_id", recordID), zap.Error(err))
	}
}

// generateCode returns a fixed-length numeric code. Codes are short-lived and
// single-use, so math/rand is sufficient.
func generateCode(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		digits[i] = byte('0' + rand.IntN(10))
	}
	return string(digits)
}
