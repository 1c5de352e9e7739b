package repository

import (
	"context"
	"database/sql"
	"errors"

	"op-platform/core/internal/otp/domain"
	"op-platform/core/internal/platform/errs"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP record repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, identifier, channel, purpose, code_hash, is_used, is_sent, send_count, verify_count, account_id, device_info, created_at, expires_at`

// GetActive returns the unused, unexpired record for the tuple, or nil if none exists.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetActive(ctx context.Context, identifier string, channel domain.Channel, purpose domain.Purpose) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM otp_records
		WHERE identifier = $1 AND channel = $2 AND purpose = $3
		  AND is_used = FALSE AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1`,
		identifier, string(channel), string(purpose),
	)
	return scanRecord(row)
}

// CreateOrRefresh keeps the one-active-record invariant: when an active record
// exists for the tuple it is refreshed in place (new code hash and expiry,
// send_count incremented, verify_count reset); otherwise a new row is inserted.
func (r *PostgresRepository) CreateOrRefresh(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE otp_records
		SET code_hash = $4, expires_at = $5, is_sent = FALSE,
		    send_count = send_count + 1, verify_count = 0
		WHERE identifier = $1 AND channel = $2 AND purpose = $3
		  AND is_used = FALSE AND expires_at > now()
		RETURNING `+recordColumns,
		rec.Identifier, string(rec.Channel), string(rec.Purpose), rec.CodeHash, rec.ExpiresAt,
	)
	updated, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	rec.SendCount = 1
	rec.VerifyCount = 0
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO otp_records (id, identifier, channel, purpose, code_hash, is_used, is_sent, send_count, verify_count, account_id, device_info, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6, 0, $7, $8, $9, $10)`,
		rec.ID, rec.Identifier, string(rec.Channel), string(rec.Purpose), rec.CodeHash,
		rec.SendCount, nullString(rec.AccountID), nullString(rec.DeviceInfo),
		rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// IncrementVerifyCount atomically bumps the attempt counter via a single
// UPDATE ... RETURNING, so concurrent verify attempts each observe a distinct
// count and the ceiling check cannot be raced past.
func (r *PostgresRepository) IncrementVerifyCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otp_records SET verify_count = verify_count + 1 WHERE id = $1 RETURNING verify_count`,
		id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

// MarkUsed terminally consumes the record. The is_used predicate makes
// consumption first-writer-wins: a record already marked used reports
// ErrNotFound, so concurrent validations of one code cannot both succeed.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE otp_records SET is_used = TRUE WHERE id = $1 AND is_used = FALSE`, id)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// MarkUsedByIdentifier consumes every active record for the identifier. Used
// when the live entry was matched and the audit shadow must follow; zero rows
// is not an error.
func (r *PostgresRepository) MarkUsedByIdentifier(ctx context.Context, identifier string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE otp_records SET is_used = TRUE
		WHERE identifier = $1 AND is_used = FALSE AND expires_at > now()`,
		identifier)
	return err
}

// MarkSent records that the out-of-band dispatch succeeded.
func (r *PostgresRepository) MarkSent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE otp_records SET is_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// DeleteExpired removes every record past its expiry and returns the count.
// Scoped by the expiry predicate only, so it is safe against live traffic.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_records WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func oneRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanRecord(row *sql.Row) (*domain.Record, error) {
	var rec domain.Record
	var channel, purpose string
	var accountID, deviceInfo sql.NullString
	err := row.Scan(&rec.ID, &rec.Identifier, &channel, &purpose, &rec.CodeHash,
		&rec.Used, &rec.Sent, &rec.SendCount, &rec.VerifyCount,
		&accountID, &deviceInfo, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Channel = domain.Channel(channel)
	rec.Purpose = domain.Purpose(purpose)
	rec.AccountID = accountID.String
	rec.DeviceInfo = deviceInfo.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
