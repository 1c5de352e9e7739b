package repository

import (
	"context"
	"database/sql"
	"errors"

	"op-platform/core/internal/platform/errs"
	"op-platform/core/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, account_id, access_token, device_info, ip_address, is_active, created_at, expires_at`

// Create persists the token. The token must have ID and AccessToken set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_tokens (id, account_id, access_token, device_info, ip_address, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.AccountID, t.AccessToken,
		nullString(t.DeviceInfo), nullString(t.IPAddress),
		t.Active, t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		if errs.IsUniqueViolation(err) {
			return errs.ErrConflict
		}
		return err
	}
	return nil
}

// GetByAccessToken returns the token row for the bearer string, or nil if not
// found. The row is returned regardless of active flag or expiry; callers
// decide whether it is usable.
func (r *PostgresRepository) GetByAccessToken(ctx context.Context, accessToken string) (*domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM session_tokens WHERE access_token = $1`, accessToken)
	return scanToken(row)
}

// ListActiveByAccount returns the account's active, unexpired tokens, newest first.
func (r *PostgresRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]*domain.Token, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM session_tokens
		WHERE account_id = $1 AND is_active = TRUE AND expires_at > now()
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanTokenRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Revoke deactivates a single token by id.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE session_tokens SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// RevokeAllByAccount deactivates every active token the account holds and
// returns how many were revoked.
func (r *PostgresRepository) RevokeAllByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE session_tokens SET is_active = FALSE WHERE account_id = $1 AND is_active = TRUE`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeactivateExpired flips the active flag on rows past their expiry and
// returns the count. Rows are kept for audit; nothing is deleted here.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE session_tokens SET is_active = FALSE WHERE is_active = TRUE AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanToken(row *sql.Row) (*domain.Token, error) {
	var t domain.Token
	var device, ip sql.NullString
	err := row.Scan(&t.ID, &t.AccountID, &t.AccessToken, &device, &ip, &t.Active, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.DeviceInfo = device.String
	t.IPAddress = ip.String
	return &t, nil
}

func scanTokenRow(rows *sql.Rows) (*domain.Token, error) {
	var t domain.Token
	var device, ip sql.NullString
	if err := rows.Scan(&t.ID, &t.AccountID, &t.AccessToken, &device, &ip, &t.Active, &t.CreatedAt, &t.ExpiresAt); err != nil {
		return nil, err
	}
	t.DeviceInfo = device.String
	t.IPAddress = ip.String
	return &t, nil
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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
