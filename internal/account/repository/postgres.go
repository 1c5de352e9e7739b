package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"op-platform/core/internal/account/domain"
	"op-platform/core/internal/platform/errs"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, name, phone, address, status, is_verified, user_id, google_id, facebook_id, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account for email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// Create persists the account. The account must have ID set.
// A duplicate email surfaces as errs.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, phone, address, status, is_verified, user_id, google_id, facebook_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Email, a.Name,
		nullString(a.Phone), nullString(a.Address),
		string(a.Status), a.Verified,
		nullString(a.UserID), nullString(a.GoogleID), nullString(a.FacebookID),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if errs.IsUniqueViolation(err) {
			return errs.ErrConflict
		}
		return err
	}
	return nil
}

// Update applies the explicitly set fields of upd to the account row.
// Nil pointers leave the corresponding column unchanged.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd domain.Update) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			name = COALESCE($2, name),
			phone = COALESCE($3, phone),
			address = COALESCE($4, address),
			updated_at = $5
		WHERE id = $1`,
		id, upd.Name, upd.Phone, upd.Address, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// UpdateStatus sets the account status. status must be a valid lifecycle state.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if !status.Valid() {
		return errors.New("invalid account status")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// MarkVerified sets the verification flag after a successful OTP check.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_verified = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

// SoftDelete marks the account deleted. The row is retained.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, domain.StatusDeleted)
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

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var phone, address, userID, googleID, facebookID sql.NullString
	var status string
	err := row.Scan(&a.ID, &a.Email, &a.Name, &phone, &address, &status, &a.Verified,
		&userID, &googleID, &facebookID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Phone = phone.String
	a.Address = address.String
	a.UserID = userID.String
	a.GoogleID = googleID.String
	a.FacebookID = facebookID.String
	a.Status = domain.Status(status)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
