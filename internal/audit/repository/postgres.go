package repository

import (
	"context"
	"database/sql"
	"time"

	"op-platform/core/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a request-log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the request log. The log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, l *domain.RequestLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO request_logs (id, method, url, status_code, ip_address, user_agent, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.Method, l.URL, l.StatusCode,
		nullString(l.IPAddress), nullString(l.UserAgent),
		l.Duration.Milliseconds(), l.CreatedAt,
	)
	return err
}

// ListRecent returns the newest limit logs.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*domain.RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, method, url, status_code, ip_address, user_agent, duration_ms, created_at
		FROM request_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RequestLog
	for rows.Next() {
		var l domain.RequestLog
		var ip, ua sql.NullString
		var ms int64
		if err := rows.Scan(&l.ID, &l.Method, &l.URL, &l.StatusCode, &ip, &ua, &ms, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.IPAddress = ip.String
		l.UserAgent = ua.String
		l.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes logs created before cutoff and returns the count.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM request_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
