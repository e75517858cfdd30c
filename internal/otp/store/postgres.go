package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// farFuture stands in for "no expiry" so expires_at can stay NOT NULL.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// PostgresStore keeps entries in the otp_kv table (see internal/db/migrations).
type PostgresStore struct {
	db   *sql.DB
	nowF func() time.Time
}

// NewPostgresStore returns a store over db. The otp_kv table must exist.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, nowF: time.Now}
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	exp := farFuture
	if ttl > 0 {
		exp = s.nowF().Add(ttl).UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otp_kv (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, exp)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM otp_kv WHERE key = $1 AND expires_at > $2`, key, s.nowF().UTC()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM otp_kv WHERE key = $1`, k); err != nil {
			return err
		}
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM otp_kv WHERE expires_at <= $1`, s.nowF().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PingContext checks connectivity for the readiness probe.
func (s *PostgresStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
