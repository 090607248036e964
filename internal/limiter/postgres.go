package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps limiter state in the auth_limiter table so every server process
// sees the same counters.
type PG struct {
	q   Querier
	cfg Settings
	now func() time.Time
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, cfg Settings) *PG {
	if cfg.MaxFails <= 0 {
		cfg.MaxFails = 5
	}
	return &PG{q: q, cfg: cfg, now: time.Now}
}

// Allow checks blocked_until for the pair.
func (l *PG) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if wait := blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success resets the counter and any block.
func (l *PG) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', $3)
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=EXCLUDED.updated_at`
	_, err := l.q.Exec(ctx, q, username, ipHash, l.now())
	return err
}

// Failure bumps the counter, restarting it when the previous failure fell
// outside the window, and blocks the pair once MaxFails is reached.
func (l *PG) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', $3)
ON CONFLICT (username, ip_hash) DO UPDATE
SET fail_count = CASE
      WHEN EXCLUDED.updated_at - auth_limiter.updated_at > $4::interval THEN 1
      ELSE auth_limiter.fail_count + 1
    END,
    updated_at = EXCLUDED.updated_at
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, username, ipHash, now, l.cfg.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.cfg.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, username, ipHash, now.Add(l.cfg.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.cfg.BlockFor, nil
}
