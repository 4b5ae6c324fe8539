package pg

import (
	"context"
	"database/sql"
	"time"

	"soundoff.org/internal/ratelimit"
)

// RateCounter is the Postgres-backed sliding-window counter, shared across
// API instances. Each check takes a per-key advisory lock for the duration of
// its transaction, so two concurrent evaluations of the same key cannot both
// read the pre-increment count and slip past the cap.
type RateCounter struct {
	db *sql.DB
}

var _ ratelimit.Counter = (*RateCounter)(nil)

// NewRateCounter constructs the counter over an existing pool.
func NewRateCounter(db *sql.DB) *RateCounter { return &RateCounter{db: db} }

func (c *RateCounter) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (ratelimit.Result, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Result{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Serializes concurrent checks for the same key; released on
	// commit/rollback. Read committed alone would let two transactions
	// count the same pre-increment total.
	if _, err := tx.ExecContext(ctx, `
		select pg_advisory_xact_lock(hashtext($1))
	`, key); err != nil {
		return ratelimit.Result{}, err
	}

	// One clock for cutoff and insert, so DB/app clock skew cannot
	// stretch or shrink the window.
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		delete from rate_events where key=$1 and occurred_at <= $2
	`, key, now.Add(-window)); err != nil {
		return ratelimit.Result{}, err
	}

	var count int
	var oldest sql.NullTime
	if err := tx.QueryRowContext(ctx, `
		select count(*), min(occurred_at) from rate_events where key=$1
	`, key).Scan(&count, &oldest); err != nil {
		return ratelimit.Result{}, err
	}

	if count >= limit {
		if err := tx.Commit(); err != nil {
			return ratelimit.Result{}, err
		}
		retry := time.Second
		if oldest.Valid {
			if until := oldest.Time.Add(window).Sub(now); until > retry {
				retry = until
			}
		}
		return ratelimit.Result{Allowed: false, RetryAfter: retry}, nil
	}

	if _, err := tx.ExecContext(ctx, `
		insert into rate_events(key, occurred_at) values ($1, $2)
	`, key, now); err != nil {
		return ratelimit.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return ratelimit.Result{}, err
	}
	return ratelimit.Result{Allowed: true, Remaining: limit - count - 1}, nil
}
