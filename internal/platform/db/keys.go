package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// IdempotencyStore remembers processed event keys so a redelivered task
// performs its side effect once.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module. A key claimed before yields
// shared.ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if key == "" || module == "" {
		return errors.New("platform/db: idempotency key and module required")
	}
	_, err := Conn(ctx, s.pool).Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1,$2,$3)`, key, module, time.Now().UTC())
	if IsUniqueViolation(err) {
		return shared.ErrIdempotencyConflict
	}
	return err
}

// Delete releases key so a failed delivery can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("platform/db: idempotency key required")
	}
	_, err := Conn(ctx, s.pool).Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Prune removes keys claimed before now-olderThan and returns how many
// were removed.
func (s *IdempotencyStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := Conn(ctx, s.pool).Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
