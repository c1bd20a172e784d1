package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type contextKey string

const DBTxKey contextKey = "db_tx"

// PostgreSQL error codes that drive retry and conflict handling.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	// ErrConflict is returned when a write collides with a unique constraint,
	// e.g. two invoices racing for the same number.
	ErrConflict = errors.New("conflicting write")
	// ErrSerialization is returned when a serializable transaction kept
	// failing after all retries.
	ErrSerialization = errors.New("transaction could not be serialized")
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("record not found")
)

// TxFromContext retrieves the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ContextWithTx binds tx to ctx so that repositories join it.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// Queryable is the subset of pgx shared by pools, connections and transactions.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Conn returns the transaction bound to ctx, falling back to pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxRunner runs fn inside a single atomic unit of work. Services depend on
// this interface so tests can substitute a pass-through runner.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxManager opens SERIALIZABLE transactions on a pool and retries them when
// PostgreSQL reports a serialization failure or a deadlock. The
// check-then-write sequences of the billing rules (interval overlap, act
// limits, invoice numbering) rely on this isolation level.
type TxManager struct {
	pool          *pgxpool.Pool
	logger        zerolog.Logger
	maxRetries    uint64
	retryInterval time.Duration
	onRetry       func()
}

// NewTxManager creates a TxManager with three retries.
func NewTxManager(pool *pgxpool.Pool, logger zerolog.Logger) *TxManager {
	return &TxManager{
		pool:          pool,
		logger:        logger,
		maxRetries:    3,
		retryInterval: 25 * time.Millisecond,
	}
}

// OnRetry registers a callback invoked before each retry (used for metrics).
func (m *TxManager) OnRetry(fn func()) { m.onRetry = fn }

// InTx runs fn in a transaction. A transaction already bound to ctx is
// reused, so nested service calls share one unit of work.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	return m.retry(ctx, func() error { return m.runOnce(ctx, fn) })
}

// retry runs op until it succeeds, fails with a non-retryable error or the
// retries are exhausted, backing off exponentially between attempts.
func (m *TxManager) retry(ctx context.Context, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval
	b.MaxElapsedTime = 0
	err := backoff.RetryNotify(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, m.maxRetries), ctx),
		func(err error, wait time.Duration) {
			if m.onRetry != nil {
				m.onRetry()
			}
			m.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying serializable transaction")
		})
	if IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return ClassifyError(err)
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsRetryable reports whether err is a transient serialization failure.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// ClassifyError maps PostgreSQL constraint errors to package sentinels.
// Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// PassthroughRunner runs fn directly. It backs in-memory repositories in
// tests and tools that need no isolation.
type PassthroughRunner struct{}

func (PassthroughRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
