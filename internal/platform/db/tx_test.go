package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	err := ClassifyError(&pgconn.PgError{Code: "23505", ConstraintName: "invoice_item_number_key"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	err = ClassifyError(fmt.Errorf("get: %w", pgx.ErrNoRows))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	plain := errors.New("other")
	if ClassifyError(plain) != plain {
		t.Error("expected unrelated error to pass through")
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}

func TestPassthroughRunner(t *testing.T) {
	called := false
	err := PassthroughRunner{}.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run without error, called=%v err=%v", called, err)
	}
}

func newRetryManager() *TxManager {
	return &TxManager{logger: zerolog.Nop(), maxRetries: 3, retryInterval: time.Millisecond}
}

func TestTxManager_RetriesSerializationFailures(t *testing.T) {
	m := newRetryManager()
	retries := 0
	m.OnRetry(func() { retries++ })

	calls := 0
	err := m.retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestTxManager_GivesUpAfterMaxRetries(t *testing.T) {
	m := newRetryManager()
	calls := 0
	err := m.retry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 1 attempt plus 3 retries, got %d", calls)
	}
}

func TestTxManager_DoesNotRetryOtherErrors(t *testing.T) {
	m := newRetryManager()
	calls := 0
	err := m.retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "invoice_item_number_key"})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestTxManager_StopsOnCancelledContext(t *testing.T) {
	m := newRetryManager()
	m.retryInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := m.retry(ctx, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}
