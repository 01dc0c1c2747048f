package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/yourorg/librarian/internal/domain"
)

type txKey struct{}

// querier is the subset of *sql.DB / *sql.Tx the repositories need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// from returns the transaction bound to ctx, or the pool when none is.
func from(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxRunner implements domain.TxRunner over a *sql.DB. Checkout and return
// run their whole unit of work through this so the book counter and the
// ledger write commit or roll back together.
type TxRunner struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTxRunner creates a transaction runner
func NewTxRunner(db *sql.DB, logger *slog.Logger) *TxRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxRunner{db: db, logger: logger}
}

// WithinTx starts a transaction, stores it in ctx and runs fn. Lock and
// serialization failures surface as domain.ErrContention after rollback.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

var _ domain.TxRunner = (*TxRunner)(nil)
