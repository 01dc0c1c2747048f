package domain

import "context"

// TxRunner runs fn inside a single database transaction. Repository calls
// made with the ctx passed to fn join that transaction. If fn returns an
// error the transaction is rolled back and the error is returned unchanged,
// so a failed checkout leaves no partial counter update behind.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
