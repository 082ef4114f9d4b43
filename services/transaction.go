package services

import (
	"context"

	"github.com/upb/governance-ledger/repositories"
)

// WithTransactionResult runs fn inside txMgr.InTransaction and returns its result.
// fn receives the transaction's context so repository calls join it; a call made
// while ctx already carries a transaction joins the outer one. On error the zero
// value is returned and the transaction is rolled back.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var result T
	err := txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		r, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
