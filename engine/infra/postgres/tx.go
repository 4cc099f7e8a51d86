package postgres

import (
	"context"
	"fmt"

	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// WithTransaction executes fn within a single transaction. If fn returns an
// error or panics the transaction is rolled back; otherwise it is committed.
func (s *Store) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx store.Execer) error,
) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.FromContext(ctx).Warn("Transaction rollback failed after panic", "error", rbErr)
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.FromContext(ctx).Warn("Transaction rollback failed", "error", rbErr)
			}
		} else if cErr := tx.Commit(ctx); cErr != nil {
			err = fmt.Errorf("postgres: commit tx: %w", cErr)
		}
	}()
	return fn(ctx, pgxExecer{tx: tx})
}

type pgxExecer struct {
	tx pgx.Tx
}

func (e pgxExecer) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
