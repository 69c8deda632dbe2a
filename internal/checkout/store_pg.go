package checkout

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mateusvf/storefront-checkout/internal/orders"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

// PGStore is the postgres Committer: one transaction around the order
// insert and every conditional decrement. A decrement that matches zero rows
// surfaces as InsufficientStockError and rolls the whole checkout back.
type PGStore struct {
	DB     *pgxpool.Pool
	Orders *orders.Repo
	Stock  *stock.Ledger
}

func (s *PGStore) FindByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	return s.Orders.FindByExternalID(ctx, externalID)
}

func (s *PGStore) Commit(ctx context.Context, o *orders.Order, decs []stock.Decrement) ([]int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Orders.InsertTx(ctx, tx, o); err != nil {
		return nil, err
	}

	remaining := make([]int, len(decs))
	for i, d := range decs {
		n, err := s.Stock.DecrementTx(ctx, tx, d.Ref, d.Amount)
		if err != nil {
			return nil, err
		}
		remaining[i] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return remaining, nil
}
