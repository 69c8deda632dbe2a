package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Ref points at a single stock row: the variation when VariationID is set,
// otherwise the product's aggregate row.
type Ref struct {
	ProductID   string
	VariationID string
}

func (r Ref) ID() string {
	if r.VariationID != "" {
		return r.VariationID
	}
	return r.ProductID
}

// Decrement is one conditional stock subtraction within a checkout.
type Decrement struct {
	Ref    Ref
	Amount int
}

// LowStockItem is a row at or below its configured minimum.
type LowStockItem struct {
	ProductID   string
	VariationID string
	Name        string
	Color       string
	SizeNumber  *int
	Quantity    int
	Threshold   int
}

// Ledger owns every mutation of quantity columns. Reads may happen anywhere,
// but writes go through the conditional operations here so counts can never
// go negative.
type Ledger struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

func (l *Ledger) GetAvailable(ctx context.Context, ref Ref) (int, error) {
	var q string
	if ref.VariationID != "" {
		q = `SELECT quantity FROM variations WHERE id=$1`
	} else {
		q = `SELECT stock FROM products WHERE id=$1`
	}
	var n int
	err := l.DB.QueryRow(ctx, q, ref.ID()).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", ref.ID(), ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Decrement runs the conditional subtraction in its own transaction.
func (l *Ledger) Decrement(ctx context.Context, ref Ref, amount int) (int, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	n, err := l.DecrementTx(ctx, tx, ref, amount)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// DecrementTx subtracts amount inside the caller's transaction. The update
// only matches when the row still holds enough quantity; a miss is resolved
// into ErrNotFound or InsufficientStockError by re-reading the row.
func (l *Ledger) DecrementTx(ctx context.Context, tx pgx.Tx, ref Ref, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("invalid decrement amount %d for %s", amount, ref.ID())
	}

	var upd, probe string
	if ref.VariationID != "" {
		upd = `UPDATE variations SET quantity = quantity - $2, updated_at = now()
		       WHERE id=$1 AND quantity >= $2 RETURNING quantity`
		probe = `SELECT v.quantity, p.name FROM variations v
		         JOIN products p ON p.id = v.product_id WHERE v.id=$1`
	} else {
		upd = `UPDATE products SET stock = stock - $2, updated_at = now()
		       WHERE id=$1 AND stock >= $2 RETURNING stock`
		probe = `SELECT stock, name FROM products WHERE id=$1`
	}

	var remaining int
	err := tx.QueryRow(ctx, upd, ref.ID(), amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var available int
	var name string
	err = tx.QueryRow(ctx, probe, ref.ID()).Scan(&available, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", ref.ID(), ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientStockError{ID: ref.ID(), Name: name, Requested: amount, Available: available}
}

// SetLevels is the administrative override for quantity and minimum
// threshold. Nil fields are left unchanged. The id may reference either a
// variation or a product; variations are tried first.
func (l *Ledger) SetLevels(ctx context.Context, id string, quantity, minThreshold *int) error {
	ct, err := l.DB.Exec(ctx, `
		UPDATE variations SET
			quantity     = COALESCE($2, quantity),
			min_quantity = COALESCE($3, min_quantity),
			updated_at   = now()
		WHERE id=$1`, id, quantity, minThreshold)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		ct, err = l.DB.Exec(ctx, `
			UPDATE products SET
				stock      = COALESCE($2, stock),
				min_stock  = COALESCE($3, min_stock),
				updated_at = now()
			WHERE id=$1`, id, quantity, minThreshold)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
	}
	if l.Log != nil {
		l.Log.Info("stock levels updated", zap.String("id", id))
	}
	return nil
}

// ListBelowThreshold feeds the low-stock sweep: every variation and product
// with a configured minimum whose quantity dropped under it.
func (l *Ledger) ListBelowThreshold(ctx context.Context) ([]LowStockItem, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT v.product_id, v.id, p.name, v.color, v.size_number, v.quantity, v.min_quantity
		FROM variations v
		JOIN products p ON p.id = v.product_id
		WHERE v.min_quantity IS NOT NULL AND v.quantity < v.min_quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockItem
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.ProductID, &it.VariationID, &it.Name, &it.Color, &it.SizeNumber, &it.Quantity, &it.Threshold); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := l.DB.Query(ctx, `
		SELECT id, name, stock, min_stock FROM products
		WHERE min_stock IS NOT NULL AND stock < min_stock`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var it LowStockItem
		if err := prows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.Threshold); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, prows.Err()
}
