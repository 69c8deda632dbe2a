package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Reader is the read-only catalog lookup used by checkout for pricing and
// availability pre-checks. It never mutates rows.
type Reader struct{ DB *pgxpool.Pool }

func (r *Reader) Product(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(category_id::text, ''), name, unit_price, stock, min_stock, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.CategoryID, &p.Name, &p.UnitPrice, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Reader) Variation(ctx context.Context, id string) (*Variation, error) {
	var v Variation
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, color, size_number, quantity, min_quantity, cost, created_at, updated_at
		FROM variations WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.Color, &v.SizeNumber, &v.Quantity, &v.MinQuantity, &v.Cost, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("variation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Reader) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, COALESCE(category_id::text, ''), name, unit_price, stock, min_stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.UnitPrice, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
