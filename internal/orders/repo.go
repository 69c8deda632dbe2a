package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// InsertTx persists the order row and its line-item snapshot inside the
// caller's transaction. The checkout orchestrator runs this alongside the
// stock decrements so both commit or roll back together.
func (r *Repo) InsertTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, customer_id, status, total,
			street, number, complement, district, city, state, postal_code, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, nullStr(o.ExternalID), o.CustomerID, string(o.Status), o.Total,
		addrCol(o.Address, func(a *Address) string { return a.Street }),
		addrCol(o.Address, func(a *Address) string { return a.Number }),
		addrCol(o.Address, func(a *Address) string { return a.Complement }),
		addrCol(o.Address, func(a *Address) string { return a.District }),
		addrCol(o.Address, func(a *Address) string { return a.City }),
		addrCol(o.Address, func(a *Address) string { return a.State }),
		addrCol(o.Address, func(a *Address) string { return a.PostalCode }),
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, variation_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, nullStr(it.VariationID), it.Quantity, it.UnitPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var (
		o          Order
		status     string
		externalID *string
		street     *string
		addr       Address
		number, complement, district, city, state, postalCode *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, customer_id, status, total,
			street, number, complement, district, city, state, postal_code,
			created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &externalID, &o.CustomerID, &status, &o.Total,
			&street, &number, &complement, &district, &city, &state, &postalCode,
			&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if externalID != nil {
		o.ExternalID = *externalID
	}
	if street != nil {
		addr = Address{
			Street:     *street,
			Number:     deref(number),
			Complement: deref(complement),
			District:   deref(district),
			City:       deref(city),
			State:      deref(state),
			PostalCode: deref(postalCode),
		}
		o.Address = &addr
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, COALESCE(variation_id::text, ''), quantity, unit_price
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.VariationID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE external_id=$1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("external_id %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// UpdateStatus applies a back-office transition, enforcing the state machine.
// The line-item snapshot is never touched here: status is the only mutable
// field after creation.
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%s: %w", to, ErrInvalidTransition)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !CanTransition(Status(cur), to) {
		return fmt.Errorf("%s -> %s: %w", cur, to, ErrInvalidTransition)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(to)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func addrCol(a *Address, f func(*Address) string) *string {
	if a == nil {
		return nil
	}
	return nullStr(f(a))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
