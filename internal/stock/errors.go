package stock

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("stock row not found")

// InsufficientStockError is returned both by the advisory pre-check and by
// the authoritative conditional decrement. It carries enough detail for the
// caller to adjust the cart.
type InsufficientStockError struct {
	ID        string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	label := e.Name
	if label == "" {
		label = e.ID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", label, e.Requested, e.Available)
}
