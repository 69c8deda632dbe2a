package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         string
	CategoryID string
	Name       string
	UnitPrice  decimal.Decimal
	// Stock is the aggregate count, used when the product has no variations.
	Stock     int
	MinStock  *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Variation struct {
	ID          string
	ProductID   string
	Color       string
	SizeNumber  *int
	Quantity    int
	MinQuantity *int
	Cost        *decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
