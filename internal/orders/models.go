package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("order not found")

// Address is the delivery address snapshot embedded in a customer order.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

func (a Address) Validate() error {
	switch {
	case a.Street == "":
		return errors.New("address: street is required")
	case a.Number == "":
		return errors.New("address: number is required")
	case a.District == "":
		return errors.New("address: district is required")
	case a.City == "":
		return errors.New("address: city is required")
	case a.State == "":
		return errors.New("address: state is required")
	case a.PostalCode == "":
		return errors.New("address: postal code is required")
	}
	return nil
}

// LineItem is the immutable per-line snapshot: quantity and the unit price
// read from the catalog at commit time. Later catalog changes never touch it.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	VariationID string          `json:"variation_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID         string
	ExternalID string
	CustomerID string
	Status     Status
	Total      decimal.Decimal
	Address    *Address
	Items      []LineItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
