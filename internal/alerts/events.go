package alerts

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mateusvf/storefront-checkout/internal/orders"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

const (
	EventLowStock     = "StockLow"
	EventOrderCreated = "OrderCreated"

	TopicStockLow     = "stock.low"
	TopicOrderCreated = "order.created"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type LowStockPayload struct {
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	SizeNumber  *int   `json:"size_number,omitempty"`
	Quantity    int    `json:"quantity"`
	Threshold   int    `json:"threshold"`
}

func LowStockFromItem(it stock.LowStockItem) LowStockPayload {
	return LowStockPayload{
		ProductID:   it.ProductID,
		VariationID: it.VariationID,
		Name:        it.Name,
		Color:       it.Color,
		SizeNumber:  it.SizeNumber,
		Quantity:    it.Quantity,
		Threshold:   it.Threshold,
	}
}

type OrderCreatedPayload struct {
	OrderID    string            `json:"order_id"`
	ExternalID string            `json:"external_id,omitempty"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	Total      decimal.Decimal   `json:"total"`
	Items      []orders.LineItem `json:"items"`
}

// Events for one subject stay on one partition.
func PartitionKey(id string) []byte { return []byte(id) }
