package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/catalog"
	"github.com/mateusvf/storefront-checkout/internal/orders"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

// Mode selects the request shape: back-office order entry works on aggregate
// product stock and carries no address; storefront checkout requires a
// delivery address and may target a specific variation.
type Mode string

const (
	ModeBackOffice Mode = "BACK_OFFICE"
	ModeStorefront Mode = "STOREFRONT"
)

// ErrInvalidRequest marks malformed requests so the API boundary can map
// them to a client error.
var ErrInvalidRequest = errors.New("invalid request")

func (m Mode) initialStatus() orders.Status {
	if m == ModeBackOffice {
		return orders.StatusInProgress
	}
	return orders.StatusPending
}

type ItemRequest struct {
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

type Request struct {
	Mode       Mode
	CustomerID string
	// ExternalID, when set, makes the request replay-safe: a second call
	// with the same id returns the already-committed order untouched.
	ExternalID string
	Items      []ItemRequest
	Address    *orders.Address
}

// Catalog is the read-only price/stock lookup.
type Catalog interface {
	Product(ctx context.Context, id string) (*catalog.Product, error)
	Variation(ctx context.Context, id string) (*catalog.Variation, error)
}

// Committer persists one checkout atomically: the order row, its line-item
// snapshot and every conditional stock decrement commit together or not at
// all. Commit returns the post-decrement quantity per decrement, in order.
type Committer interface {
	FindByExternalID(ctx context.Context, externalID string) (*orders.Order, error)
	Commit(ctx context.Context, o *orders.Order, decs []stock.Decrement) ([]int, error)
}

type Orchestrator struct {
	Catalog Catalog
	Store   Committer
	Alerts  alerts.Emitter
	Log     *zap.Logger

	// Now overrides the commit timestamp clock.
	Now func() time.Time
}

// pricedLine is the per-item working state between validation and the
// post-commit low-stock check.
type pricedLine struct {
	item      orders.LineItem
	dec       stock.Decrement
	threshold *int
	alert     alerts.LowStockPayload
}

// PlaceOrder validates the requested items against the catalog, prices them
// server-side, and commits the order plus all stock decrements as one unit.
// The availability pre-check only exists to fail fast with a descriptive
// error; the Committer's conditional decrement is the authoritative guard.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req Request) (*orders.Order, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	if req.ExternalID != "" {
		existing, err := o.Store.FindByExternalID(ctx, req.ExternalID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}

	lines := make([]pricedLine, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		line, err := o.priceLine(ctx, it)
		if err != nil {
			return nil, err
		}
		total = total.Add(line.item.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		lines = append(lines, line)
	}

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	ord := &orders.Order{
		ID:         uuid.NewString(),
		ExternalID: req.ExternalID,
		CustomerID: req.CustomerID,
		Status:     req.Mode.initialStatus(),
		Total:      total,
		CreatedAt:  now().UTC(),
		Items:      make([]orders.LineItem, 0, len(lines)),
	}
	if req.Mode == ModeStorefront {
		addr := *req.Address
		ord.Address = &addr
	}
	decs := make([]stock.Decrement, 0, len(lines))
	for _, l := range lines {
		ord.Items = append(ord.Items, l.item)
		decs = append(decs, l.dec)
	}

	remaining, err := o.Store.Commit(ctx, ord, decs)
	if err != nil {
		var short *stock.InsufficientStockError
		if errors.As(err, &short) || errors.Is(err, stock.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("commit order %s: %w", ord.ID, err)
	}

	o.logger().Info("order committed",
		zap.String("order_id", ord.ID),
		zap.String("customer_id", ord.CustomerID),
		zap.String("status", string(ord.Status)),
		zap.String("total", ord.Total.StringFixed(2)),
	)

	o.emitLowStock(ctx, lines, remaining)
	return ord, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.Mode != ModeBackOffice && req.Mode != ModeStorefront {
		return fmt.Errorf("%w: unknown checkout mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item product id is required", ErrInvalidRequest)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: invalid quantity %d for product %s", ErrInvalidRequest, it.Quantity, it.ProductID)
		}
		if req.Mode == ModeBackOffice && it.VariationID != "" {
			return fmt.Errorf("%w: back-office orders operate on aggregate product stock, not variations", ErrInvalidRequest)
		}
	}
	if req.Mode == ModeStorefront {
		if req.Address == nil {
			return fmt.Errorf("%w: delivery address is required", ErrInvalidRequest)
		}
		if err := req.Address.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
		}
	}
	return nil
}

func (o *Orchestrator) priceLine(ctx context.Context, it ItemRequest) (pricedLine, error) {
	p, err := o.Catalog.Product(ctx, it.ProductID)
	if err != nil {
		return pricedLine{}, err
	}

	ref := stock.Ref{ProductID: it.ProductID}
	available := p.Stock
	threshold := p.MinStock
	alert := alerts.LowStockPayload{ProductID: p.ID, Name: p.Name}

	if it.VariationID != "" {
		v, err := o.Catalog.Variation(ctx, it.VariationID)
		if err != nil {
			return pricedLine{}, err
		}
		if v.ProductID != it.ProductID {
			return pricedLine{}, fmt.Errorf("variation %s does not belong to product %s: %w",
				it.VariationID, it.ProductID, catalog.ErrNotFound)
		}
		ref.VariationID = v.ID
		available = v.Quantity
		threshold = v.MinQuantity
		alert.VariationID = v.ID
		alert.Color = v.Color
		alert.SizeNumber = v.SizeNumber
	}

	if available < it.Quantity {
		return pricedLine{}, &stock.InsufficientStockError{
			ID:        ref.ID(),
			Name:      p.Name,
			Requested: it.Quantity,
			Available: available,
		}
	}

	return pricedLine{
		item: orders.LineItem{
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			Quantity:    it.Quantity,
			UnitPrice:   p.UnitPrice,
		},
		dec:       stock.Decrement{Ref: ref, Amount: it.Quantity},
		threshold: threshold,
		alert:     alert,
	}, nil
}

// emitLowStock warns for every line whose post-decrement quantity sits at or
// below its minimum. Best effort: an emitter failure never fails the order.
func (o *Orchestrator) emitLowStock(ctx context.Context, lines []pricedLine, remaining []int) {
	if o.Alerts == nil || len(remaining) != len(lines) {
		return
	}
	for i, l := range lines {
		if l.threshold == nil || remaining[i] > *l.threshold {
			continue
		}
		p := l.alert
		p.Quantity = remaining[i]
		p.Threshold = *l.threshold
		if err := o.Alerts.LowStock(ctx, p); err != nil {
			o.logger().Warn("low-stock alert emission failed",
				zap.String("product_id", p.ProductID),
				zap.String("variation_id", p.VariationID),
				zap.Error(err),
			)
		}
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}
