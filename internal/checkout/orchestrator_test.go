package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/catalog"
	"github.com/mateusvf/storefront-checkout/internal/orders"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

type memCatalog struct {
	products   map[string]*catalog.Product
	variations map[string]*catalog.Variation
}

func (c *memCatalog) Product(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
	}
	return p, nil
}

func (c *memCatalog) Variation(_ context.Context, id string) (*catalog.Variation, error) {
	v, ok := c.variations[id]
	if !ok {
		return nil, fmt.Errorf("variation %s: %w", id, catalog.ErrNotFound)
	}
	return v, nil
}

// memStore implements Committer with the same contract as PGStore: the
// conditional check happens at commit time under a lock, and a shortage
// rolls the whole checkout back.
type memStore struct {
	mu      sync.Mutex
	levels  map[string]int
	names   map[string]string
	orders  map[string]*orders.Order
	byExt   map[string]string
	commits int
}

func newMemStore(levels map[string]int) *memStore {
	return &memStore{
		levels: levels,
		names:  map[string]string{},
		orders: map[string]*orders.Order{},
		byExt:  map[string]string{},
	}
}

func (s *memStore) FindByExternalID(_ context.Context, externalID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return nil, fmt.Errorf("external_id %s: %w", externalID, orders.ErrNotFound)
	}
	return s.orders[id], nil
}

func (s *memStore) Commit(_ context.Context, o *orders.Order, decs []stock.Decrement) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range decs {
		cur, ok := s.levels[d.Ref.ID()]
		if !ok {
			return nil, fmt.Errorf("%s: %w", d.Ref.ID(), stock.ErrNotFound)
		}
		if cur < d.Amount {
			return nil, &stock.InsufficientStockError{
				ID:        d.Ref.ID(),
				Name:      s.names[d.Ref.ID()],
				Requested: d.Amount,
				Available: cur,
			}
		}
	}

	remaining := make([]int, len(decs))
	for i, d := range decs {
		s.levels[d.Ref.ID()] -= d.Amount
		remaining[i] = s.levels[d.Ref.ID()]
	}
	s.orders[o.ID] = o
	if o.ExternalID != "" {
		s.byExt[o.ExternalID] = o.ID
	}
	s.commits++
	return remaining, nil
}

type spyEmitter struct {
	mu       sync.Mutex
	payloads []alerts.LowStockPayload
	fail     error
}

func (e *spyEmitter) LowStock(_ context.Context, p alerts.LowStockPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, p)
	return e.fail
}

func intp(n int) *int { return &n }

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAddress() *orders.Address {
	return &orders.Address{
		Street:     "Rua das Flores",
		Number:     "101",
		District:   "Centro",
		City:       "Campinas",
		State:      "SP",
		PostalCode: "13010-000",
	}
}

func newOrchestrator(cat Catalog, store Committer, em alerts.Emitter) *Orchestrator {
	return &Orchestrator{
		Catalog: cat,
		Store:   store,
		Alerts:  em,
		Log:     zap.NewNop(),
		Now:     func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestPlaceOrder_TotalAndStock(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"P": 10})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	ord, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 2}},
	})
	require.NoError(t, err)
	require.True(t, ord.Total.Equal(price("10.00")), "total %s", ord.Total)
	require.Equal(t, orders.StatusInProgress, ord.Status)
	require.Equal(t, 8, store.levels["P"])
	require.Len(t, ord.Items, 1)
	require.True(t, ord.Items[0].UnitPrice.Equal(price("5.00")))

	// total always equals the sum over the snapshot
	sum := decimal.Zero
	for _, it := range ord.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	require.True(t, ord.Total.Equal(sum))
}

func TestPlaceOrder_InsufficientStockPreCheck(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 1},
	}}
	store := newMemStore(map[string]int{"P": 1})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 2}},
	})
	var short *stock.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, 2, short.Requested)
	require.Equal(t, 1, short.Available)
	require.Equal(t, "Mug", short.Name)
	require.Equal(t, 1, store.levels["P"], "stock must be unchanged")
	require.Zero(t, store.commits)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{}}
	store := newMemStore(map[string]int{})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "ghost", Quantity: 1}},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Zero(t, store.commits)
}

func TestPlaceOrder_AtomicCommit(t *testing.T) {
	// The catalog snapshot is stale: the pre-check passes for all three
	// lines, but the committer only has one unit left for p3. Nothing may
	// be applied.
	cat := &memCatalog{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "A", UnitPrice: price("1.00"), Stock: 10},
		"p2": {ID: "p2", Name: "B", UnitPrice: price("2.00"), Stock: 10},
		"p3": {ID: "p3", Name: "C", UnitPrice: price("3.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"p1": 10, "p2": 10, "p3": 1})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 2},
			{ProductID: "p3", Quantity: 2},
		},
	})
	var short *stock.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, "p3", short.ID)
	require.Equal(t, 1, short.Available)

	require.Equal(t, 10, store.levels["p1"])
	require.Equal(t, 10, store.levels["p2"])
	require.Equal(t, 1, store.levels["p3"])
	require.Empty(t, store.orders)
}

func TestPlaceOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 3},
	}}
	store := newMemStore(map[string]int{"P": 3})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = orch.PlaceOrder(context.Background(), Request{
				Mode:       ModeBackOffice,
				CustomerID: fmt.Sprintf("c%d", i),
				Items:      []ItemRequest{{ProductID: "P", Quantity: 2}},
			})
		}()
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var ins *stock.InsufficientStockError
		require.ErrorAs(t, err, &ins)
		short++
	}
	require.Equal(t, 1, ok, "exactly one checkout must win")
	require.Equal(t, 1, short)
	require.Equal(t, 1, store.levels["P"], "final quantity must be 1, never negative")
}

func TestPlaceOrder_ModeInitialStatus(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"P": 10})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	ord, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeStorefront,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 1}},
		Address:    testAddress(),
	})
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, ord.Status)
	require.NotNil(t, ord.Address)
	require.Equal(t, "Campinas", ord.Address.City)
}

func TestPlaceOrder_StorefrontRequiresAddress(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"P": 10})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeStorefront,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 1}},
	})
	require.ErrorContains(t, err, "delivery address")

	incomplete := testAddress()
	incomplete.City = ""
	_, err = orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeStorefront,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 1}},
		Address:    incomplete,
	})
	require.ErrorContains(t, err, "city")
	require.Zero(t, store.commits)
}

func TestPlaceOrder_BackOfficeRejectsVariations(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"P": 10})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", VariationID: "V", Quantity: 1}},
	})
	require.ErrorContains(t, err, "aggregate product stock")
}

func TestPlaceOrder_VariationMustBelongToProduct(t *testing.T) {
	cat := &memCatalog{
		products: map[string]*catalog.Product{
			"P": {ID: "P", Name: "Shoe", UnitPrice: price("50.00"), Stock: 0},
		},
		variations: map[string]*catalog.Variation{
			"V": {ID: "V", ProductID: "other", Color: "black", Quantity: 5},
		},
	}
	store := newMemStore(map[string]int{"V": 5})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeStorefront,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", VariationID: "V", Quantity: 1}},
		Address:    testAddress(),
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 10},
	}}
	store := newMemStore(map[string]int{"P": 10})
	orch := newOrchestrator(cat, store, &spyEmitter{})

	req := Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		ExternalID: "ext-1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 2}},
	}
	first, err := orch.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := orch.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, store.commits, "replay must not commit again")
	require.Equal(t, 8, store.levels["P"], "stock decremented exactly once")
}

func TestPlaceOrder_EmitsLowStockAfterCommit(t *testing.T) {
	size := 38
	cat := &memCatalog{
		products: map[string]*catalog.Product{
			"P": {ID: "P", Name: "Sneaker", UnitPrice: price("120.00"), Stock: 0},
		},
		variations: map[string]*catalog.Variation{
			"V": {ID: "V", ProductID: "P", Color: "black", SizeNumber: &size, Quantity: 6, MinQuantity: intp(5)},
		},
	}
	store := newMemStore(map[string]int{"V": 6})
	em := &spyEmitter{}
	orch := newOrchestrator(cat, store, em)

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeStorefront,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", VariationID: "V", Quantity: 2}},
		Address:    testAddress(),
	})
	require.NoError(t, err)

	require.Len(t, em.payloads, 1)
	p := em.payloads[0]
	require.Equal(t, "V", p.VariationID)
	require.Equal(t, "Sneaker", p.Name)
	require.Equal(t, "black", p.Color)
	require.Equal(t, 4, p.Quantity)
	require.Equal(t, 5, p.Threshold)
}

func TestPlaceOrder_NoAlertAboveThreshold(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 100, MinStock: intp(5)},
	}}
	store := newMemStore(map[string]int{"P": 100})
	em := &spyEmitter{}
	orch := newOrchestrator(cat, store, em)

	_, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Empty(t, em.payloads)
}

func TestPlaceOrder_AlertFailureDoesNotFailOrder(t *testing.T) {
	cat := &memCatalog{products: map[string]*catalog.Product{
		"P": {ID: "P", Name: "Mug", UnitPrice: price("5.00"), Stock: 3, MinStock: intp(5)},
	}}
	store := newMemStore(map[string]int{"P": 3})
	em := &spyEmitter{fail: errors.New("broker down")}
	orch := newOrchestrator(cat, store, em)

	ord, err := orch.PlaceOrder(context.Background(), Request{
		Mode:       ModeBackOffice,
		CustomerID: "c1",
		Items:      []ItemRequest{{ProductID: "P", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, ord)
	require.Len(t, em.payloads, 1, "emission was attempted")
}
