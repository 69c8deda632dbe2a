package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/catalog"
	"github.com/mateusvf/storefront-checkout/internal/checkout"
	kafkax "github.com/mateusvf/storefront-checkout/internal/kafka"
	"github.com/mateusvf/storefront-checkout/internal/orders"
	"github.com/mateusvf/storefront-checkout/internal/redisx"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

type Handler struct {
	Checkout *checkout.Orchestrator
	Orders   *orders.Repo
	Stock    *stock.Ledger
	Catalog  *catalog.Reader
	Producer *kafkax.Producer // order.created
	Redis    *redis.Client
	Service  string
	Log      *zap.Logger
}

type CreateOrderReq struct {
	CustomerID string                 `json:"customer_id"`
	ExternalID string                 `json:"external_id,omitempty"`
	Items      []checkout.ItemRequest `json:"items"`
}

type CheckoutReq struct {
	CustomerID      string                 `json:"customer_id"`
	ExternalID      string                 `json:"external_id,omitempty"`
	Items           []checkout.ItemRequest `json:"items"`
	DeliveryAddress *orders.Address        `json:"delivery_address"`
}

type UpdateStockReq struct {
	Quantity     *int `json:"quantity,omitempty"`
	MinThreshold *int `json:"min_threshold,omitempty"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type OrderResp struct {
	OrderID    string            `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	Total      string            `json:"total"`
	Address    *orders.Address   `json:"delivery_address,omitempty"`
	Items      []orders.LineItem `json:"items"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toOrderResp(o *orders.Order) OrderResp {
	return OrderResp{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Total:      o.Total.StringFixed(2),
		Address:    o.Address,
		Items:      o.Items,
		CreatedAt:  o.CreatedAt,
	}
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/checkout", h.checkoutOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateOrderStatus)
	r.Patch("/stock/{id}", h.updateStock)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var short *stock.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "insufficient stock",
			"item":      short.Name,
			"id":        short.ID,
			"requested": short.Requested,
			"available": short.Available,
		})
	case errors.Is(err, checkout.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, stock.ErrNotFound),
		errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		if h.Log != nil {
			h.Log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// replayFromCache serves a repeated external id straight from the Redis
// shortcut. The DB lookup inside the orchestrator remains the source of
// truth when the key has expired.
func (h *Handler) replayFromCache(ctx context.Context, w http.ResponseWriter, externalID string) bool {
	if h.Redis == nil || externalID == "" {
		return false
	}
	id, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, externalID)).Result()
	if err != nil || id == "" {
		return false
	}
	ord, err := h.Orders.Get(ctx, id)
	if err != nil {
		return false
	}
	writeJSON(w, http.StatusOK, toOrderResp(ord))
	return true
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.replayFromCache(ctx, w, req.ExternalID) {
		return
	}

	ord, err := h.Checkout.PlaceOrder(ctx, checkout.Request{
		Mode:       checkout.ModeBackOffice,
		CustomerID: req.CustomerID,
		ExternalID: req.ExternalID,
		Items:      req.Items,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.afterCommit(ctx, ord, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusCreated, toOrderResp(ord))
}

func (h *Handler) checkoutOrder(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.replayFromCache(ctx, w, req.ExternalID) {
		return
	}

	ord, err := h.Checkout.PlaceOrder(ctx, checkout.Request{
		Mode:       checkout.ModeStorefront,
		CustomerID: req.CustomerID,
		ExternalID: req.ExternalID,
		Items:      req.Items,
		Address:    req.DeliveryAddress,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.afterCommit(ctx, ord, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusCreated, toOrderResp(ord))
}

// afterCommit records the idempotency shortcut, caches the order body and
// publishes the order.created event. All best effort: the order is already
// durable.
func (h *Handler) afterCommit(ctx context.Context, ord *orders.Order, traceID string) {
	if h.Redis != nil {
		if ord.ExternalID != "" {
			idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, ord.ExternalID)
			_ = h.Redis.Set(ctx, idemKey, ord.ID, redisx.TTLIdempotency).Err()
		}
		body, err := json.Marshal(toOrderResp(ord))
		if err == nil {
			_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrder, ord.ID), body, redisx.TTLOrderCache).Err()
		}
	}

	if h.Producer == nil {
		return
	}
	ev := alerts.Envelope{
		EventID:       uuid.NewString(),
		EventType:     alerts.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: ord.ID,
		Payload: kafkax.MustMarshal(alerts.OrderCreatedPayload{
			OrderID:    ord.ID,
			ExternalID: ord.ExternalID,
			CustomerID: ord.CustomerID,
			Status:     string(ord.Status),
			Total:      ord.Total,
			Items:      ord.Items,
		}),
	}
	h.Producer.Publish(alerts.PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(alerts.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	ord, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := toOrderResp(ord)
	if h.Redis != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Orders.UpdateStatus(ctx, orderID, orders.Status(req.Status)); err != nil {
		h.writeError(w, err)
		return
	}
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrder, orderID)).Err()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Quantity == nil && req.MinThreshold == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
		return
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must not be negative"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Stock.SetLevels(ctx, id, req.Quantity, req.MinThreshold); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
