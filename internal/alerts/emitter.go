package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/mateusvf/storefront-checkout/internal/kafka"
	"github.com/mateusvf/storefront-checkout/internal/redisx"
)

// Emitter is the single alerting channel shared by the checkout orchestrator
// and the low-stock monitor.
type Emitter interface {
	LowStock(ctx context.Context, p LowStockPayload) error
}

// Publisher is the slice of kafka.Producer the emitter needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaEmitter logs a structured warning and publishes the alert event.
// Redis, when present, throttles repeat alerts per stock row so an hourly
// sweep does not re-announce the same shortage.
type KafkaEmitter struct {
	Producer Publisher
	Redis    *redis.Client
	Service  string
	Log      *zap.Logger
}

func (e *KafkaEmitter) LowStock(ctx context.Context, p LowStockPayload) error {
	id := p.VariationID
	if id == "" {
		id = p.ProductID
	}

	if e.Redis != nil {
		key := fmt.Sprintf(redisx.KeyLowStock, id)
		if seen, err := redisx.Exists(ctx, e.Redis, key); err == nil && seen {
			return nil
		}
		_ = e.Redis.Set(ctx, key, "1", redisx.TTLLowStock).Err()
	}

	if e.Log != nil {
		e.Log.Warn("low stock",
			zap.String("product_id", p.ProductID),
			zap.String("variation_id", p.VariationID),
			zap.String("name", p.Name),
			zap.String("color", p.Color),
			zap.Int("quantity", p.Quantity),
			zap.Int("threshold", p.Threshold),
		)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventLowStock,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: id,
		Payload:       kafkax.MustMarshal(p),
	}
	e.Producer.Publish(PartitionKey(id), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventLowStock)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
