package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/config"
	kafkax "github.com/mateusvf/storefront-checkout/internal/kafka"
	"github.com/mateusvf/storefront-checkout/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	group := getenv("ALERTS_GROUP", "lowstock-alerts")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, alerts.TopicStockLow, workers, log)

	handle := func(ctx context.Context, m kafkago.Message) error {
		var env alerts.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return err
		}
		if env.EventType != alerts.EventLowStock {
			return nil
		}

		dkey := fmt.Sprintf(redisx.KeyDedup, "alerts", env.EventID)
		if seen, _ := redisx.Exists(ctx, rdb, dkey); seen {
			return nil
		}
		_ = rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

		p, err := kafkax.UnwrapPayload[alerts.LowStockPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Warn("low stock reported",
			zap.String("product_id", p.ProductID),
			zap.String("variation_id", p.VariationID),
			zap.String("name", p.Name),
			zap.String("color", p.Color),
			zap.Int("quantity", p.Quantity),
			zap.Int("threshold", p.Threshold),
			zap.String("producer", env.Producer),
		)
		return nil
	}

	go func() {
		log.Info("alert consumer started",
			zap.String("group", group),
			zap.String("topic", alerts.TopicStockLow),
			zap.Int("workers", workers),
		)
		if err := cons.Start(ctx, handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down alert consumer...")
	cancel()
}
