package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/config"
	kafkax "github.com/mateusvf/storefront-checkout/internal/kafka"
	"github.com/mateusvf/storefront-checkout/internal/monitor"
	"github.com/mateusvf/storefront-checkout/internal/postgres"
	"github.com/mateusvf/storefront-checkout/internal/redisx"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, alerts.TopicStockLow, 1024, log)
	prod.Start(ctx)

	sweeper := &monitor.Sweeper{
		Stock: &stock.Ledger{DB: db, Log: log},
		Alerts: &alerts.KafkaEmitter{
			Producer: prod,
			Redis:    rdb,
			Service:  cfg.ServiceName + "-monitor",
			Log:      log,
		},
		Log:      log,
		Interval: cfg.SweepInterval,
	}

	go sweeper.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down monitor...")
	cancel()
	prod.Close()
	prod.WaitClosed()
}
