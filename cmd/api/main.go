package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/catalog"
	"github.com/mateusvf/storefront-checkout/internal/checkout"
	"github.com/mateusvf/storefront-checkout/internal/config"
	"github.com/mateusvf/storefront-checkout/internal/httpx"
	kafkax "github.com/mateusvf/storefront-checkout/internal/kafka"
	"github.com/mateusvf/storefront-checkout/internal/orders"
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

	ordersProd := kafkax.NewProducer(cfg.KafkaBrokers, alerts.TopicOrderCreated, 1024, log)
	ordersProd.Start(ctx)
	alertsProd := kafkax.NewProducer(cfg.KafkaBrokers, alerts.TopicStockLow, 1024, log)
	alertsProd.Start(ctx)

	ledger := &stock.Ledger{DB: db, Log: log}
	repo := &orders.Repo{DB: db}
	reader := &catalog.Reader{DB: db}
	emitter := &alerts.KafkaEmitter{
		Producer: alertsProd,
		Redis:    rdb,
		Service:  cfg.ServiceName,
		Log:      log,
	}
	orch := &checkout.Orchestrator{
		Catalog: reader,
		Store:   &checkout.PGStore{DB: db, Orders: repo, Stock: ledger},
		Alerts:  emitter,
		Log:     log,
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Checkout: orch,
		Orders:   repo,
		Stock:    ledger,
		Catalog:  reader,
		Producer: ordersProd,
		Redis:    rdb,
		Service:  cfg.ServiceName,
		Log:      log,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	ordersProd.Close()
	alertsProd.Close()
	cancel()
	ordersProd.WaitClosed()
	alertsProd.WaitClosed()
}
