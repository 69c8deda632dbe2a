package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mateusvf/storefront-checkout/internal/alerts"
	"github.com/mateusvf/storefront-checkout/internal/stock"
)

// Scanner is the slice of the stock ledger the sweep reads.
type Scanner interface {
	ListBelowThreshold(ctx context.Context) ([]stock.LowStockItem, error)
}

// Sweeper periodically scans for rows under their minimum and reports them
// on the shared alert channel. It only reads: stock is never mutated here,
// and a failed pass is logged and retried on the next tick.
type Sweeper struct {
	Stock    Scanner
	Alerts   alerts.Emitter
	Log      *zap.Logger
	Interval time.Duration

	// Ticks replaces the interval ticker when set.
	Ticks <-chan time.Time
}

func (s *Sweeper) Run(ctx context.Context) {
	ticks := s.Ticks
	if ticks == nil {
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		ticks = t.C
	}
	s.logger().Info("low-stock monitor started", zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger().Info("low-stock monitor stopped")
			return
		case <-ticks:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many alerts were emitted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	items, err := s.Stock.ListBelowThreshold(ctx)
	if err != nil {
		s.logger().Warn("low-stock sweep failed", zap.Error(err))
		return 0
	}

	emitted := 0
	for _, it := range items {
		if err := s.Alerts.LowStock(ctx, alerts.LowStockFromItem(it)); err != nil {
			s.logger().Warn("low-stock alert emission failed",
				zap.String("product_id", it.ProductID),
				zap.String("variation_id", it.VariationID),
				zap.Error(err),
			)
			continue
		}
		emitted++
	}
	if emitted > 0 {
		s.logger().Info("low-stock sweep complete", zap.Int("alerts", emitted))
	}
	return emitted
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
