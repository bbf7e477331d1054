package main

import (
	"context"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runSweeper re-checks every active product and runs due auto-reorders on an
// interval. With Redis, only the replica holding the lock sweeps.
func runSweeper(ctx context.Context, every time.Duration, rdb *redis.Client, inv *inventory.Ledger, log *zap.Logger) error {
	if every <= 0 {
		log.Info("inventory sweep disabled")
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if rdb != nil {
			ok, err := redisx.TryLock(ctx, rdb, "inventory-sweep", every)
			if err != nil {
				log.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
			} else if !ok {
				continue
			}
		}
		if _, err := inv.Sweep(ctx); err != nil {
			log.Warn("inventory sweep failed", zap.Error(err))
		}
		sum, err := inv.ProcessAutoReorders(ctx)
		if err != nil {
			log.Warn("auto-reorder pass failed", zap.Error(err))
			continue
		}
		if sum.Reordered > 0 || sum.Errors > 0 {
			log.Info("auto-reorder pass", zap.Int("reordered", sum.Reordered), zap.Int("errors", sum.Errors))
		}
	}
}
