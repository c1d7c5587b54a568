// Package sweeper periodically re-checks referential integrity between
// entities and their derived indexes on the live store. It is read-only:
// discrepancies are logged and exported, never repaired in place.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"aphorist/pkg/commands"
	"aphorist/pkg/config"
	"aphorist/pkg/logger"
	"aphorist/pkg/migrate"
	"aphorist/pkg/telemetry"
)

// RunOnce executes a single sweep and returns the discrepancies found.
func RunOnce(ctx context.Context, store commands.Store, timeout time.Duration) ([]migrate.ValidationError, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	errs := migrate.ValidateIndexes(ctx, store)
	errs = append(errs, migrate.ValidateEntities(ctx, store)...)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}

	telemetry.SweepDiscrepancies.Set(float64(len(errs)))
	if len(errs) > 0 {
		logger.Warn("sweep_found_discrepancies", "count", len(errs), "took", time.Since(start).String())
	} else {
		logger.Info("sweep_clean", "took", time.Since(start).String())
	}
	return errs, nil
}

// Start starts the sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, store commands.Store, cfg config.SweepConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "*/30 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cfg.Cron)
	}

	logger.Info("sweep_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, store, cronExpr, cfg.Timeout.Duration())
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, store commands.Store, cronExpr string, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("sweep_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := RunOnce(ctx, store, timeout); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}
