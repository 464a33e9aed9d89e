package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/cases"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
)

// Runtime is the composition root: every service wired onto shared
// infrastructure. Embedding callers construct one Runtime and drive
// the engine through its services.
type Runtime struct {
	Config *Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Quotations *quotations.Service
	Orders     *orders.Service
	Inventory  *inventory.Service
	Receivable *ar.Service
	Cases      *cases.Service
	Audit      *audit.Recorder
}

// NewRuntime connects infrastructure and wires the service graph.
// Redis is optional: when the connection fails the profitability
// snapshot cache is disabled and everything else still works.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var (
		redisClient   *redis.Client
		snapshotCache cases.SnapshotCache
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, snapshot cache disabled", slog.Any("error", err))
		} else {
			snapshotCache = cases.NewRedisSnapshotCache(redisClient)
		}
	}

	numbers := numbering.NewSource(pool)
	recorder := audit.NewRecorder(pool, logger)

	quoteRepo := quotations.NewRepository(pool)
	orderRepo := orders.NewRepository(pool)
	invRepo := inventory.NewRepository(pool)
	arRepo := ar.NewRepository(pool)
	caseRepo := cases.NewRepository(pool)

	inventorySvc := inventory.NewService(invRepo, recorder)

	return &Runtime{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Redis:      redisClient,
		Quotations: quotations.NewService(quoteRepo, numbers),
		Orders:     orders.NewService(orderRepo, quoteRepo, inventorySvc, numbers),
		Inventory:  inventorySvc,
		Receivable: ar.NewService(arRepo, orderRepo, numbers, recorder),
		Cases:      cases.NewService(caseRepo, numbers, snapshotCache, cfg.ProfitCacheTTL),
		Audit:      recorder,
	}, nil
}

// Close releases infrastructure connections.
func (r *Runtime) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}
