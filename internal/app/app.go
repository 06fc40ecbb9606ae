// Package app assembles the portfolio engine from configuration: the
// ledger store, the price provider chain and the service facade.
package app

import (
	"context"
	"fmt"

	"github.com/hexastock/internal/adapter"
	"github.com/hexastock/internal/config"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/ratelimit"
	"github.com/hexastock/internal/retry"
	"github.com/hexastock/internal/service"
	"github.com/hexastock/internal/storage"
	"github.com/hexastock/internal/types"
)

// App holds the wired engine and the connections it owns
type App struct {
	Service *service.PortfolioService
	Prices  adapter.PriceProvider

	closers []func()
}

// Build connects the configured backends and wires the service facade.
// Connections opened before a failure are closed before returning.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	store, err := a.openLedger(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	prices, err := a.newPriceProvider(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Prices = prices
	a.Service = service.New(store, prices)
	return a, nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openLedger(ctx context.Context, cfg *config.Config) (service.Ledger, error) {
	logger := logging.GetGlobalLogger()

	switch cfg.Storage.Backend {
	case types.BackendPostgres:
		postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		a.closers = append(a.closers, postgres.Close)

		if err := storage.RunMigrations(cfg.Database.Postgres.PostgresDSN(), cfg.Storage.MigrationsPath); err != nil {
			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"host":     cfg.Database.Postgres.Host,
			"database": cfg.Database.Postgres.Database,
		}).Info("Postgres ledger ready")
		return storage.NewPostgresLedger(postgres), nil

	case types.BackendMemory:
		logger.Warn("Using in-memory ledger; state is lost on exit")
		return storage.NewMemoryLedger(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *App) newPriceProvider(ctx context.Context, cfg *config.Config) (adapter.PriceProvider, error) {
	logger := logging.GetGlobalLogger()

	var cache *storage.RedisCache
	useQuota := cfg.Price.Provider == types.PriceProviderYahoo && cfg.Price.QuotaLimit > 0
	useCache := cfg.Price.CacheTTL > 0
	if cfg.Database.Redis.Enabled() && (useQuota || useCache) {
		redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := redis.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis connection")
			}
		})
		cache = redis
	}

	var provider adapter.PriceProvider
	switch cfg.Price.Provider {
	case types.PriceProviderYahoo:
		retryConfig := retry.DefaultRetryConfig()
		retryConfig.MaxAttempts = cfg.Price.RetryAttempts
		yahoo := adapter.YahooConfig{
			BaseURL: cfg.Price.BaseURL,
			Timeout: cfg.Price.Timeout,
			RPS:     cfg.Price.RPS,
			Burst:   cfg.Price.Burst,
			Retry:   retryConfig,
		}
		if useQuota && cache != nil {
			quota, err := ratelimit.NewQuota(&ratelimit.QuotaConfig{
				Redis:    cache.Client(),
				Name:     string(types.PriceProviderYahoo),
				Limit:    cfg.Price.QuotaLimit,
				Reserved: cfg.Price.QuotaReserved,
				Window:   cfg.Price.QuotaWindow,
			})
			if err != nil {
				return nil, err
			}
			yahoo.Quota = quota
			logger.WithFields(map[string]interface{}{
				"limit":  cfg.Price.QuotaLimit,
				"window": cfg.Price.QuotaWindow.String(),
			}).Info("Sharing upstream quote quota through Redis")
		}
		provider = adapter.NewYahooProvider(yahoo)
	case types.PriceProviderStatic:
		provider = adapter.NewStaticProvider(cfg.Price.Static)
	default:
		return nil, fmt.Errorf("unknown price provider %q", cfg.Price.Provider)
	}

	if cache == nil || !useCache {
		return provider, nil
	}

	logger.WithFields(map[string]interface{}{
		"ttl": cfg.Price.CacheTTL.String(),
	}).Info("Caching quotes in Redis")
	return adapter.NewCachedPriceProvider(provider, cache, cfg.Price.CacheTTL), nil
}
