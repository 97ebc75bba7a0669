package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"GiftCardPay/internal/chain"
	"GiftCardPay/internal/config"
	"GiftCardPay/internal/db"
	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/payments"
	"GiftCardPay/internal/pricing"
	"GiftCardPay/internal/services"
	"GiftCardPay/internal/store"
)

// App holds the components shared by the api and worker processes.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *db.Pool
	DB       *sql.DB
	Redis    *redis.Client
	Store    *store.Store
	Oracle   *pricing.Oracle
	Probes   *chain.Registry
	Verifier *payments.Verifier
	Orders   *services.OrderService
}

func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: connect db: %w", op, err)
	}
	sqlDB := db.SQL(pool)
	st := store.New(sqlDB)

	a := &App{
		Config: cfg,
		Logger: log,
		Pool:   pool,
		DB:     sqlDB,
		Store:  st,
	}

	cache := a.quoteCache(ctx)
	a.Oracle = pricing.NewOracle(log, cache, pricing.OracleConfig{
		QuoteURL: cfg.Pricing.QuoteURL,
		APIKey:   cfg.Pricing.APIKey,
		TTL:      cfg.Pricing.CacheTTL,
		Timeout:  cfg.Pricing.RequestTimeout,
	})
	a.Probes = chain.NewRegistry(log, cfg.Explorers)
	a.Verifier = payments.NewVerifier(log, st, a.Probes, cfg)
	a.Orders = services.NewOrderService(log, st, a.Oracle, a.Probes, cfg, cfg.DiscountPercentage())

	CheckAddresses(log, cfg, a.Probes.Codes())
	return a, nil
}

// quoteCache shares quotes through redis when configured and reachable, otherwise per process.
func (a *App) quoteCache(ctx context.Context) pricing.Cache {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		return pricing.NewMemoryCache()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.Logger.Warn("redis unavailable, using in-process quote cache",
			slog.String("addr", cfg.Addr),
			logger.Err(err),
		)
		_ = rdb.Close()
		return pricing.NewMemoryCache()
	}
	a.Redis = rdb
	return pricing.NewRedisCache(rdb, a.Config.Pricing.CacheTTL)
}

// CheckAddresses warns about receiving addresses that are missing or malformed
// for every currency that has a chain lookup registered.
// Orders for a currency without an address are rejected at checkout.
func CheckAddresses(log *slog.Logger, cfg *config.Config, codes []string) int {
	bad := 0
	for _, code := range codes {
		addr := cfg.Address(code)
		if addr == "" {
			log.Warn("no receiving address configured", slog.String("crypto", code))
			bad++
			continue
		}
		if err := chain.ValidateAddress(code, addr); err != nil {
			log.Warn("receiving address looks invalid",
				slog.String("crypto", code),
				slog.String("address", addr),
				logger.Err(err),
			)
			bad++
		}
	}
	return bad
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
