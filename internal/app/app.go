// Package app wires the matcher and its collaborators from configuration.
// Every backing service is optional; without it the in-process
// implementation is used.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/tripmatch/internal/config"
	"github.com/example/tripmatch/internal/directions"
	"github.com/example/tripmatch/internal/dispatch"
	"github.com/example/tripmatch/internal/geo"
	"github.com/example/tripmatch/internal/ingest"
	"github.com/example/tripmatch/internal/matcher"
	"github.com/example/tripmatch/internal/scoring"
	"github.com/example/tripmatch/internal/storage"
)

type App struct {
	Matcher  *matcher.Service
	WS       *dispatch.WSRegistry
	Redis    *redis.Client
	Producer *ingest.KafkaProducer

	closers []func() error
}

// Build connects to whatever cfg names and assembles the matcher service.
func Build(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*App, error) {
	a := &App{WS: dispatch.NewWSRegistry()}

	agg, err := scoring.NewAggregator(cfg.ScoringConfig())
	if err != nil {
		return nil, err
	}

	var store storage.Store = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		if cfg.RunMigrations {
			applied, err := ps.Migrate(ctx, "migrations")
			if err != nil {
				a.Close()
				return nil, err
			}
			logger.Info("migrations applied", "files", applied)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, trips are kept in memory")
	}

	var index geo.Index = geo.NewMemoryIndex()
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, a.Redis.Close)
		index = geo.NewRedisIndex(a.Redis, cfg.RedisGeoPrefix)
	}

	var provider directions.Provider
	if cfg.OSRMEndpoint != "" {
		provider = &directions.Cached{
			Provider: directions.NewOSRMClient(cfg.OSRMEndpoint, cfg.OSRMRPS),
			Cache:    directions.NewCache(cfg.RouteCacheTTL),
		}
	}

	notifier := dispatch.NewWebhookDispatcher(cfg.WebhookEndpoint, a.WS)
	notifier.Offline = &dispatch.LogNotifier{Logger: logger}

	var publisher matcher.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.Producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, a.Producer.Close)
		publisher = a.Producer
	}

	a.Matcher = &matcher.Service{
		Store:           store,
		Index:           index,
		Directions:      provider,
		Fallback:        directions.StraightLine{SpeedMps: cfg.SpeedMps},
		Notifier:        notifier,
		Publisher:       publisher,
		Aggregator:      agg,
		Workers:         cfg.Workers,
		NotifyThreshold: cfg.NotifyThreshold,
		MatchTTL:        cfg.MatchTTL,
		PrefsAttempts:   cfg.PrefsRetryAttempts,
		PrefsDelay:      cfg.PrefsRetryDelay,
		InlineMatching:  cfg.MatchMode == config.MatchModeInline,
		Logger:          logger,
	}
	return a, nil
}

// Ready pings the backing services that were configured.
func (a *App) Ready(ctx context.Context) error {
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	if ps, ok := a.Matcher.Store.(*storage.PostgresStore); ok {
		if err := ps.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("postgres not ready: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
