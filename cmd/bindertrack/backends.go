package main

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/cache"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/procinfo"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/service"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/store"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/redis"
)

// backends holds everything a resolution may touch. Optional backends that
// are disabled or unreachable stay nil and the service runs without them.
type backends struct {
	tracker   *binder.Tracker
	service   *service.Service
	redis     *pkgredis.Client
	db        *postgres.Client
	producer  *kafka.Producer
	collector *events.Collector
	closers   []func()
}

func openBackends(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *backends {
	b := &backends{}

	var annotator binder.Annotator
	if cfg.Resolver.Annotate {
		a, err := procinfo.New(cfg.Resolver.ProcRoot)
		if err != nil {
			slog.Warn("procfs unavailable, process names disabled", "root", cfg.Resolver.ProcRoot, "error", err)
		} else {
			annotator = a
		}
	}
	b.tracker = binder.New(reader.NewFileSource(cfg.Resolver.SnapshotPath), binder.Options{
		Reader:        reader.Options{MaxBytes: cfg.Resolver.MaxSnapshotBytes},
		MaxIterations: cfg.Resolver.MaxIterations,
		Timeout:       cfg.Resolver.Timeout,
		OpenAttempts:  cfg.Resolver.OpenAttempts,
		Annotator:     annotator,
		Metrics:       m,
	})

	var opts service.Options
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, resolution caching disabled", "error", err)
		} else {
			b.redis = client
			b.closers = append(b.closers, func() { client.Close() })
			opts.Cache = cache.New(client, cfg.Redis, m)
			slog.Info("resolution cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, report store disabled", "error", err)
		} else {
			reports := store.New(db, m)
			if err := reports.Migrate(ctx); err != nil {
				slog.Warn("report schema migration failed, report store disabled", "error", err)
				db.Close()
			} else {
				b.db = db
				b.closers = append(b.closers, func() { db.Close() })
				opts.Reports = reports
				slog.Info("report store enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
			}
		}
	}

	if cfg.Kafka.Enabled {
		b.producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ResolutionEvents)
		b.collector = events.NewCollector(b.producer, cfg.Kafka.BufferSize)
		b.collector.Start(ctx)
		// The collector must drain before its producer closes.
		b.closers = append(b.closers, func() {
			b.collector.Close()
			b.producer.Close()
		})
		opts.Collector = b.collector
		slog.Info("resolution events enabled", "topic", cfg.Kafka.Topics.ResolutionEvents)
	}

	b.service = service.New(b.tracker, opts)
	return b
}

// Close releases backends in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
