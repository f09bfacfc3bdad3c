package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/handler"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/rpc"
)

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting bindertrack service",
		"port", cfg.Server.Port,
		"snapshot", cfg.Resolver.SnapshotPath,
		"max_iterations", cfg.Resolver.MaxIterations,
	)

	m := metrics.New(nil)
	b := openBackends(ctx, cfg, m)
	defer b.Close()

	var aggregator *events.Aggregator
	if b.collector != nil {
		aggregator = events.NewAggregator(nil)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ResolutionEvents, events.HandleEvent(aggregator))
		defer consumer.Close()
		aggregator.SetConsumer(consumer)
		go func() {
			if err := aggregator.Start(ctx); err != nil {
				slog.Error("resolution aggregator error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("snapshot", health.FileCheck(cfg.Resolver.SnapshotPath))
	if b.redis != nil {
		checker.Register("redis", health.PingCheck(b.redis.Ping))
	}
	if b.db != nil {
		checker.Register("postgres", health.PingCheck(b.db.Ping))
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"GET /health/live":  checker.LiveHandler(),
			"GET /health/ready": checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer(rpc.ServerConfig{RequestTimeout: cfg.Resolver.Timeout + time.Second})
		handler.RegisterRPC(rpcServer, b.service)
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
			return err
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	h := handler.New(b.service, aggregator, cfg.Server.MaxBatchPIDs)
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("bindertrack service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	// In-flight handlers may still track events until Shutdown returns.
	<-shutdownDone
	slog.Info("bindertrack service stopped")
	return nil
}
