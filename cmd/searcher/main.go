package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/source"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/reloader"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, registry)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var src source.Source
	switch cfg.Corpus.Source {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		checker.Register("postgres", health.Ping(db.Ping, true))
		src = source.NewPostgres(db, cfg.Postgres.Table)
	default:
		src = source.NewFile(cfg.Corpus.Path)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, "unreachable at startup: %v", err))
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Ping(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	engineOpts := []indexer.Option{indexer.WithMetrics(m)}
	if queryCache != nil {
		engineOpts = append(engineOpts, indexer.WithListener(func(ctx context.Context, info indexer.GenerationInfo) {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("cache invalidation after rebuild failed", "generation", info.ID, "error", err)
			}
		}))
	}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.GenerationsBuilt)
		defer producer.Close()
		engineOpts = append(engineOpts, indexer.WithListener(reloader.AnnounceGenerations(producer)))
	}
	engine := indexer.NewEngine(engineOpts...)
	checker.Register("index_engine", health.Ready(
		func() bool { return engine.Current() != 0 },
		func() string {
			return fmt.Sprintf("state=%s generation=%d live=%d", engine.State(), engine.Current(), engine.LiveGenerations())
		},
	))

	rl := reloader.New(engine, src, cfg.Corpus.LoadAttempts, cfg.Corpus.LoadTimeout)
	genID, err := rl.Reload(ctx, "startup")
	if err != nil {
		return fmt.Errorf("building initial generation: %w", err)
	}
	slog.Info("initial generation ready", "generation", genID, "source", src.Name())

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusReload, rl.HandleMessage())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer stopped", "error", err)
			}
		}()
	}

	handlerOpts := []handler.Option{
		handler.WithMetrics(m),
		handler.WithReloader(rl),
		handler.WithSearchTimeout(cfg.Search.Timeout),
	}
	if queryCache != nil {
		handlerOpts = append(handlerOpts, handler.WithCache(queryCache))
	}

	mux := http.NewServeMux()
	if cfg.Analytics.Enabled {
		aggregator := analytics.NewAggregator()
		sinks := []analytics.Sink{aggregator}
		if cfg.Kafka.Enabled() {
			queryProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
			defer queryProducer.Close()
			sinks = append(sinks, analytics.KafkaSink{Producer: queryProducer})
		}
		collector := analytics.NewCollector(analytics.CollectorConfig{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		}, m, sinks...)
		collector.Start(ctx)
		defer collector.Close()
		handlerOpts = append(handlerOpts, handler.WithCollector(collector))
		mux.HandleFunc("GET /api/v1/stats", analytics.NewHandler(aggregator).Stats)
	}

	exec := executor.New(engine,
		executor.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		executor.WithMetrics(m),
	)
	handler.New(engine, exec, handlerOpts...).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var chain http.Handler = mux
	chain = middleware.Deadline(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
