// Command indexer asks running search services to rebuild their indexes by
// publishing a reload request on the corpus reload topic. Every service in the
// consumer group picks it up, reloads from its record source and announces
// the new generation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/reloader"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	reason := flag.String("reason", "manual", "reason recorded with the reload")
	requestedBy := flag.String("by", os.Getenv("USER"), "who asked for the reload")
	timeout := flag.Duration("timeout", 10*time.Second, "publish deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled() {
		slog.Error("no kafka brokers configured (set kafka.brokers or IS_KAFKA_BROKERS)")
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusReload)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	req := reloader.Request{
		Reason:      *reason,
		RequestedBy: *requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := producer.Publish(ctx, kafka.Event{Key: req.Reason, Value: req}); err != nil {
		slog.Error("failed to publish reload request", "error", err)
		os.Exit(1)
	}
	slog.Info("reload requested",
		"topic", producer.Topic(),
		"reason", req.Reason,
		"requested_by", req.RequestedBy,
	)
}
