// Package reloader rebuilds the engine from its record source on demand:
// from the HTTP API, or from reload requests consumed off Kafka. After every
// published generation it can announce the new generation on Kafka.
package reloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/source"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/resilience"
)

// Request is the Kafka payload asking for a reload.
type Request struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type Reloader struct {
	engine       *indexer.Engine
	source       source.Source
	attempts     int
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func New(engine *indexer.Engine, src source.Source, attempts int, fetchTimeout time.Duration) *Reloader {
	return &Reloader{
		engine:       engine,
		source:       src,
		attempts:     attempts,
		fetchTimeout: fetchTimeout,
		logger:       slog.Default().With("component", "reloader", "source", src.Name()),
	}
}

// Reload fetches the full record set and builds a new generation from it.
// It fails fast with ErrRebuildInProgress if another rebuild is running.
func (r *Reloader) Reload(ctx context.Context, reason string) (uint64, error) {
	r.logger.Info("reload requested", "reason", reason)
	c, err := source.LoadCorpus(ctx, r.source, r.attempts, r.fetchTimeout)
	if err != nil {
		return 0, err
	}
	return r.engine.BuildIndexes(ctx, c)
}

// ReloadWithRetry is Reload, retried with backoff while another rebuild is
// in progress.
func (r *Reloader) ReloadWithRetry(ctx context.Context, reason string) (uint64, error) {
	return resilience.Do(ctx, "reload", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 250 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrRebuildInProgress)
		},
	}, func() (uint64, error) {
		return r.Reload(ctx, reason)
	})
}

// HandleMessage returns a Kafka MessageHandler that reloads on every request.
// Undecodable requests are reported as malformed. A rebuild that still fails
// after ReloadWithRetry is returned for the consumer to log; the request is
// not replayed and the previous generation keeps serving.
func (r *Reloader) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[Request](value)
		if err != nil {
			return fmt.Errorf("reload request %q: %w", string(key), err)
		}
		if req.Reason == "" {
			req.Reason = "kafka"
		}
		id, err := r.ReloadWithRetry(ctx, req.Reason)
		if err != nil {
			return fmt.Errorf("reloading for %q: %w", req.Reason, err)
		}
		r.logger.Info("reload request served",
			"generation", id,
			"reason", req.Reason,
			"requested_by", req.RequestedBy,
		)
		if !req.RequestedAt.IsZero() {
			r.logger.Debug("reload lag", "generation", id, "lag", time.Since(req.RequestedAt).Round(time.Millisecond))
		}
		return nil
	}
}

// AnnounceGenerations returns an engine listener that publishes every new
// generation's description, keyed by generation id.
func AnnounceGenerations(producer *kafka.Producer) indexer.Listener {
	logger := slog.Default().With("component", "generation-announcer")
	return func(ctx context.Context, info indexer.GenerationInfo) {
		event := kafka.Event{
			Key:   strconv.FormatUint(info.ID, 10),
			Value: info,
		}
		if err := producer.Publish(ctx, event); err != nil {
			logger.Error("failed to announce generation", "generation", info.ID, "error", err)
		}
	}
}
