package analytics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
)

// Sink receives flushed batches of events.
type Sink interface {
	Write(ctx context.Context, events []QueryEvent) error
}

// KafkaSink publishes each event keyed by the generation it was served from.
type KafkaSink struct {
	Producer *kafka.Producer
}

func (s KafkaSink) Write(ctx context.Context, events []QueryEvent) error {
	batch := make([]kafka.Event, 0, len(events))
	for _, ev := range events {
		batch = append(batch, kafka.Event{
			Key:   strconv.FormatUint(ev.Generation, 10),
			Value: ev,
		})
	}
	return s.Producer.PublishBatch(ctx, batch)
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector decouples request handling from event delivery. Track never
// blocks: when the buffer is full the event is dropped and counted.
type Collector struct {
	sinks         []Sink
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	stopOnce      sync.Once
	stop          chan struct{}
	done          chan struct{}
}

func NewCollector(cfg CollectorConfig, m *metrics.Metrics, sinks ...Sink) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		sinks:         sinks,
		eventCh:       make(chan QueryEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "analytics-collector"),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It runs until ctx is cancelled or Close is
// called, then flushes what is buffered.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]QueryEvent, 0, c.batchSize)
		for {
			select {
			case ev := <-c.eventCh:
				batch = append(batch, ev)
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				c.drain(batch)
				return
			case <-c.stop:
				c.drain(batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
		"sinks", len(c.sinks),
	)
}

func (c *Collector) Track(ev QueryEvent) {
	select {
	case c.eventCh <- ev:
	default:
		if c.metrics != nil {
			c.metrics.QueryEventsDropped.Inc()
		}
		c.logger.Warn("query event dropped (buffer full)")
	}
}

// Close stops the loop and waits for the final flush. Start must have been
// called.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// flush hands batch to every sink and returns an emptied slice for reuse.
// Sink failures drop the batch for that sink only.
func (c *Collector) flush(ctx context.Context, batch []QueryEvent) []QueryEvent {
	if len(batch) == 0 {
		return batch
	}
	out := make([]QueryEvent, len(batch))
	copy(out, batch)
	for _, sink := range c.sinks {
		if err := sink.Write(ctx, out); err != nil {
			c.logger.Error("analytics flush failed", "events", len(out), "error", err)
		}
	}
	c.logger.Debug("analytics batch flushed", "events", len(out))
	return batch[:0]
}

func (c *Collector) drain(batch []QueryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-c.eventCh:
			batch = append(batch, ev)
		default:
			c.flush(ctx, batch)
			return
		}
	}
}
