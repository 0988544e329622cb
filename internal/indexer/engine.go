package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
)

type State int32

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Listener is notified after a new generation has been published.
type Listener func(ctx context.Context, info GenerationInfo)

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// Engine owns the current generation pointer. It is the only writer: at most
// one rebuild runs at a time and a concurrent request fails with
// ErrRebuildInProgress. Readers never block: they load the pointer and take a
// reference.
type Engine struct {
	current   atomic.Pointer[Generation]
	live      sync.Map
	liveCount atomic.Int64
	nextID    atomic.Uint64
	building  atomic.Bool
	listeners []Listener
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// beforePublish runs after the indexes are built and before the swap.
	// Tests use it to hold a rebuild open.
	beforePublish func()
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildIndexes builds a generation from c and publishes it with a single
// pointer swap. Queries keep being served by the previous generation until
// the swap. It returns the new generation id.
func (e *Engine) BuildIndexes(ctx context.Context, c *corpus.Corpus) (uint64, error) {
	if c == nil || c.Len() == 0 {
		e.observeBuild("empty", 0)
		return 0, apperrors.New(apperrors.ErrEmptyCorpus, http.StatusBadRequest, "cannot build indexes from zero records")
	}
	if !e.building.CompareAndSwap(false, true) {
		e.observeBuild("rejected", 0)
		return 0, apperrors.New(apperrors.ErrRebuildInProgress, http.StatusConflict, "another rebuild is running")
	}
	info, err := e.build(ctx, c)
	e.building.Store(false)
	if err != nil {
		return 0, err
	}
	for _, l := range e.listeners {
		l(ctx, info)
	}
	return info.ID, nil
}

func (e *Engine) build(ctx context.Context, c *corpus.Corpus) (GenerationInfo, error) {
	start := time.Now()
	e.logger.Info("building generation", "records", c.Len(), "fingerprint", c.Fingerprint())

	var (
		inverted *index.Inverted
		facets   facet.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inverted = index.Build(c.Records())
		return gctx.Err()
	})
	g.Go(func() error {
		facets = facet.Build(c.Records(), corpus.FacetFields)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		e.observeBuild("cancelled", time.Since(start))
		return GenerationInfo{}, fmt.Errorf("building indexes: %w", err)
	}
	if e.beforePublish != nil {
		e.beforePublish()
	}

	gen := &Generation{
		id:            e.nextID.Add(1),
		corpus:        c,
		inverted:      inverted,
		facets:        facets,
		builtAt:       time.Now().UTC(),
		buildDuration: time.Since(start),
		onDiscard:     e.discard,
	}
	// The engine itself holds one reference while gen is current.
	gen.refs.Store(1)
	e.live.Store(gen.id, gen)
	e.liveCount.Add(1)

	old := e.current.Swap(gen)
	info := gen.Info()
	if old != nil {
		info.Previous = old.id
		old.Release()
	}

	e.logger.Info("generation ready",
		"generation", gen.id,
		"previous", info.Previous,
		"records", info.Records,
		"terms", info.Terms,
		"index_size", inverted.Size(),
		"duration", gen.buildDuration,
	)
	e.observeBuild("success", gen.buildDuration)
	if e.metrics != nil {
		e.metrics.CurrentGeneration.Set(float64(gen.id))
		e.metrics.LiveGenerations.Set(float64(e.liveCount.Load()))
		e.metrics.IndexedRecords.Set(float64(info.Records))
		e.metrics.IndexedTerms.Set(float64(info.Terms))
	}
	return info, nil
}

// Reload validates records into a new corpus and rebuilds from it. A failed
// load leaves the current generation serving.
func (e *Engine) Reload(ctx context.Context, records []corpus.Record) (uint64, error) {
	c, err := corpus.Load(records)
	if err != nil {
		e.observeBuild("invalid", 0)
		return 0, fmt.Errorf("loading corpus for reload: %w", err)
	}
	return e.BuildIndexes(ctx, c)
}

// Acquire returns a referenced generation. id 0 selects the current one. The
// caller must Release it.
func (e *Engine) Acquire(id uint64) (*Generation, error) {
	if id == 0 {
		for {
			gen := e.current.Load()
			if gen == nil {
				return nil, apperrors.ErrNotReady
			}
			if gen.tryAcquire() {
				return gen, nil
			}
			// gen was retired between the load and the acquire; the pointer
			// already names its successor.
		}
	}
	v, ok := e.live.Load(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrGenerationNotFound, http.StatusNotFound, "generation %d is not live", id)
	}
	gen := v.(*Generation)
	if !gen.tryAcquire() {
		return nil, apperrors.Newf(apperrors.ErrGenerationNotFound, http.StatusNotFound, "generation %d was discarded", id)
	}
	return gen, nil
}

// Current returns the id of the serving generation, or 0 before the first
// build.
func (e *Engine) Current() uint64 {
	if gen := e.current.Load(); gen != nil {
		return gen.id
	}
	return 0
}

// CurrentInfo describes the serving generation.
func (e *Engine) CurrentInfo() (GenerationInfo, error) {
	gen, err := e.Acquire(0)
	if err != nil {
		return GenerationInfo{}, err
	}
	defer gen.Release()
	return gen.Info(), nil
}

func (e *Engine) State() State {
	if e.building.Load() {
		return StateBuilding
	}
	if e.current.Load() != nil {
		return StateReady
	}
	return StateEmpty
}

// LiveGenerations counts generations not yet discarded, including the
// current one.
func (e *Engine) LiveGenerations() int {
	return int(e.liveCount.Load())
}

// Records returns copies of the records with the given ids from generation
// id, in the order requested. Unknown ids are skipped.
func (e *Engine) Records(id uint64, ids []int) ([]corpus.Record, error) {
	gen, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer gen.Release()
	out := make([]corpus.Record, 0, len(ids))
	for _, rid := range ids {
		if rec, ok := gen.corpus.Get(rid); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Record returns a copy of one record from the current generation.
func (e *Engine) Record(id int) (corpus.Record, error) {
	recs, err := e.Records(0, []int{id})
	if err != nil {
		return corpus.Record{}, err
	}
	if len(recs) == 0 {
		return corpus.Record{}, apperrors.Newf(apperrors.ErrRecordNotFound, http.StatusNotFound, "record %d", id)
	}
	return recs[0], nil
}

func (e *Engine) discard(gen *Generation) {
	e.live.Delete(gen.id)
	remaining := e.liveCount.Add(-1)
	e.logger.Info("generation discarded", "generation", gen.id, "live_generations", remaining)
	if e.metrics != nil {
		e.metrics.LiveGenerations.Set(float64(remaining))
	}
}

func (e *Engine) observeBuild(status string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		e.metrics.IndexBuildDuration.Observe(d.Seconds())
	}
}
