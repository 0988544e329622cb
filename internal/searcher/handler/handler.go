package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
)

type Searcher interface {
	Search(ctx context.Context, generation uint64, q executor.Query) (*executor.SearchResult, error)
}

// Engine is the read side of indexer.Engine the handler needs.
type Engine interface {
	Acquire(id uint64) (*indexer.Generation, error)
	Current() uint64
	CurrentInfo() (indexer.GenerationInfo, error)
	State() indexer.State
	LiveGenerations() int
	Record(id int) (corpus.Record, error)
}

type Reloader interface {
	Reload(ctx context.Context, reason string) (uint64, error)
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithReloader(r Reloader) Option {
	return func(h *Handler) { h.reloader = r }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithSearchTimeout bounds each search; an expired search answers 504.
func WithSearchTimeout(d time.Duration) Option {
	return func(h *Handler) { h.searchTimeout = d }
}

type Handler struct {
	engine    Engine
	searcher  Searcher
	cache     *cache.QueryCache
	reloader  Reloader
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger

	searchTimeout time.Duration
}

func New(engine Engine, searcher Searcher, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		searcher: searcher,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/records/{id}", h.GetRecord)
	mux.HandleFunc("GET /api/v1/facets/{field}", h.Facets)
	mux.HandleFunc("GET /api/v1/generation", h.Generation)
	mux.HandleFunc("POST /api/v1/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// Search serves GET /api/v1/search. Every facet field may be given as a
// repeated parameter (?category=Networking&category=Storage).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	if h.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.searchTimeout)
		defer cancel()
	}
	log := logger.FromContext(ctx)

	q, generation, err := parseSearchRequest(r)
	if err != nil {
		h.track(ctx, q, nil, err, false, start)
		h.writeErr(w, err)
		return
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	if h.cache != nil {
		keyGen := generation
		if keyGen == 0 {
			keyGen = h.engine.Current()
		} else {
			// A pinned generation must still be live before the cache may
			// answer for it.
			gen, acqErr := h.engine.Acquire(generation)
			if acqErr != nil {
				h.track(ctx, q, nil, acqErr, false, start)
				h.writeErr(w, acqErr)
				return
			}
			defer gen.Release()
		}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, keyGen, q, func() (*executor.SearchResult, error) {
			return h.searcher.Search(ctx, generation, q)
		})
	} else {
		result, err = h.searcher.Search(ctx, generation, q)
	}
	h.observeLatency(cacheHit, start)
	h.track(ctx, q, result, err, cacheHit, start)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidQuery) {
			log.Error("search failed", "query", q.Text, "filters", q.Filters, "error", err)
		}
		h.writeErr(w, err)
		return
	}

	log.Info("search completed",
		"query", q.Text,
		"filters", q.Filters,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// GetRecord serves GET /api/v1/records/{id} from the current generation.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "record id must be a positive integer")
		return
	}
	rec, err := h.engine.Record(id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type facetResponse struct {
	Generation uint64             `json:"generation"`
	Field      string             `json:"field"`
	Values     []facet.ValueCount `json:"values"`
}

// Facets serves GET /api/v1/facets/{field}: the distinct values of a facet
// with their record counts.
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	field, ok := corpus.ParseFacetField(r.PathValue("field"))
	if !ok {
		h.writeErr(w, apperrors.InvalidQueryf("unknown facet field %q", r.PathValue("field")))
		return
	}
	generation, err := parseGeneration(r)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	gen, err := h.engine.Acquire(generation)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	defer gen.Release()
	h.writeJSON(w, http.StatusOK, facetResponse{
		Generation: gen.ID(),
		Field:      string(field),
		Values:     gen.Facets().Values(field),
	})
}

type generationResponse struct {
	State           string                  `json:"state"`
	LiveGenerations int                     `json:"live_generations"`
	Current         *indexer.GenerationInfo `json:"current,omitempty"`
}

// Generation serves GET /api/v1/generation.
func (h *Handler) Generation(w http.ResponseWriter, r *http.Request) {
	resp := generationResponse{
		State:           h.engine.State().String(),
		LiveGenerations: h.engine.LiveGenerations(),
	}
	if info, err := h.engine.CurrentInfo(); err == nil {
		resp.Current = &info
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Reload serves POST /api/v1/reload. It rebuilds synchronously and answers
// 409 while another rebuild is running.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reloading is disabled")
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "api"
	}
	id, err := h.reloader.Reload(r.Context(), reason)
	if err != nil {
		logger.FromContext(r.Context()).Error("reload failed", "reason", reason, "error", err)
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"generation": id, "reason": reason})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func parseSearchRequest(r *http.Request) (executor.Query, uint64, error) {
	params := r.URL.Query()
	q := executor.Query{
		Text:        params.Get("q"),
		WithRecords: params.Get("records") == "true",
	}
	for _, field := range corpus.FacetFields {
		if values, ok := params[string(field)]; ok {
			if q.Filters == nil {
				q.Filters = make(map[string][]string)
			}
			q.Filters[string(field)] = values
		}
	}
	var err error
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		return q, 0, apperrors.InvalidQueryf("limit: %v", err)
	}
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		return q, 0, apperrors.InvalidQueryf("offset: %v", err)
	}
	generation, err := parseGeneration(r)
	return q, generation, err
}

func parseGeneration(r *http.Request) (uint64, error) {
	v := r.URL.Query().Get("generation")
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, apperrors.InvalidQueryf("generation must be a non-negative integer, got %q", v)
	}
	return id, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	return n, nil
}

func (h *Handler) observeLatency(cacheHit bool, start time.Time) {
	if h.metrics == nil {
		return
	}
	status := "bypass"
	if h.cache != nil {
		status = "miss"
		if cacheHit {
			status = "hit"
		}
	}
	h.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (h *Handler) track(ctx context.Context, q executor.Query, result *executor.SearchResult, err error, cacheHit bool, start time.Time) {
	if h.collector == nil {
		return
	}
	ev := analytics.QueryEvent{
		Query:     q.Text,
		Filters:   q.Filters,
		Outcome:   outcome(result, err),
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		RequestID: logger.RequestID(ctx),
		Timestamp: time.Now().UTC(),
	}
	if result != nil {
		ev.Generation = result.Generation
		ev.TotalHits = result.TotalHits
		ev.Returned = len(result.Results)
	}
	h.collector.Track(ev)
}

func outcome(result *executor.SearchResult, err error) analytics.Outcome {
	switch {
	case errors.Is(err, apperrors.ErrInvalidQuery):
		return analytics.OutcomeInvalid
	case errors.Is(err, apperrors.ErrTimeout):
		return analytics.OutcomeTimeout
	case err != nil:
		return analytics.OutcomeError
	case result.TotalHits == 0:
		return analytics.OutcomeZeroResult
	default:
		return analytics.OutcomeHit
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to its status code. Internal errors are not echoed.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status == http.StatusConflict || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	h.writeError(w, status, message)
}
