package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
)

type stubReloader struct {
	engine  *indexer.Engine
	records []corpus.Record
	err     error
	reasons []string
}

func (s *stubReloader) Reload(ctx context.Context, reason string) (uint64, error) {
	s.reasons = append(s.reasons, reason)
	if s.err != nil {
		return 0, s.err
	}
	return s.engine.Reload(ctx, s.records)
}

type mapStore struct {
	data map[string]string
}

func (s *mapStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", apperrors.ErrRecordNotFound
}

func (s *mapStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *mapStore) FlushByPattern(_ context.Context, _ string) (int64, error) {
	n := int64(len(s.data))
	s.data = make(map[string]string)
	return n, nil
}

type fixture struct {
	engine *indexer.Engine
	server *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	engine := indexer.NewEngine()
	_, err := engine.Reload(context.Background(), corpustest.Seed())
	require.NoError(t, err)
	return newFixtureFor(t, engine, opts...)
}

func newFixtureFor(t *testing.T, engine *indexer.Engine, opts ...Option) *fixture {
	t.Helper()
	mux := http.NewServeMux()
	New(engine, executor.New(engine), opts...).Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &fixture{engine: engine, server: server}
}

func (f *fixture) do(t *testing.T, method, path string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func resultIDs(r executor.SearchResult) []int {
	out := make([]int, 0, len(r.Results))
	for _, d := range r.Results {
		out = append(out, d.RecordID)
	}
	return out
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	var result executor.SearchResult
	resp := f.do(t, http.MethodGet, "/api/v1/search?q=DNS", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, []int{1}, resultIDs(result))
	assert.Equal(t, uint64(1), result.Generation)

	result = executor.SearchResult{}
	f.do(t, http.MethodGet, "/api/v1/search?category=Networking&category=Storage", &result)
	assert.Equal(t, []int{1, 2}, resultIDs(result))

	result = executor.SearchResult{}
	f.do(t, http.MethodGet, "/api/v1/search?environment="+url.QueryEscape("K8s v1.22, EKS")+"&records=true", &result)
	assert.Equal(t, []int{2}, resultIDs(result))
	require.Len(t, result.Records, 1)
	assert.Equal(t, "PVC Stuck in Terminating State", result.Records[0].Title)

	result = executor.SearchResult{}
	f.do(t, http.MethodGet, "/api/v1/search?q=pod&limit=1&offset=1", &result)
	assert.Equal(t, 2, result.TotalHits)
	assert.Len(t, result.Results, 1)
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "no query", path: "/api/v1/search", status: http.StatusBadRequest},
		{name: "bad limit", path: "/api/v1/search?q=dns&limit=ten", status: http.StatusBadRequest},
		{name: "negative offset", path: "/api/v1/search?q=dns&offset=-1", status: http.StatusBadRequest},
		{name: "bad generation", path: "/api/v1/search?q=dns&generation=x", status: http.StatusBadRequest},
		{name: "unknown generation", path: "/api/v1/search?q=dns&generation=42", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			resp := f.do(t, http.MethodGet, tt.path, &body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchBeforeFirstBuild(t *testing.T) {
	f := newFixtureFor(t, indexer.NewEngine())
	var body map[string]string
	resp := f.do(t, http.MethodGet, "/api/v1/search?q=dns", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestSearchTimeout(t *testing.T) {
	f := newFixture(t, WithSearchTimeout(time.Nanosecond))
	resp := f.do(t, http.MethodGet, "/api/v1/search?q=dns", nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestGetRecord(t *testing.T) {
	f := newFixture(t)
	var rec corpus.Record
	resp := f.do(t, http.MethodGet, "/api/v1/records/2", &rec)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Storage", rec.Category)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/records/9", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/records/abc", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/records/0", nil).StatusCode)
}

func TestFacets(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Generation uint64 `json:"generation"`
		Field      string `json:"field"`
		Values     []struct {
			Value string `json:"value"`
			Count int    `json:"count"`
		} `json:"values"`
	}
	resp := f.do(t, http.MethodGet, "/api/v1/facets/Category", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "category", body.Field)
	require.Len(t, body.Values, 2)
	assert.Equal(t, "Networking", body.Values[0].Value)
	assert.Equal(t, 1, body.Values[0].Count)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/facets/severity", nil).StatusCode)
}

func TestGenerationAndReload(t *testing.T) {
	engine := indexer.NewEngine()
	rl := &stubReloader{engine: engine, records: corpustest.Seed()}
	f := newFixtureFor(t, engine, WithReloader(rl))

	var gen struct {
		State   string                  `json:"state"`
		Live    int                     `json:"live_generations"`
		Current *indexer.GenerationInfo `json:"current"`
	}
	f.do(t, http.MethodGet, "/api/v1/generation", &gen)
	assert.Equal(t, "empty", gen.State)
	assert.Nil(t, gen.Current)

	var reloaded map[string]any
	resp := f.do(t, http.MethodPost, "/api/v1/reload?reason=manual", &reloaded)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), reloaded["generation"])
	assert.Equal(t, []string{"manual"}, rl.reasons)

	f.do(t, http.MethodGet, "/api/v1/generation", &gen)
	assert.Equal(t, "ready", gen.State)
	assert.Equal(t, 1, gen.Live)
	require.NotNil(t, gen.Current)
	assert.Equal(t, 2, gen.Current.Records)

	rl.err = apperrors.New(apperrors.ErrRebuildInProgress, http.StatusConflict, "busy")
	resp = f.do(t, http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, "api", rl.reasons[1])
}

func TestReloadDisabled(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/reload", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/v1/reload", nil).StatusCode)
}

func TestCachedSearch(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &mapStore{data: make(map[string]string)}
	f := newFixture(t, WithCache(cache.New(store, time.Minute, m)), WithMetrics(m))

	var first, second executor.SearchResult
	f.do(t, http.MethodGet, "/api/v1/search?q=coredns", &first)
	f.do(t, http.MethodGet, "/api/v1/search?q=CoreDNS", &second)
	assert.Equal(t, first.Results, second.Results)
	assert.Len(t, store.data, 1)

	var stats map[string]any
	f.do(t, http.MethodGet, "/api/v1/cache/stats", &stats)
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(1), stats["misses"])
	assert.Equal(t, "50.0%", stats["hit_rate"])
	assert.Equal(t, 2, testutil.CollectAndCount(m.SearchLatency))

	resp := f.do(t, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, store.data)
}

func TestCachedStopWordQueryKeepsFilterOnlyResults(t *testing.T) {
	store := &mapStore{data: make(map[string]string)}
	f := newFixture(t, WithCache(cache.New(store, time.Minute, nil)))

	var stopWords, filterOnly executor.SearchResult
	f.do(t, http.MethodGet, "/api/v1/search?q=to&category=Networking", &stopWords)
	assert.Empty(t, stopWords.Results)

	f.do(t, http.MethodGet, "/api/v1/search?category=Networking", &filterOnly)
	assert.Equal(t, []int{1}, resultIDs(filterOnly))
	assert.Len(t, store.data, 2)
}

func TestCachedSearchOnDiscardedGeneration(t *testing.T) {
	store := &mapStore{data: make(map[string]string)}
	f := newFixture(t, WithCache(cache.New(store, time.Minute, nil)))

	resp := f.do(t, http.MethodGet, "/api/v1/search?q=coredns&generation=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.data, 1)

	// No invalidation listener is wired, so the entry for generation 1 stays.
	_, err := f.engine.Reload(context.Background(), corpustest.Seed())
	require.NoError(t, err)
	require.Len(t, store.data, 1)

	resp = f.do(t, http.MethodGet, "/api/v1/search?q=coredns&generation=1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t)
	var stats map[string]string
	f.do(t, http.MethodGet, "/api/v1/cache/stats", &stats)
	assert.Equal(t, "disabled", stats["status"])
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodDelete, "/api/v1/cache", nil).StatusCode)
}

func TestSearchIsTracked(t *testing.T) {
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(analytics.CollectorConfig{BatchSize: 100, FlushInterval: time.Hour}, nil, agg)
	collector.Start(context.Background())
	f := newFixture(t, WithCollector(collector))

	f.do(t, http.MethodGet, "/api/v1/search?q=dns", nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=zookeeper", nil)
	f.do(t, http.MethodGet, "/api/v1/search", nil)
	collector.Close()

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.Outcomes[analytics.OutcomeHit])
	assert.Equal(t, int64(1), stats.Outcomes[analytics.OutcomeZeroResult])
	assert.Equal(t, int64(1), stats.Outcomes[analytics.OutcomeInvalid])
	require.Len(t, stats.ZeroResultQueries, 1)
	assert.Equal(t, "zookeeper", stats.ZeroResultQueries[0].Query)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, analytics.OutcomeHit, outcome(&executor.SearchResult{TotalHits: 3}, nil))
	assert.Equal(t, analytics.OutcomeZeroResult, outcome(&executor.SearchResult{}, nil))
	assert.Equal(t, analytics.OutcomeInvalid, outcome(nil, apperrors.InvalidQueryf("x")))
	assert.Equal(t, analytics.OutcomeTimeout, outcome(nil, apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "x")))
	assert.Equal(t, analytics.OutcomeError, outcome(nil, assert.AnError))
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := New(indexer.NewEngine(), executor.New(indexer.NewEngine()))
	rec := httptest.NewRecorder()
	h.writeErr(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), assert.AnError.Error()))
}
