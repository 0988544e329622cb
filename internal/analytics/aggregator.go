package analytics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries      int64             `json:"total_queries"`
	Outcomes          map[Outcome]int64 `json:"outcomes"`
	CacheHits         int64             `json:"cache_hits"`
	CacheMisses       int64             `json:"cache_misses"`
	AvgLatencyMs      float64           `json:"avg_latency_ms"`
	P50LatencyMs      int64             `json:"p50_latency_ms"`
	P95LatencyMs      int64             `json:"p95_latency_ms"`
	P99LatencyMs      int64             `json:"p99_latency_ms"`
	TopQueries        []QueryCount      `json:"top_queries"`
	ZeroResultQueries []QueryCount      `json:"zero_result_queries"`
	QueriesPerMinute  float64           `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running query statistics in memory. It is a Sink, so the
// collector feeds it alongside any remote sink.
type Aggregator struct {
	mu                sync.Mutex
	total             int64
	outcomes          map[Outcome]int64
	cacheHits         int64
	cacheMisses       int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		outcomes:          make(map[Outcome]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
	}
}

func (a *Aggregator) Write(_ context.Context, events []QueryEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range events {
		a.record(ev)
	}
	return nil
}

func (a *Aggregator) record(ev QueryEvent) {
	a.total++
	a.outcomes[ev.Outcome]++
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	q := normalizeQuery(ev.Query)
	if q == "" {
		return
	}
	a.queryCounts[q]++
	if ev.Outcome == OutcomeZeroResult {
		a.zeroResultQueries[q]++
	}
}

// defaultTop is how many top and zero-result queries Stats reports.
const defaultTop = 10

func (a *Aggregator) Stats() AggregatedStats {
	return a.Snapshot(defaultTop)
}

// Snapshot is Stats with the top-query lists cut to top entries.
func (a *Aggregator) Snapshot(top int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalQueries: a.total,
		Outcomes:     make(map[Outcome]int64, len(a.outcomes)),
		CacheHits:    a.cacheHits,
		CacheMisses:  a.cacheMisses,
	}
	for o, n := range a.outcomes {
		stats.Outcomes[o] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, top)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, top)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

// normalizeQuery folds case and whitespace so "DNS  crash" and "dns crash"
// count as one query.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
