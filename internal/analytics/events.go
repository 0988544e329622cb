// Package analytics records what users search for. The search handler tracks
// one QueryEvent per request; a Collector batches them to sinks: the
// in-process Aggregator behind GET /api/v1/stats and, when Kafka is
// configured, a topic for offline analysis.
package analytics

import "time"

type Outcome string

const (
	OutcomeHit        Outcome = "hit"
	OutcomeZeroResult Outcome = "zero_result"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeError      Outcome = "error"
)

type QueryEvent struct {
	Query      string              `json:"query"`
	Filters    map[string][]string `json:"filters,omitempty"`
	Generation uint64              `json:"generation,omitempty"`
	Outcome    Outcome             `json:"outcome"`
	TotalHits  int                 `json:"total_hits"`
	Returned   int                 `json:"returned"`
	LatencyMs  int64               `json:"latency_ms"`
	CacheHit   bool                `json:"cache_hit"`
	RequestID  string              `json:"request_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}
