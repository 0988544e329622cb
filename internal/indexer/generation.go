package indexer

import (
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/index"
)

// Generation is one fully built, immutable snapshot: a corpus plus the
// indexes derived from it. Readers obtain it through Engine.Acquire and must
// call Release when done; the generation is discarded once it has been
// replaced and its last holder has released it.
type Generation struct {
	id            uint64
	corpus        *corpus.Corpus
	inverted      *index.Inverted
	facets        facet.Index
	builtAt       time.Time
	buildDuration time.Duration

	refs      atomic.Int64
	onDiscard func(*Generation)
}

// GenerationInfo describes a generation for logs, events and the API.
type GenerationInfo struct {
	ID              uint64    `json:"id"`
	Previous        uint64    `json:"previous,omitempty"`
	Records         int       `json:"records"`
	Terms           int       `json:"terms"`
	Fingerprint     string    `json:"fingerprint"`
	BuiltAt         time.Time `json:"built_at"`
	BuildDurationMs int64     `json:"build_duration_ms"`
}

func (g *Generation) ID() uint64                { return g.id }
func (g *Generation) Corpus() *corpus.Corpus    { return g.corpus }
func (g *Generation) Inverted() *index.Inverted { return g.inverted }
func (g *Generation) Facets() facet.Index       { return g.facets }
func (g *Generation) BuiltAt() time.Time        { return g.builtAt }

func (g *Generation) Info() GenerationInfo {
	return GenerationInfo{
		ID:              g.id,
		Records:         g.corpus.Len(),
		Terms:           g.inverted.TermCount(),
		Fingerprint:     g.corpus.Fingerprint(),
		BuiltAt:         g.builtAt,
		BuildDurationMs: g.buildDuration.Milliseconds(),
	}
}

// tryAcquire takes a reference unless the generation has already been
// discarded.
func (g *Generation) tryAcquire() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference taken by Engine.Acquire.
func (g *Generation) Release() {
	if g.refs.Add(-1) == 0 && g.onDiscard != nil {
		g.onDiscard(g)
	}
}
