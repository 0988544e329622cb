package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
)

const (
	DefaultLimit = 10
	MaxLimit     = 200

	checkEvery = 64
)

// Query is a search request: free text, facet filters, or both. Filters are
// OR-ed within a field and AND-ed across fields.
type Query struct {
	Text    string              `json:"text,omitempty"`
	Filters map[string][]string `json:"filters,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
	// WithRecords asks for copies of the matched records alongside the ids.
	WithRecords bool `json:"with_records,omitempty"`
}

type SearchResult struct {
	Generation uint64              `json:"generation"`
	Query      string              `json:"query,omitempty"`
	Filters    map[string][]string `json:"filters,omitempty"`
	TotalHits  int                 `json:"total_hits"`
	Offset     int                 `json:"offset"`
	Limit      int                 `json:"limit"`
	Results    []ranker.ScoredDoc  `json:"results"`
	Records    []corpus.Record     `json:"records,omitempty"`
	TermStats  map[string]int      `json:"term_stats,omitempty"`
}

// GenerationSource hands out referenced generations.
type GenerationSource interface {
	Acquire(id uint64) (*indexer.Generation, error)
}

type Option func(*Executor)

// WithLimits overrides the default page size and the clamp applied to Limit.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Executor) {
		if maxLimit > 0 {
			e.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// Executor answers queries against immutable generations. It keeps no state
// between calls, so one Executor serves any number of concurrent searches.
type Executor struct {
	source       GenerationSource
	defaultLimit int
	maxLimit     int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func New(source GenerationSource, opts ...Option) *Executor {
	e := &Executor{
		source:       source,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		logger:       slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	return e
}

// Search runs q against generation id (0 for the current generation). It
// fails with ErrInvalidQuery when q has neither text nor filters, and with
// ErrTimeout when ctx expires first.
func (e *Executor) Search(ctx context.Context, id uint64, q Query) (*SearchResult, error) {
	start := time.Now()
	result, err := e.search(ctx, id, q)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "search aborted after %v: %v", time.Since(start).Round(time.Microsecond), err)
		}
		e.observe(err, nil)
		return nil, err
	}
	e.observe(nil, result)
	e.logger.Debug("query executed",
		"generation", result.Generation,
		"query", q.Text,
		"filters", q.Filters,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Executor) search(ctx context.Context, id uint64, q Query) (*SearchResult, error) {
	filters, err := e.validate(&q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := e.source.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer gen.Release()

	result := &SearchResult{
		Generation: gen.ID(),
		Query:      q.Text,
		Filters:    q.Filters,
		Offset:     q.Offset,
		Limit:      q.Limit,
		Results:    []ranker.ScoredDoc{},
	}

	var candidates map[int]struct{}
	if len(filters) > 0 {
		candidates = filterCandidates(gen, filters)
		if len(candidates) == 0 {
			return result, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var scoring []ranker.TermPostings
	if strings.TrimSpace(q.Text) != "" {
		plan := parser.Parse(q.Text)
		matches, err := matchPlan(ctx, gen.Inverted(), plan, candidates)
		if err != nil {
			return nil, err
		}
		candidates = matches
		result.TermStats = make(map[string]int)
		for _, term := range plan.Terms() {
			postings := gen.Inverted().Postings(term)
			result.TermStats[term] = len(postings)
			if len(postings) > 0 {
				scoring = append(scoring, ranker.TermPostings{Term: term, Postings: postings})
			}
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}

	inv := gen.Inverted()
	ranked, err := ranker.Rank(ctx, scoring, candidates, ranker.RankParams{
		TotalDocs:    int64(inv.DocCount()),
		AvgDocLength: inv.AvgDocLength(),
	}, func(recordID int) ranker.DocInfo {
		return ranker.DocInfo{DocLength: inv.DocLength(recordID)}
	})
	if err != nil {
		return nil, err
	}
	result.TotalHits = len(ranked)
	result.Results = ranker.Page(ranked, q.Offset, q.Limit)
	if q.WithRecords {
		result.Records = make([]corpus.Record, 0, len(result.Results))
		for _, doc := range result.Results {
			if rec, ok := gen.Corpus().Get(doc.RecordID); ok {
				result.Records = append(result.Records, rec)
			}
		}
	}
	return result, nil
}

// validate rejects no-op and malformed queries, clamps the page size, and
// resolves filter names to facet fields.
func (e *Executor) validate(q *Query) (map[corpus.FacetField][]string, error) {
	if strings.TrimSpace(q.Text) == "" && len(q.Filters) == 0 {
		return nil, apperrors.InvalidQueryf("query needs text or at least one filter")
	}
	if q.Offset < 0 {
		return nil, apperrors.InvalidQueryf("offset must not be negative, got %d", q.Offset)
	}
	if q.Limit <= 0 {
		q.Limit = e.defaultLimit
	}
	if q.Limit > e.maxLimit {
		q.Limit = e.maxLimit
	}
	filters := make(map[corpus.FacetField][]string, len(q.Filters))
	for name, values := range q.Filters {
		field, ok := corpus.ParseFacetField(name)
		if !ok {
			return nil, apperrors.InvalidQueryf("unknown filter field %q", name)
		}
		filters[field] = append(filters[field], values...)
	}
	return filters, nil
}

// filterCandidates intersects, across fields, the union of each field's
// selected values.
func filterCandidates(gen *indexer.Generation, filters map[corpus.FacetField][]string) map[int]struct{} {
	fields := make([]corpus.FacetField, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	var candidates map[int]struct{}
	for _, field := range fields {
		ids := gen.Facets().Union(field, filters[field])
		if candidates == nil {
			candidates = make(map[int]struct{}, len(ids))
			for _, id := range ids {
				candidates[id] = struct{}{}
			}
		} else {
			next := make(map[int]struct{}, len(candidates))
			for _, id := range ids {
				if _, ok := candidates[id]; ok {
					next[id] = struct{}{}
				}
			}
			candidates = next
		}
		if len(candidates) == 0 {
			break
		}
	}
	return candidates
}

// matchPlan returns the records satisfying plan, restricted to within when it
// is non-nil.
func matchPlan(ctx context.Context, inv *index.Inverted, plan *parser.QueryPlan, within map[int]struct{}) (map[int]struct{}, error) {
	var matches map[int]struct{}
	switch {
	case plan.Empty() && len(plan.Exclude) > 0 && within != nil:
		// Only exclusions: narrow the filtered set.
		matches = make(map[int]struct{}, len(within))
		for id := range within {
			matches[id] = struct{}{}
		}
	case plan.Empty():
		return map[int]struct{}{}, nil
	default:
		sets := make([]map[int]struct{}, 0, len(plan.Clauses))
		for _, clause := range plan.Clauses {
			set, err := matchClause(ctx, inv, clause)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
		}
		if plan.Type == parser.QueryAND {
			matches = intersect(sets)
		} else {
			matches = union(sets)
		}
		if within != nil {
			for id := range matches {
				if _, ok := within[id]; !ok {
					delete(matches, id)
				}
			}
		}
	}
	for _, clause := range plan.Exclude {
		set, err := matchClause(ctx, inv, clause)
		if err != nil {
			return nil, err
		}
		for id := range set {
			delete(matches, id)
		}
	}
	return matches, nil
}

func matchClause(ctx context.Context, inv *index.Inverted, clause parser.Clause) (map[int]struct{}, error) {
	if !clause.Phrase || len(clause.Terms) == 1 {
		postings := inv.Postings(clause.Terms[0])
		set := make(map[int]struct{}, len(postings))
		for _, p := range postings {
			set[p.RecordID] = struct{}{}
		}
		return set, nil
	}
	lists := make([]index.PostingList, len(clause.Terms))
	for i, term := range clause.Terms {
		lists[i] = inv.Postings(term)
		if len(lists[i]) == 0 {
			return map[int]struct{}{}, nil
		}
	}
	set := make(map[int]struct{})
	for n, first := range lists[0] {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if phraseAt(first, lists[1:]) {
			set[first.RecordID] = struct{}{}
		}
	}
	return set, nil
}

// phraseAt reports whether the record of first holds the remaining terms at
// consecutive positions of the same field.
func phraseAt(first index.Posting, rest []index.PostingList) bool {
	following := make([]map[index.Position]struct{}, len(rest))
	for i, pl := range rest {
		p, ok := pl.Find(first.RecordID)
		if !ok {
			return false
		}
		following[i] = make(map[index.Position]struct{}, len(p.Positions))
		for _, pos := range p.Positions {
			following[i][pos] = struct{}{}
		}
	}
	for _, start := range first.Positions {
		matched := true
		for i := range following {
			want := index.Position{Field: start.Field, Offset: start.Offset + i + 1}
			if _, ok := following[i][want]; !ok {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func intersect(sets []map[int]struct{}) map[int]struct{} {
	if len(sets) == 0 {
		return make(map[int]struct{})
	}
	smallest := 0
	for i, s := range sets {
		if len(s) < len(sets[smallest]) {
			smallest = i
		}
	}
	out := make(map[int]struct{}, len(sets[smallest]))
	for id := range sets[smallest] {
		inAll := true
		for i, s := range sets {
			if i == smallest {
				continue
			}
			if _, ok := s[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[id] = struct{}{}
		}
	}
	return out
}

func union(sets []map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{})
	for _, s := range sets {
		for id := range s {
			out[id] = struct{}{}
		}
	}
	return out
}

func (e *Executor) observe(err error, result *SearchResult) {
	if e.metrics == nil {
		return
	}
	outcome := "hit"
	switch {
	case errors.Is(err, apperrors.ErrInvalidQuery):
		outcome = "invalid"
	case errors.Is(err, apperrors.ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case result.TotalHits == 0:
		outcome = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if result != nil {
		e.metrics.SearchResultsCount.Observe(float64(result.TotalHits))
	}
}

// String renders q for logs and cache keys.
func (q Query) String() string {
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(q.Text)
	for _, k := range keys {
		vals := append([]string(nil), q.Filters[k]...)
		sort.Strings(vals)
		fmt.Fprintf(&sb, " %s=%s", strings.ToLower(k), strings.Join(vals, ","))
	}
	return sb.String()
}
