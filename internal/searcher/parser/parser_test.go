package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToOR(t *testing.T) {
	plan := Parse("DNS timeout")
	assert.Equal(t, QueryOR, plan.Type)
	assert.Equal(t, []string{"dns", "timeout"}, plan.Terms())
	assert.Empty(t, plan.Exclude)
	assert.False(t, plan.Empty())
}

func TestParseOperators(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		typ     QueryType
		terms   []string
		exclude []Clause
	}{
		{name: "and", query: "dns AND crash", typ: QueryAND, terms: []string{"dns", "crash"}},
		{name: "lowercase and", query: "dns and crash", typ: QueryAND, terms: []string{"dns", "crash"}},
		{name: "explicit or", query: "dns OR crash", typ: QueryOR, terms: []string{"dns", "crash"}},
		{name: "not", query: "pod NOT coredns", typ: QueryOR, terms: []string{"pod"}, exclude: []Clause{{Terms: []string{"coredn"}}}},
		{name: "minus", query: "pod -coredns", typ: QueryOR, terms: []string{"pod"}, exclude: []Clause{{Terms: []string{"coredn"}}}},
		{name: "lone minus is a word", query: "pod -", typ: QueryOR, terms: []string{"pod"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.typ, plan.Type)
			assert.Equal(t, tt.terms, plan.Terms())
			if tt.exclude == nil {
				assert.Empty(t, plan.Exclude)
			} else {
				assert.Equal(t, tt.exclude, plan.Exclude)
			}
		})
	}
}

func TestParsePhrases(t *testing.T) {
	plan := Parse(`"pod crash" resolution`)
	require.Len(t, plan.Clauses, 2)
	assert.Equal(t, Clause{Terms: []string{"pod", "crash"}, Phrase: true}, plan.Clauses[0])
	assert.Equal(t, Clause{Terms: []string{"resolut"}}, plan.Clauses[1])

	// Quoted operators are words.
	plan = Parse(`"AND"`)
	assert.Equal(t, QueryOR, plan.Type)

	// An unterminated quote runs to the end.
	plan = Parse(`"stuck in terminating`)
	require.Len(t, plan.Clauses, 1)
	assert.Equal(t, []string{"stuck", "terminate"}, plan.Clauses[0].Terms)
	assert.True(t, plan.Clauses[0].Phrase)
}

func TestParseSplitWordBecomesPhrase(t *testing.T) {
	plan := Parse("v1.22")
	require.Len(t, plan.Clauses, 1)
	assert.Equal(t, Clause{Terms: []string{"v1", "22"}, Phrase: true}, plan.Clauses[0])
}

func TestParseEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", "the of a", "AND OR", `""`, "-the"} {
		plan := Parse(q)
		assert.True(t, plan.Empty(), "query %q", q)
		assert.Empty(t, plan.Terms(), "query %q", q)
	}
}

func TestTermsAreDistinct(t *testing.T) {
	plan := Parse(`crash crashes "pod crash"`)
	assert.Equal(t, []string{"crash", "pod"}, plan.Terms())
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, Parse("DNS   Timeout").Canonical(), Parse("dns timeout").Canonical())
	assert.Equal(t, Parse("pod -coredns").Canonical(), Parse("pod NOT CoreDNS").Canonical())
	assert.NotEqual(t, Parse("dns crash").Canonical(), Parse("dns AND crash").Canonical())
	assert.Equal(t, `AND|"pod crash"|dns|-stuck`, Parse(`"pod crash" AND dns -stuck`).Canonical())
}

func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Parse(`"pod crash" AND coredns -timeout kubernetes v1.22`)
	}
}
