package facet

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/corpustest"
)

func TestBuildSeed(t *testing.T) {
	idx := Build(corpustest.Seed(), corpus.FacetFields)

	assert.Equal(t, []int{1}, idx.Lookup(corpus.FacetCategory, "Networking"))
	assert.Equal(t, []int{2}, idx.Lookup(corpus.FacetCategory, " Storage "))
	assert.Empty(t, idx.Lookup(corpus.FacetCategory, "storage"), "matching is case-sensitive")
	assert.Empty(t, idx.Lookup(corpus.FacetCategory, "Security"))
	assert.Equal(t, []int{1}, idx.Lookup(corpus.FacetEnvironment, "K8s v1.22, GKE"))
	assert.Equal(t, []corpus.FacetField{corpus.FacetCategory, corpus.FacetEnvironment}, idx.Fields())
}

func TestUnion(t *testing.T) {
	idx := Build(corpustest.Seed(), corpus.FacetFields)
	assert.Equal(t, []int{1, 2}, idx.Union(corpus.FacetCategory, []string{"Storage", "Networking", "Storage"}))
	assert.Empty(t, idx.Union(corpus.FacetCategory, []string{"Nope"}))
	assert.Empty(t, idx.Union(corpus.FacetCategory, nil))
}

// Every record with a non-empty value lands in exactly one bucket per field.
func TestPartitionInvariant(t *testing.T) {
	records := corpustest.Generate(137)
	records = append(records,
		corpus.Record{ID: 500, Category: "   ", Environment: "AWS Lambda"},
		corpus.Record{ID: 501, Category: "Storage", Environment: ""},
	)
	idx := Build(records, corpus.FacetFields)

	for _, field := range corpus.FacetFields {
		want := make([]int, 0, len(records))
		for i := range records {
			if strings.TrimSpace(records[i].Facet(field)) != "" {
				want = append(want, records[i].ID)
			}
		}
		sort.Ints(want)

		seen := make(map[int]string)
		var got []int
		for value, ids := range idx[field] {
			require.NotEmpty(t, ids, "empty buckets must be absent")
			assert.True(t, sort.IntsAreSorted(ids))
			for _, id := range ids {
				if prev, dup := seen[id]; dup {
					t.Fatalf("record %d in buckets %q and %q of %s", id, prev, value, field)
				}
				seen[id] = value
				got = append(got, id)
			}
		}
		sort.Ints(got)
		assert.Equal(t, want, got, field)
	}
}

func TestValuesOrderedByCount(t *testing.T) {
	records := []corpus.Record{
		{ID: 1, Category: "Storage"},
		{ID: 2, Category: "Networking"},
		{ID: 3, Category: "Storage"},
		{ID: 4, Category: "Compute"},
	}
	idx := Build(records, []corpus.FacetField{corpus.FacetCategory})
	assert.Equal(t, []ValueCount{
		{Value: "Storage", Count: 2},
		{Value: "Compute", Count: 1},
		{Value: "Networking", Count: 1},
	}, idx.Values(corpus.FacetCategory))
	assert.Empty(t, idx.Values(corpus.FacetEnvironment))
}
