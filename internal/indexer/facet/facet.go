// Package facet builds exact-match indexes over categorical record fields.
// Values are grouped verbatim after trimming; there is no case folding,
// fuzzy matching or hierarchy.
package facet

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
)

// Index maps facet field → value → ascending record ids. A value with no
// records is absent; callers treat absent and empty identically.
type Index map[corpus.FacetField]map[string][]int

// ValueCount is one bucket of a facet field.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Build groups record ids by facet value for each of fields.
func Build(records []corpus.Record, fields []corpus.FacetField) Index {
	idx := make(Index, len(fields))
	for _, field := range fields {
		buckets := make(map[string][]int)
		for i := range records {
			value := strings.TrimSpace(records[i].Facet(field))
			if value == "" {
				continue
			}
			buckets[value] = append(buckets[value], records[i].ID)
		}
		for _, ids := range buckets {
			sort.Ints(ids)
		}
		idx[field] = buckets
	}
	return idx
}

// Lookup returns the record ids with exactly value in field.
func (idx Index) Lookup(field corpus.FacetField, value string) []int {
	return idx[field][strings.TrimSpace(value)]
}

// Union returns the sorted, de-duplicated ids matching any of values.
func (idx Index) Union(field corpus.FacetField, values []string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, v := range values {
		for _, id := range idx.Lookup(field, v) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Values lists the buckets of field ordered by descending count, then value.
func (idx Index) Values(field corpus.FacetField) []ValueCount {
	buckets := idx[field]
	out := make([]ValueCount, 0, len(buckets))
	for value, ids := range buckets {
		out = append(out, ValueCount{Value: value, Count: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Fields returns the indexed facet fields in sorted order.
func (idx Index) Fields() []corpus.FacetField {
	fields := make([]corpus.FacetField, 0, len(idx))
	for f := range idx {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}
