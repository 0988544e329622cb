package corpus_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/corpustest"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
)

func TestLoadSortsAndTrims(t *testing.T) {
	records := corpustest.Seed()
	records[0], records[1] = records[1], records[0]
	records[0].Category = "  Storage  "

	c, err := corpus.Load(records)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []int{1, 2}, c.IDs())
	rec, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, "Storage", rec.Category)
	assert.True(t, c.Contains(1))
	assert.False(t, c.Contains(3))
	assert.False(t, c.LoadedAt().IsZero())
}

func TestLoadRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]corpus.Record) []corpus.Record
		want   string
	}{
		{
			name:   "missing id",
			mutate: func(r []corpus.Record) []corpus.Record { r[0].ID = 0; return r },
			want:   "id is required",
		},
		{
			name:   "blank category",
			mutate: func(r []corpus.Record) []corpus.Record { r[1].Category = "   "; return r },
			want:   "category is required",
		},
		{
			name:   "missing environment",
			mutate: func(r []corpus.Record) []corpus.Record { r[1].Environment = ""; return r },
			want:   "environment is required",
		},
		{
			name:   "duplicate id",
			mutate: func(r []corpus.Record) []corpus.Record { r[1].ID = 1; return r },
			want:   "duplicate id",
		},
		{
			name: "over-long text",
			mutate: func(r []corpus.Record) []corpus.Record {
				r[0].HowToAvoid = append(r[0].HowToAvoid, strings.Repeat("é", 2001))
				return r
			},
			want: "howToAvoid exceeds 2000 characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := corpus.Load(tt.mutate(corpustest.Seed()))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidRecord)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadAcceptsMaxLengthText(t *testing.T) {
	records := corpustest.Seed()
	records[0].Summary = strings.Repeat("ü", 2000)
	_, err := corpus.Load(records)
	assert.NoError(t, err)
}

func TestLoadCapsReportedIssues(t *testing.T) {
	records := make([]corpus.Record, 15)
	_, err := corpus.Load(records)
	require.ErrorIs(t, err, apperrors.ErrInvalidRecord)
	assert.Contains(t, err.Error(), "and ")
	assert.Contains(t, err.Error(), "more")
}

func TestLoadEmptyIsNotAnError(t *testing.T) {
	c, err := corpus.Load(nil)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestCorpusIsIsolatedFromCaller(t *testing.T) {
	records := corpustest.Seed()
	c := corpustest.MustLoad(t, records)

	records[0].Title = "changed"
	records[0].DiagnosisSteps[0] = "changed"

	rec, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "DNS Resolution Failure due to CoreDNS Pod Crash", rec.Title)
	assert.NotEqual(t, "changed", rec.DiagnosisSteps[0])

	rec.HowToAvoid[0] = "mutated copy"
	again, _ := c.Get(1)
	assert.NotEqual(t, "mutated copy", again.HowToAvoid[0])
}

func TestFingerprintIsContentAddressed(t *testing.T) {
	a := corpustest.MustLoad(t, corpustest.Seed())
	b := corpustest.MustLoad(t, corpustest.Seed())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	changed := corpustest.Seed()
	changed[1].Fix = "Something else."
	c := corpustest.MustLoad(t, changed)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseFacetField(t *testing.T) {
	f, ok := corpus.ParseFacetField(" Category ")
	require.True(t, ok)
	assert.Equal(t, corpus.FacetCategory, f)

	_, ok = corpus.ParseFacetField("title")
	assert.False(t, ok)
}

func TestFieldSet(t *testing.T) {
	var fs corpus.FieldSet
	fs = fs.Add(corpus.FieldFix).Add(corpus.FieldTitle).Add(corpus.FieldFix)
	assert.True(t, fs.Has(corpus.FieldTitle))
	assert.False(t, fs.Has(corpus.FieldSummary))
	assert.Equal(t, []corpus.Field{corpus.FieldTitle, corpus.FieldFix}, fs.Fields())
	assert.Equal(t, "lessonsLearned", corpus.FieldLessonsLearned.String())
}
