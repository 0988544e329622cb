package ranker

import (
	"context"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75

	// checkEvery is how many postings are scored between deadline checks.
	checkEvery = 64
)

// fieldWeights boosts matches in short, descriptive fields over matches in
// the long narrative ones. Fields not listed weigh 1.
var fieldWeights = map[corpus.Field]float64{
	corpus.FieldTitle:     3.0,
	corpus.FieldSummary:   2.0,
	corpus.FieldRootCause: 1.5,
	corpus.FieldFix:       1.5,
}

type ScoredDoc struct {
	RecordID int     `json:"id"`
	Score    float64 `json:"score"`
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

type DocInfo struct {
	DocLength int
}

// TermPostings pairs a query term with its postings. Rank consumes a slice of
// these rather than a map so terms are always summed in the same order.
type TermPostings struct {
	Term     string
	Postings index.PostingList
}

// FieldWeight returns the scoring weight of a field.
func FieldWeight(f corpus.Field) float64 {
	if w, ok := fieldWeights[f]; ok {
		return w
	}
	return 1.0
}

// FieldBoost is the highest weight among the fields in fs.
func FieldBoost(fs corpus.FieldSet) float64 {
	boost := 0.0
	for _, f := range fs.Fields() {
		if w := FieldWeight(f); w > boost {
			boost = w
		}
	}
	if boost == 0 {
		return 1.0
	}
	return boost
}

// Rank scores every candidate with field-boosted BM25 over terms and returns
// them by descending score, ascending record id on ties. Candidates without
// any scoring posting get score 0. ctx is checked periodically; its error is
// returned if it expires.
func Rank(
	ctx context.Context,
	terms []TermPostings,
	candidates map[int]struct{},
	params RankParams,
	getDocInfo func(recordID int) DocInfo,
) ([]ScoredDoc, error) {
	scores := make(map[int]float64, len(candidates))
	for id := range candidates {
		scores[id] = 0
	}
	scored := 0
	for _, tp := range terms {
		idf := computeIDF(params.TotalDocs, int64(len(tp.Postings)))
		for i := range tp.Postings {
			posting := &tp.Postings[i]
			if _, ok := candidates[posting.RecordID]; !ok {
				continue
			}
			scored++
			if scored%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			info := getDocInfo(posting.RecordID)
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(info.DocLength),
				params.AvgDocLength,
			)
			scores[posting.RecordID] += idf * tfNorm * FieldBoost(posting.Fields)
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for id, score := range scores {
		result = append(result, ScoredDoc{
			RecordID: id,
			Score:    math.Round(score*10000) / 10000,
		})
	}
	Sort(result)
	return result, nil
}

// Sort orders docs by descending score, ascending record id on ties.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].RecordID < docs[j].RecordID
	})
}

// Page returns docs[offset:offset+limit], or an empty slice when offset is
// past the end.
func Page(docs []ScoredDoc, offset, limit int) []ScoredDoc {
	if offset >= len(docs) {
		return []ScoredDoc{}
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	out := make([]ScoredDoc, end-offset)
	copy(out, docs[offset:end])
	return out
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
