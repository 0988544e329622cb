// Package index builds the immutable term → postings mapping for one corpus
// generation, together with the per-record length statistics BM25 needs.
package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/tokenizer"
)

// Inverted is a read-only inverted index. It is never modified after Build
// returns, so any number of goroutines may read it concurrently.
type Inverted struct {
	postings    map[string]PostingList
	docLengths  map[int]int
	docCount    int
	totalTokens int64
	size        int64
}

// Build tokenises every text field of every record in a single pass and
// produces postings ordered by record id. Repeated tokens increment the
// frequency; records without any token appear in no posting list.
func Build(records []corpus.Record) *Inverted {
	inv := &Inverted{
		postings:   make(map[string]PostingList),
		docLengths: make(map[int]int, len(records)),
		docCount:   len(records),
	}
	for i := range records {
		inv.add(&records[i])
	}
	for term, pl := range inv.postings {
		if !sort.SliceIsSorted(pl, func(i, j int) bool { return pl[i].RecordID < pl[j].RecordID }) {
			sort.Slice(pl, func(i, j int) bool { return pl[i].RecordID < pl[j].RecordID })
		}
		inv.size += int64(len(term))
	}
	return inv
}

func (inv *Inverted) add(rec *corpus.Record) {
	termData := make(map[string]*Posting)
	order := make([]string, 0)
	length := 0
	for _, field := range corpus.TextFields {
		for _, token := range tokenizer.TokenizeAll(rec.Text(field), field) {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					RecordID:  rec.ID,
					Positions: make([]Position, 0, 2),
				}
				termData[token.Term] = p
				order = append(order, token.Term)
			}
			p.Frequency++
			p.Fields = p.Fields.Add(token.Field)
			p.Positions = append(p.Positions, Position{Field: token.Field, Offset: token.Position})
			length++
		}
	}
	inv.docLengths[rec.ID] = length
	inv.totalTokens += int64(length)
	for _, term := range order {
		posting := termData[term]
		inv.postings[term] = append(inv.postings[term], *posting)
		inv.size += int64(16 + len(posting.Positions)*16)
	}
}

// Postings returns the posting list for an already-normalised term.
func (inv *Inverted) Postings(term string) PostingList {
	return inv.postings[term]
}

// DocFrequency returns how many records contain term.
func (inv *Inverted) DocFrequency(term string) int {
	return len(inv.postings[term])
}

// DocLength returns the number of tokens indexed for a record.
func (inv *Inverted) DocLength(recordID int) int {
	return inv.docLengths[recordID]
}

// AvgDocLength is the mean token count over all records, including empty ones.
func (inv *Inverted) AvgDocLength() float64 {
	if inv.docCount == 0 {
		return 0
	}
	return float64(inv.totalTokens) / float64(inv.docCount)
}

// DocCount returns the number of records the index was built from.
func (inv *Inverted) DocCount() int {
	return inv.docCount
}

// TermCount returns the number of distinct terms.
func (inv *Inverted) TermCount() int {
	return len(inv.postings)
}

// Size is a rough estimate of the index footprint in bytes.
func (inv *Inverted) Size() int64 {
	return inv.size
}

// Terms returns all indexed terms in sorted order.
func (inv *Inverted) Terms() []string {
	terms := make([]string, 0, len(inv.postings))
	for term := range inv.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Snapshot lists every term with its postings, ordered by term.
func (inv *Inverted) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(inv.postings))
	for _, term := range inv.Terms() {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: inv.postings[term],
		})
	}
	return entries
}

// TopTerms returns the n terms with the highest document frequency, ties
// broken alphabetically.
func (inv *Inverted) TopTerms(n int) []TermEntry {
	entries := inv.Snapshot()
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Postings) > len(entries[j].Postings)
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
