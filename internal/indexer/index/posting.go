package index

import "github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"

// Position locates one occurrence of a term inside a record.
type Position struct {
	Field  corpus.Field
	Offset int
}

// Posting relates a term to one record containing it: how often it occurs,
// which fields it occurs in, and where.
type Posting struct {
	RecordID  int
	Frequency int
	Fields    corpus.FieldSet
	Positions []Position
}

// FieldFrequency counts the occurrences of the term in field f.
func (p *Posting) FieldFrequency(f corpus.Field) int {
	n := 0
	for _, pos := range p.Positions {
		if pos.Field == f {
			n++
		}
	}
	return n
}

// PostingList is ordered by ascending RecordID.
type PostingList []Posting

// RecordIDs returns the record ids of the list in order.
func (pl PostingList) RecordIDs() []int {
	ids := make([]int, len(pl))
	for i := range pl {
		ids[i] = pl[i].RecordID
	}
	return ids
}

// Find returns the posting for recordID using binary search.
func (pl PostingList) Find(recordID int) (*Posting, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].RecordID < recordID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].RecordID == recordID {
		return &pl[lo], true
	}
	return nil, false
}

type TermEntry struct {
	Term     string
	Postings PostingList
}
