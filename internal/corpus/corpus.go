package corpus

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
)

const (
	maxTextLength = 2000
	// maxReportedIssues caps how many problems one InvalidRecord error lists.
	maxReportedIssues = 10
)

// Corpus is an immutable, validated snapshot of records ordered by id.
type Corpus struct {
	records     []Record
	byID        map[int]int
	fingerprint string
	loadedAt    time.Time
}

// Load validates records and returns a Corpus. Loading is all-or-nothing:
// any missing id, category or environment, duplicate id, or over-long text
// field rejects the whole batch with ErrInvalidRecord. The input slice is
// copied, so later changes by the caller are not observed.
func Load(records []Record) (*Corpus, error) {
	var issues []string
	seen := make(map[int]int, len(records))
	normalized := make([]Record, 0, len(records))

	for i, rec := range records {
		rec = rec.Clone()
		rec.Category = strings.TrimSpace(rec.Category)
		rec.Environment = strings.TrimSpace(rec.Environment)
		for _, problem := range validateRecord(&rec) {
			issues = append(issues, fmt.Sprintf("record[%d] id=%d: %s", i, rec.ID, problem))
		}
		if rec.ID > 0 {
			if first, dup := seen[rec.ID]; dup {
				issues = append(issues, fmt.Sprintf("record[%d] id=%d: duplicate id (first seen at record[%d])", i, rec.ID, first))
			} else {
				seen[rec.ID] = i
			}
		}
		normalized = append(normalized, rec)
	}
	if len(issues) > 0 {
		total := len(issues)
		if total > maxReportedIssues {
			issues = append(issues[:maxReportedIssues], fmt.Sprintf("and %d more", total-maxReportedIssues))
		}
		return nil, apperrors.InvalidRecordf("%d problem(s): %s", total, strings.Join(issues, "; "))
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].ID < normalized[j].ID
	})
	byID := make(map[int]int, len(normalized))
	for i, rec := range normalized {
		byID[rec.ID] = i
	}
	fp, err := fingerprint(normalized)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting corpus: %w", err)
	}
	return &Corpus{
		records:     normalized,
		byID:        byID,
		fingerprint: fp,
		loadedAt:    time.Now().UTC(),
	}, nil
}

func validateRecord(rec *Record) []string {
	var problems []string
	if rec.ID <= 0 {
		problems = append(problems, "id is required and must be positive")
	}
	if rec.Category == "" {
		problems = append(problems, "category is required")
	}
	if rec.Environment == "" {
		problems = append(problems, "environment is required")
	}
	for _, f := range TextFields {
		for _, text := range rec.Text(f) {
			if utf8.RuneCountInString(text) > maxTextLength {
				problems = append(problems, fmt.Sprintf("%s exceeds %d characters", f, maxTextLength))
				break
			}
		}
	}
	return problems
}

// fingerprint hashes the canonical JSON encoding of the sorted records, so two
// corpora loaded from the same data compare equal.
func fingerprint(records []Record) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16]), nil
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.records)
}

// Records exposes the ordered record slice to index builders. Callers must
// treat it as read-only.
func (c *Corpus) Records() []Record {
	return c.records
}

// Get returns a copy of the record with the given id.
func (c *Corpus) Get(id int) (Record, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i].Clone(), true
}

// Contains reports whether id is part of the corpus.
func (c *Corpus) Contains(id int) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs returns every record id in ascending order.
func (c *Corpus) IDs() []int {
	ids := make([]int, len(c.records))
	for i, rec := range c.records {
		ids[i] = rec.ID
	}
	return ids
}

// Fingerprint is a content hash of the records.
func (c *Corpus) Fingerprint() string {
	return c.fingerprint
}

// LoadedAt returns when the snapshot was validated.
func (c *Corpus) LoadedAt() time.Time {
	return c.loadedAt
}
