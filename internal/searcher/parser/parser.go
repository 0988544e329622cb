// Package parser turns the free-text part of a search request into a query
// plan. Words are normalised with the indexing tokenizer so query terms and
// indexed terms always agree.
//
// Syntax:
//
//	dns crash        records containing either term (default)
//	dns AND crash    records containing both terms
//	"pod crash"      records where the terms appear consecutively in one field
//	NOT coredns      exclude records containing the term (also -coredns)
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryOR QueryType = iota
	QueryAND
)

func (t QueryType) String() string {
	if t == QueryAND {
		return "AND"
	}
	return "OR"
}

// Clause is a single term or, when Phrase is set, an ordered run of terms.
type Clause struct {
	Terms  []string
	Phrase bool
}

func (c Clause) String() string {
	if c.Phrase {
		return `"` + strings.Join(c.Terms, " ") + `"`
	}
	return strings.Join(c.Terms, " ")
}

type QueryPlan struct {
	Clauses  []Clause
	Exclude  []Clause
	Type     QueryType
	RawQuery string
}

// Empty reports whether the plan has no positive clause, for example when
// every word was a stop-word.
func (p *QueryPlan) Empty() bool {
	return len(p.Clauses) == 0
}

// Terms returns the distinct positive terms in first-seen order. Scoring
// iterates this slice, which keeps floating-point sums reproducible.
func (p *QueryPlan) Terms() []string {
	seen := make(map[string]struct{})
	terms := make([]string, 0)
	for _, c := range p.Clauses {
		for _, t := range c.Terms {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}
	return terms
}

// Canonical renders the plan in a normalised form; two queries with the same
// canonical form match the same records.
func (p *QueryPlan) Canonical() string {
	parts := make([]string, 0, len(p.Clauses)+len(p.Exclude)+1)
	parts = append(parts, p.Type.String())
	for _, c := range p.Clauses {
		parts = append(parts, c.String())
	}
	for _, c := range p.Exclude {
		parts = append(parts, "-"+c.String())
	}
	return strings.Join(parts, "|")
}

type segment struct {
	text   string
	quoted bool
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Clauses:  make([]Clause, 0),
		Exclude:  make([]Clause, 0),
		Type:     QueryOR,
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	excludeNext := false
	for _, seg := range split(query) {
		text := seg.text
		if !seg.quoted {
			switch strings.ToUpper(text) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			case "NOT":
				excludeNext = true
				continue
			}
		}
		exclude := excludeNext
		excludeNext = false
		if !seg.quoted && len(text) > 1 && text[0] == '-' {
			exclude = true
			text = text[1:]
		}
		terms := tokenizer.Terms(text)
		if len(terms) == 0 {
			continue
		}
		// A word the tokenizer splits ("v1.22", "kube-proxy") is matched as
		// a phrase, like an explicitly quoted one.
		clause := Clause{Terms: terms, Phrase: len(terms) > 1}
		if exclude {
			plan.Exclude = append(plan.Exclude, clause)
		} else {
			plan.Clauses = append(plan.Clauses, clause)
		}
	}
	return plan
}

// split breaks a query into whitespace-separated words and double-quoted
// runs. An unterminated quote extends to the end of the query.
func split(query string) []segment {
	segs := make([]segment, 0)
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '"':
			rest := query[i+1:]
			end := strings.IndexByte(rest, '"')
			if end < 0 {
				segs = append(segs, segment{text: rest, quoted: true})
				i = len(query)
			} else {
				segs = append(segs, segment{text: rest[:end], quoted: true})
				i += end + 2
			}
		default:
			j := i
			for j < len(query) {
				r, size := utf8.DecodeRuneInString(query[j:])
				if unicode.IsSpace(r) || r == '"' {
					break
				}
				j += size
			}
			segs = append(segs, segment{text: query[i:j]})
			i = j
		}
	}
	return segs
}
