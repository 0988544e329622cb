// Package corpus defines the incident scenario record schema and the
// immutable, validated record snapshot that index generations are built from.
package corpus

import (
	"fmt"
	"strings"
)

// Field identifies a free-text field of a Record. Values fit in a FieldSet
// bitmap.
type Field uint8

const (
	FieldTitle Field = iota
	FieldSummary
	FieldWhatHappened
	FieldDiagnosisSteps
	FieldRootCause
	FieldFix
	FieldLessonsLearned
	FieldHowToAvoid
)

// TextFields lists every indexed free-text field in a fixed order.
var TextFields = []Field{
	FieldTitle,
	FieldSummary,
	FieldWhatHappened,
	FieldDiagnosisSteps,
	FieldRootCause,
	FieldFix,
	FieldLessonsLearned,
	FieldHowToAvoid,
}

var fieldNames = [...]string{
	FieldTitle:          "title",
	FieldSummary:        "summary",
	FieldWhatHappened:   "whatHappened",
	FieldDiagnosisSteps: "diagnosisSteps",
	FieldRootCause:      "rootCause",
	FieldFix:            "fix",
	FieldLessonsLearned: "lessonsLearned",
	FieldHowToAvoid:     "howToAvoid",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// FieldSet is a bitmap of Fields.
type FieldSet uint16

func (s FieldSet) Add(f Field) FieldSet { return s | 1<<f }

func (s FieldSet) Has(f Field) bool { return s&(1<<f) != 0 }

// Fields returns the members of s in TextFields order.
func (s FieldSet) Fields() []Field {
	out := make([]Field, 0, len(TextFields))
	for _, f := range TextFields {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// FacetField names a categorical field used for exact-match filtering.
type FacetField string

const (
	FacetCategory    FacetField = "category"
	FacetEnvironment FacetField = "environment"
)

// FacetFields lists the configured facet fields.
var FacetFields = []FacetField{FacetCategory, FacetEnvironment}

// ParseFacetField resolves a user-supplied facet name, case-insensitively.
func ParseFacetField(name string) (FacetField, bool) {
	for _, f := range FacetFields {
		if strings.EqualFold(string(f), strings.TrimSpace(name)) {
			return f, true
		}
	}
	return "", false
}

// Record is one incident scenario. Once loaded into a Corpus it is never
// mutated; accessors hand out copies.
type Record struct {
	ID             int      `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Category       string   `json:"category" yaml:"category"`
	Environment    string   `json:"environment" yaml:"environment"`
	Summary        string   `json:"summary" yaml:"summary"`
	WhatHappened   string   `json:"whatHappened" yaml:"whatHappened"`
	DiagnosisSteps []string `json:"diagnosisSteps" yaml:"diagnosisSteps"`
	RootCause      string   `json:"rootCause" yaml:"rootCause"`
	Fix            string   `json:"fix" yaml:"fix"`
	LessonsLearned string   `json:"lessonsLearned" yaml:"lessonsLearned"`
	HowToAvoid     []string `json:"howToAvoid" yaml:"howToAvoid"`
}

// Text returns the contents of a free-text field. Scalar fields yield a
// single element; list fields yield one element per item.
func (r *Record) Text(f Field) []string {
	switch f {
	case FieldTitle:
		return []string{r.Title}
	case FieldSummary:
		return []string{r.Summary}
	case FieldWhatHappened:
		return []string{r.WhatHappened}
	case FieldDiagnosisSteps:
		return r.DiagnosisSteps
	case FieldRootCause:
		return []string{r.RootCause}
	case FieldFix:
		return []string{r.Fix}
	case FieldLessonsLearned:
		return []string{r.LessonsLearned}
	case FieldHowToAvoid:
		return r.HowToAvoid
	}
	return nil
}

// Facet returns the value of a facet field.
func (r *Record) Facet(f FacetField) string {
	switch f {
	case FacetCategory:
		return r.Category
	case FacetEnvironment:
		return r.Environment
	}
	return ""
}

// Clone returns a deep copy so callers never share slices with a corpus.
func (r Record) Clone() Record {
	r.DiagnosisSteps = cloneStrings(r.DiagnosisSteps)
	r.HowToAvoid = cloneStrings(r.HowToAvoid)
	return r
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
