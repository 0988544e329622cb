package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
)

// File reads a JSON array (".json") or YAML sequence (".yaml", ".yml") of
// records.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Name() string {
	return "file:" + f.Path
}

func (f *File) Fetch(ctx context.Context) ([]corpus.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return DecodeJSON(data)
	}
}

// DecodeJSON parses a JSON array of records. Unknown fields are rejected so
// a misspelt field name cannot silently become an empty one. An explicit
// null, for a record or any of its fields or list items, is ErrInvalidRecord.
func DecodeJSON(data []byte) ([]corpus.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var records []corpus.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	for i, fields := range raw {
		if fields == nil {
			return nil, apperrors.InvalidRecordf("record at index %d is null", i)
		}
		for _, name := range sortedKeys(fields) {
			if jsonHasNull(fields[name]) {
				return nil, apperrors.InvalidRecordf("record at index %d: field %q is null", i, name)
			}
		}
	}
	return records, nil
}

// DecodeYAML is DecodeJSON for a YAML sequence. An empty value (`title:`)
// is a null.
func DecodeYAML(data []byte) ([]corpus.Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var records []corpus.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	var raw []map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	for i, fields := range raw {
		if fields == nil {
			return nil, apperrors.InvalidRecordf("record at index %d is null", i)
		}
		for _, name := range sortedKeys(fields) {
			node := fields[name]
			if yamlHasNull(&node) {
				return nil, apperrors.InvalidRecordf("record at index %d: field %q is null", i, name)
			}
		}
	}
	return records, nil
}

func jsonHasNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	if bytes.Equal(v, []byte("null")) {
		return true
	}
	if len(v) == 0 || v[0] != '[' {
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return false
	}
	for _, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			return true
		}
	}
	return false
}

func yamlHasNull(n *yaml.Node) bool {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return true
	}
	if n.Kind == yaml.SequenceNode {
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode && item.Tag == "!!null" {
				return true
			}
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
