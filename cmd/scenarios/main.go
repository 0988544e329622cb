// Command scenarios queries a scenario file offline, without the HTTP service.
//
//	scenarios search  -data scenarios.json -category Networking dns timeout
//	scenarios facets  -data scenarios.json environment
//	scenarios terms   -data scenarios.json -n 25
//	scenarios validate -data scenarios.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/source"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/logger"
)

const usage = `usage: scenarios <command> [flags] [args]

commands:
  search    rank records for a query and/or facet filters
  facets    list the values of a facet field with record counts
  terms     list the most frequent indexed terms
  validate  load a file and report whether every record is valid
`

// multiFlag collects a repeated string flag.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "search":
		err = runSearch(os.Args[2:], os.Stdout)
	case "facets":
		err = runFacets(os.Args[2:], os.Stdout)
	case "terms":
		err = runTerms(os.Args[2:], os.Stdout)
	case "validate":
		err = runValidate(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenarios %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

type common struct {
	data     *string
	logLevel *string
}

func commonFlags(fs *flag.FlagSet) common {
	return common{
		data:     fs.String("data", "data/scenarios.json", "scenario file (.json, .yaml or .yml)"),
		logLevel: fs.String("log-level", "warn", "log level"),
	}
}

func (c common) engine(ctx context.Context) (*indexer.Engine, error) {
	logger.Setup(*c.logLevel, "text")
	loaded, err := source.LoadCorpus(ctx, source.NewFile(*c.data), 1, 30*time.Second)
	if err != nil {
		return nil, err
	}
	engine := indexer.NewEngine()
	if _, err := engine.BuildIndexes(ctx, loaded); err != nil {
		return nil, err
	}
	return engine, nil
}

func runSearch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	c := commonFlags(fs)
	var categories, environments multiFlag
	fs.Var(&categories, "category", "category filter (repeatable)")
	fs.Var(&environments, "environment", "environment filter (repeatable)")
	limit := fs.Int("limit", executor.DefaultLimit, "page size")
	offset := fs.Int("offset", 0, "page offset")
	asJSON := fs.Bool("json", false, "print the raw result as JSON")
	timeout := fs.Duration("timeout", 2*time.Second, "search deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}
	q := executor.Query{
		Text:        strings.Join(fs.Args(), " "),
		Limit:       *limit,
		Offset:      *offset,
		WithRecords: true,
	}
	if len(categories) > 0 || len(environments) > 0 {
		q.Filters = make(map[string][]string)
		if len(categories) > 0 {
			q.Filters[string(corpus.FacetCategory)] = categories
		}
		if len(environments) > 0 {
			q.Filters[string(corpus.FacetEnvironment)] = environments
		}
	}

	sctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	result, err := executor.New(engine).Search(sctx, 0, q)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%d hit(s) for %q\n\n", result.TotalHits, q.String())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tSCORE\tCATEGORY\tENVIRONMENT\tTITLE")
	for i, doc := range result.Results {
		rec := recordByID(result.Records, doc.RecordID)
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\t%s\t%s\n",
			result.Offset+i+1, doc.RecordID, doc.Score, rec.Category, rec.Environment, rec.Title)
	}
	return tw.Flush()
}

func recordByID(records []corpus.Record, id int) corpus.Record {
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	return corpus.Record{ID: id}
}

func runFacets(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("facets", flag.ContinueOnError)
	c := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one facet field (category or environment)")
	}
	field, ok := corpus.ParseFacetField(fs.Arg(0))
	if !ok {
		return fmt.Errorf("unknown facet field %q", fs.Arg(0))
	}
	engine, err := c.engine(context.Background())
	if err != nil {
		return err
	}
	gen, err := engine.Acquire(0)
	if err != nil {
		return err
	}
	defer gen.Release()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tRECORDS\n", strings.ToUpper(string(field)))
	for _, vc := range gen.Facets().Values(field) {
		fmt.Fprintf(tw, "%s\t%d\n", vc.Value, vc.Count)
	}
	return tw.Flush()
}

func runTerms(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("terms", flag.ContinueOnError)
	c := commonFlags(fs)
	n := fs.Int("n", 20, "number of terms")
	if err := fs.Parse(args); err != nil {
		return err
	}
	engine, err := c.engine(context.Background())
	if err != nil {
		return err
	}
	gen, err := engine.Acquire(0)
	if err != nil {
		return err
	}
	defer gen.Release()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tRECORDS")
	for _, entry := range gen.Inverted().TopTerms(*n) {
		fmt.Fprintf(tw, "%s\t%d\n", entry.Term, len(entry.Postings))
	}
	return tw.Flush()
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	c := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger.Setup(*c.logLevel, "text")
	records, err := source.NewFile(*c.data).Fetch(context.Background())
	if err != nil {
		return err
	}
	loaded, err := corpus.Load(records)
	if err != nil {
		return err
	}
	slog.Debug("corpus validated", "records", loaded.Len())
	fmt.Fprintf(out, "ok: %d records, fingerprint %s\n", loaded.Len(), loaded.Fingerprint())
	return nil
}
