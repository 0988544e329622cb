package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/postgres"
)

// Postgres reads every row of a scenarios table inside one read-only
// snapshot. Expected columns:
//
//	id int, title text, category text, environment text, summary text,
//	what_happened text, diagnosis_steps text[], root_cause text, fix text,
//	lessons_learned text, how_to_avoid text[]
type Postgres struct {
	client *postgres.Client
	table  string
}

func NewPostgres(client *postgres.Client, table string) *Postgres {
	return &Postgres{client: client, table: table}
}

func (p *Postgres) Name() string {
	return "postgres:" + p.table
}

func (p *Postgres) Fetch(ctx context.Context) ([]corpus.Record, error) {
	query := fmt.Sprintf(`SELECT id, title, category, environment, summary, what_happened,
		diagnosis_steps, root_cause, fix, lessons_learned, how_to_avoid
		FROM %s ORDER BY id`, pq.QuoteIdentifier(p.table))

	var records []corpus.Record
	err := p.client.ReadSnapshot(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("querying %s: %w", p.table, err)
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord maps NULL text columns to "" and NULL arrays to empty lists, so
// records never carry nulls.
func scanRecord(row scanner) (corpus.Record, error) {
	var (
		rec                                   corpus.Record
		title, category, environment, summary sql.NullString
		whatHappened, rootCause, fix, lessons sql.NullString
		diagnosis, avoid                      pq.StringArray
	)
	if err := row.Scan(
		&rec.ID, &title, &category, &environment, &summary, &whatHappened,
		&diagnosis, &rootCause, &fix, &lessons, &avoid,
	); err != nil {
		return corpus.Record{}, fmt.Errorf("scanning record: %w", err)
	}
	rec.Title = title.String
	rec.Category = category.String
	rec.Environment = environment.String
	rec.Summary = summary.String
	rec.WhatHappened = whatHappened.String
	rec.RootCause = rootCause.String
	rec.Fix = fix.String
	rec.LessonsLearned = lessons.String
	rec.DiagnosisSteps = []string(diagnosis)
	rec.HowToAvoid = []string(avoid)
	if rec.DiagnosisSteps == nil {
		rec.DiagnosisSteps = []string{}
	}
	if rec.HowToAvoid == nil {
		rec.HowToAvoid = []string{}
	}
	return rec, nil
}
