// Package source reads scenario records from where they live: a JSON or YAML
// file, or a PostgreSQL table. Sources only fetch; validation happens in
// corpus.Load.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/resilience"
)

// Source produces the full record set on every call.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]corpus.Record, error)
}

// LoadCorpus fetches from src with retries and a per-attempt timeout, then
// validates the records into a Corpus. Validation failures, including records
// a source rejects while decoding, are not retried.
func LoadCorpus(ctx context.Context, src Source, attempts int, timeout time.Duration) (*corpus.Corpus, error) {
	logger := slog.Default().With("component", "corpus-source", "source", src.Name())
	fetched, err := resilience.Do(ctx, "fetch "+src.Name(), resilience.RetryConfig{
		MaxAttempts: attempts,
		Retryable: func(err error) bool {
			return !errors.Is(err, apperrors.ErrInvalidRecord)
		},
	}, func() ([]corpus.Record, error) {
		var records []corpus.Record
		err := resilience.WithTimeout(ctx, timeout, "fetch "+src.Name(), func(ctx context.Context) error {
			var err error
			records, err = src.Fetch(ctx)
			return err
		})
		if err != nil {
			// A timed-out Fetch may still be writing records.
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching records from %s: %w", src.Name(), err)
	}
	c, err := corpus.Load(fetched)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus loaded", "records", c.Len(), "fingerprint", c.Fingerprint())
	return c, nil
}
