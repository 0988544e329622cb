package reloader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/kafka"
)

type stubSource struct {
	records []corpus.Record
	err     error
	calls   atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(context.Context) ([]corpus.Record, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func TestReloadBuildsGeneration(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: corpustest.Seed()}
	r := New(engine, src, 1, time.Second)

	id, err := r.Reload(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, uint64(1), engine.Current())

	src.records = corpustest.Generate(7)
	id, err = r.Reload(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
	info, err := engine.CurrentInfo()
	require.NoError(t, err)
	assert.Equal(t, 7, info.Records)
}

func TestReloadFailureKeepsCurrent(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: corpustest.Seed()}
	r := New(engine, src, 2, time.Second)
	_, err := r.Reload(context.Background(), "test")
	require.NoError(t, err)

	src.err = errors.New("source offline")
	_, err = r.Reload(context.Background(), "test")
	require.Error(t, err)
	assert.Equal(t, uint64(1), engine.Current())

	src.err = nil
	src.records = nil
	_, err = r.Reload(context.Background(), "test")
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
	assert.Equal(t, uint64(1), engine.Current())
}

func TestHandleMessage(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: corpustest.Seed()}
	handle := New(engine, src, 1, time.Second).HandleMessage()

	err := handle(context.Background(), []byte("k"), []byte(`{"reason":"corpus updated","requested_by":"ops"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), engine.Current())

	err = handle(context.Background(), []byte("k"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), engine.Current())
}

func TestHandleMessageMalformed(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: corpustest.Seed()}
	handle := New(engine, src, 1, time.Second).HandleMessage()

	err := handle(context.Background(), []byte("k"), []byte(`not json`))
	assert.ErrorIs(t, err, kafka.ErrMalformed)
	assert.Zero(t, src.calls.Load())
	assert.Zero(t, engine.Current())
}

func TestHandleMessageFailedRebuild(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: []corpus.Record{{ID: 1}}}
	handle := New(engine, src, 1, time.Second).HandleMessage()

	err := handle(context.Background(), nil, []byte(`{"reason":"bad data"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, kafka.ErrMalformed)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRecord)
}

func TestHandleMessageFailedRebuildKeepsServing(t *testing.T) {
	engine := indexer.NewEngine()
	src := &stubSource{records: corpustest.Seed()}
	rl := New(engine, src, 1, time.Second)
	_, err := rl.Reload(context.Background(), "startup")
	require.NoError(t, err)

	src.records = []corpus.Record{{ID: 1}}
	err = rl.HandleMessage()(context.Background(), []byte("k"), []byte(`{"reason":"bad data"}`))
	require.Error(t, err)
	assert.Equal(t, uint64(1), engine.Current())
	assert.Equal(t, indexer.StateReady, engine.State())
}
