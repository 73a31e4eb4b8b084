package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	now := time.Now()
	rec := LogRecord{
		RunID:     "run-1",
		Case:      "tx-2030",
		Labels:    model.CaseLabels{State: "TX", Year: 2030},
		Started:   now,
		Finished:  now.Add(time.Second),
		Status:    "optimal",
		Objective: 1234.5,
		Windows:   []metrics.WindowResult{{Start: 0, Length: 24, Status: "optimal", Objective: 1234.5}},
	}
	require.NoError(t, store.Append(context.Background(), rec))
	require.NoError(t, store.Append(context.Background(), LogRecord{RunID: "run-2", Case: "ca", Status: "infeasible", Started: now.Add(time.Minute)}))

	out, err := store.Query(context.Background(), LogQuery{Case: "tx-2030"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "run-1", out[0].RunID)
	assert.Equal(t, 2030, out[0].Labels.Year)
	require.Len(t, out[0].Windows, 1)
	assert.Equal(t, 24, out[0].Windows[0].Length)

	out, err = store.Query(context.Background(), LogQuery{Start: now.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "run-2", out[0].RunID)
}

func TestJSONLStore_AppendQuery(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Append(context.Background(), LogRecord{RunID: id, Case: "c"}))
	}
	out, err := store.Query(context.Background(), LogQuery{RunID: "b"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].RunID)
}

func TestNewLogStoreFromConfig(t *testing.T) {
	dir := t.TempDir()
	for _, typ := range []string{"jsonl", "rotating", "sqlite"} {
		s, err := NewLogStore(factoryConfig(typ, filepath.Join(dir, typ+".log")))
		require.NoError(t, err, typ)
		require.NoError(t, s.Append(context.Background(), LogRecord{RunID: typ}))
		out, err := s.Query(context.Background(), LogQuery{})
		require.NoError(t, err, typ)
		assert.Len(t, out, 1, typ)
		require.NoError(t, s.Close())
	}
	_, err := NewLogStore(factoryConfig("parquet", "x"))
	assert.Error(t, err)
}
