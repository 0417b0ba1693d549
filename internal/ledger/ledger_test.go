// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, seed func(*sql.DB)) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")

	setup, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = setup.Exec(`
		CREATE TABLE usage_records (
			model TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			cache_creation_input_tokens INTEGER NOT NULL,
			cache_read_input_tokens INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)
	if seed != nil {
		seed(setup)
	}
	require.NoError(t, setup.Close())

	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertRow(t *testing.T, db *sql.DB, model string, at time.Time, in, out, total, cacheCreate, cacheRead int64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO usage_records (model, recorded_at, input_tokens, output_tokens, total_tokens, cache_creation_input_tokens, cache_read_input_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, model, at.UTC().Format(time.RFC3339Nano), in, out, total, cacheCreate, cacheRead)
	require.NoError(t, err)
}

// TestSummaryAppliesTwentyFourHourCutoff verifies the 24-hour usage
// cutoff: rows at now-1s and now-2s fall inside a 24h window, a row at
// now-25h does not.
func TestSummaryAppliesTwentyFourHourCutoff(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	store := newTestStore(t, func(db *sql.DB) {
		insertRow(t, db, "assistant-model", now.Add(-1*time.Second), 60, 30, 90, 5, 15)
		insertRow(t, db, "assistant-model", now.Add(-2*time.Second), 65, 30, 95, 5, 20)
		insertRow(t, db, "assistant-model", now.Add(-25*time.Hour), 1000, 1000, 2000, 1000, 1000)
	})

	summary, err := store.Summary(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)

	require.Equal(t, int64(2), summary.Requests)
	require.Equal(t, int64(125), summary.InputTokens)
	require.Equal(t, int64(60), summary.OutputTokens)
	require.Equal(t, int64(185), summary.TotalTokens)
	require.Equal(t, int64(10), summary.CacheCreationInputTokens)
	require.Equal(t, int64(35), summary.CacheReadInputTokens)
	require.Len(t, summary.ByModel, 1)
	require.Equal(t, int64(185), summary.ByModel[0].TotalTokens)
}

func TestSummaryEmptyWindowReturnsZeroValue(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, nil)

	summary, err := store.Summary(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), summary.Requests)
	require.Empty(t, summary.ByModel)
}

func TestSummarySeparatesModels(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, func(db *sql.DB) {
		insertRow(t, db, "model-a", now.Add(-1*time.Second), 10, 10, 20, 0, 0)
		insertRow(t, db, "model-b", now.Add(-1*time.Second), 5, 5, 10, 0, 0)
	})

	summary, err := store.Summary(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, summary.ByModel, 2)
	require.Equal(t, int64(30), summary.TotalTokens)
}
