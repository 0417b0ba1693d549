// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package ledger implements the read-only SQLite-backed usage-ledger
// summariser. Rows are written by a process outside this module;
// nothing in this module writes them, and this package only reads and
// aggregates them.
// Grounded on vango-go-vai-lite's pkg/core/types.Usage aggregation
// shape (input/output/total token fields, optional cache read/write
// counts, summed via an Add-style combinator) and on
// vovakirdan-wirechat-server's internal/store/sqlite for the
// database/sql + mattn/go-sqlite3 open/query pattern.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Row is one collaborator invocation's usage record.
type Row struct {
	Model                    string
	At                       time.Time
	InputTokens              int64
	OutputTokens             int64
	TotalTokens              int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// ModelSummary aggregates usage for a single model within a summary
// window.
type ModelSummary struct {
	Model       string `json:"model"`
	Requests    int64  `json:"requests"`
	TotalTokens int64  `json:"totalTokens"`
}

// Summary is the aggregate usage report for a time window.
type Summary struct {
	Requests                 int64          `json:"requests"`
	InputTokens              int64          `json:"inputTokens"`
	OutputTokens             int64          `json:"outputTokens"`
	TotalTokens              int64          `json:"totalTokens"`
	CacheCreationInputTokens int64          `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     int64          `json:"cacheReadInputTokens"`
	ByModel                  []ModelSummary `json:"byModel"`
}

// Store is a read-only handle onto the usage ledger database.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite ledger database at path. The schema is
// expected to already exist (created by whatever process appends usage
// rows); Open never creates or migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Summary aggregates every row at or after `since`, grouped by model.
func (s *Store) Summary(ctx context.Context, since time.Time) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, input_tokens, output_tokens, total_tokens,
		       cache_creation_input_tokens, cache_read_input_tokens
		FROM usage_records
		WHERE recorded_at >= ?
	`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: query usage records: %w", err)
	}
	defer rows.Close()

	summary := Summary{}
	byModel := make(map[string]*ModelSummary)
	var order []string

	for rows.Next() {
		var (
			model                                     string
			inputTokens, outputTokens, totalTokens    int64
			cacheCreationTokens, cacheReadInputTokens int64
		)
		if err := rows.Scan(&model, &inputTokens, &outputTokens, &totalTokens, &cacheCreationTokens, &cacheReadInputTokens); err != nil {
			return Summary{}, fmt.Errorf("ledger: scan usage record: %w", err)
		}

		summary.Requests++
		summary.InputTokens += inputTokens
		summary.OutputTokens += outputTokens
		summary.TotalTokens += totalTokens
		summary.CacheCreationInputTokens += cacheCreationTokens
		summary.CacheReadInputTokens += cacheReadInputTokens

		ms, ok := byModel[model]
		if !ok {
			ms = &ModelSummary{Model: model}
			byModel[model] = ms
			order = append(order, model)
		}
		ms.Requests++
		ms.TotalTokens += totalTokens
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("ledger: iterate usage records: %w", err)
	}

	summary.ByModel = make([]ModelSummary, 0, len(order))
	for _, model := range order {
		summary.ByModel = append(summary.ByModel, *byModel[model])
	}

	return summary, nil
}
