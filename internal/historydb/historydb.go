// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package historydb persists one row per `run` invocation to a local
// SQLite database, so repeated runs of the same module can be compared
// via the history CLI subcommand.
package historydb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed run: which module, which export, when, how
// long it took, how it ended, and the runtime state it left behind.
type Record struct {
	ID                int64
	ModuleHash        string
	ExportName        string
	StartedAt         time.Time
	DurationNanos     int64
	TrapMessage       string
	MemoryPagesFinal  uint32
	FunctionsExecuted int
}

// Store handles database operations against the run-history table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path,
// creating its parent directory and the runs table if absent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("historydb: failed to create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("historydb: failed to open db: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module_hash TEXT NOT NULL,
		export_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_nanos INTEGER NOT NULL,
		trap_message TEXT,
		memory_pages_final INTEGER NOT NULL,
		functions_executed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_module_hash ON runs(module_hash);
	`
	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("historydb: failed to init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists one run record and returns it with its assigned ID.
func (s *Store) Insert(rec Record) (Record, error) {
	query := `
	INSERT INTO runs (module_hash, export_name, started_at, duration_nanos, trap_message, memory_pages_final, functions_executed)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, rec.ModuleHash, rec.ExportName, rec.StartedAt, rec.DurationNanos,
		rec.TrapMessage, rec.MemoryPagesFinal, rec.FunctionsExecuted)
	if err != nil {
		return Record{}, fmt.Errorf("historydb: failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("historydb: failed to read inserted id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// List returns the most recent runs, newest first, up to limit (0 means
// no limit).
func (s *Store) List(limit int) ([]Record, error) {
	query := "SELECT id, module_hash, export_name, started_at, duration_nanos, trap_message, memory_pages_final, functions_executed FROM runs ORDER BY started_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("historydb: query failed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var trap sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ModuleHash, &rec.ExportName, &rec.StartedAt, &rec.DurationNanos,
			&trap, &rec.MemoryPagesFinal, &rec.FunctionsExecuted); err != nil {
			return nil, fmt.Errorf("historydb: scan failed: %w", err)
		}
		rec.TrapMessage = trap.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
