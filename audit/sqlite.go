package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const createDecisionsTable = `CREATE TABLE IF NOT EXISTS match_decisions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	ts             TEXT NOT NULL,
	level          TEXT NOT NULL,
	mode           TEXT NOT NULL,
	property_iri   TEXT NOT NULL,
	property_label TEXT NOT NULL,
	group_name     TEXT NOT NULL,
	field          TEXT NOT NULL,
	result         TEXT NOT NULL,
	reason         TEXT NOT NULL,
	score          REAL
)`

const insertDecision = `INSERT INTO match_decisions
	(run_id, ts, level, mode, property_iri, property_label, group_name, field, result, reason, score)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink stores decision records in a SQLite table.
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteSink opens (creating if needed) the database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createDecisionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create decisions table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts records in a single transaction.
func (s *SQLiteSink) Append(ctx context.Context, records []DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertDecision)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var score sql.NullFloat64
		if r.Score != nil {
			score = sql.NullFloat64{Float64: *r.Score, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Timestamp.Format(TimestampLayout), string(r.Level), r.Mode,
			r.PropertyIRI, r.PropertyLabel, r.GroupName, r.Field, r.Result, r.Reason, score,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert audit record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// Count returns how many records are stored for runID, or in total when runID is empty.
func (s *SQLiteSink) Count(ctx context.Context, runID string) (int, error) {
	q := `SELECT COUNT(*) FROM match_decisions`
	var args []any
	if runID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
