package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// AttemptRecord is one row of the attempt ledger: the durable audit trail of
// every synthesis round, pass or fail.
type AttemptRecord struct {
	RunID      string
	Target     string
	Seq        int
	Outcome    string // "success" or "failed"
	Diagnostic string
	CreatedAt  time.Time
}

// Ledger records attempt metadata in SQLite so runs can be audited after the
// fact without re-reading attempt files.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StoreError{Op: "ledger open", Path: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "ledger open", Path: path, Err: err}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		target TEXT NOT NULL,
		seq INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		diagnostic TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE(run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_target ON attempts(target);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StoreError{Op: "ledger init", Path: path, Err: err}
	}

	return &Ledger{db: db}, nil
}

// Record appends one attempt to the ledger.
func (l *Ledger) Record(rec AttemptRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(
		`INSERT INTO attempts (run_id, target, seq, outcome, diagnostic, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Target, rec.Seq, rec.Outcome, rec.Diagnostic, rec.CreatedAt,
	)
	if err != nil {
		return &StoreError{Op: "ledger record", Path: fmt.Sprintf("%s/%d", rec.Target, rec.Seq), Err: err}
	}
	return nil
}

// History returns every recorded attempt for a target, oldest first.
func (l *Ledger) History(target string) ([]AttemptRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT run_id, target, seq, outcome, diagnostic, created_at FROM attempts WHERE target = ? ORDER BY id`,
		target,
	)
	if err != nil {
		return nil, &StoreError{Op: "ledger history", Path: target, Err: err}
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		if err := rows.Scan(&rec.RunID, &rec.Target, &rec.Seq, &rec.Outcome, &rec.Diagnostic, &rec.CreatedAt); err != nil {
			return nil, &StoreError{Op: "ledger history", Path: target, Err: err}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
