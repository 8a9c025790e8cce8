package analytics

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Index is a rebuildable SQLite secondary index over history.ndjson and
// error-ledger.ndjson, for queries the append-only logs serve poorly
// (range scans, group-by-category counts over large histories). It is
// never the system of record — RefreshFromNDJSON always replays the
// ledgers from scratch, so a corrupt or deleted index file is harmless.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	timestamp         TEXT NOT NULL,
	terminal_phase    TEXT NOT NULL,
	tickets_completed INTEGER NOT NULL,
	tickets_blocked   INTEGER NOT NULL,
	tickets_failed    INTEGER NOT NULL,
	prs_created       INTEGER NOT NULL,
	step_count        INTEGER NOT NULL,
	duration_s        REAL NOT NULL,
	git_sha           TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_project_ts ON runs(project_id, timestamp);

CREATE TABLE IF NOT EXISTS error_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        INTEGER NOT NULL,
	ticket_id TEXT NOT NULL,
	category  TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_events_category ON error_events(category);
`

// OpenIndex opens (creating if needed) a SQLite database at dbPath and
// ensures its schema exists, mirroring the teacher pack's WAL-mode,
// busy-timeout Open idiom for a local single-writer database.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("analytics: open index %s: %w", dbPath, err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("analytics: create index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// RefreshFromNDJSON truncates and repopulates the index from the current
// contents of history.ndjson and error-ledger.ndjson. Call after each run
// finalizes, or lazily before a query if the index looks stale.
func (idx *Index) RefreshFromNDJSON(history []HistoryEntry, ledger []ErrorLedgerEntry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("analytics: begin refresh: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM runs`); err != nil {
		return fmt.Errorf("analytics: clear runs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM error_events`); err != nil {
		return fmt.Errorf("analytics: clear error_events: %w", err)
	}

	runStmt, err := tx.Prepare(`INSERT OR REPLACE INTO runs
		(run_id, project_id, timestamp, terminal_phase, tickets_completed, tickets_blocked, tickets_failed, prs_created, step_count, duration_s, git_sha)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("analytics: prepare run insert: %w", err)
	}
	defer runStmt.Close()
	for _, e := range history {
		if _, err := runStmt.Exec(e.RunID, e.ProjectID, e.Timestamp, e.TerminalPhase, e.TicketsCompleted, e.TicketsBlocked, e.TicketsFailed, e.PRsCreated, e.StepCount, e.DurationSeconds, e.GitSHA); err != nil {
			return fmt.Errorf("analytics: insert run %s: %w", e.RunID, err)
		}
	}

	errStmt, err := tx.Prepare(`INSERT INTO error_events (ts, ticket_id, category, message) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("analytics: prepare error insert: %w", err)
	}
	defer errStmt.Close()
	for _, e := range ledger {
		if _, err := errStmt.Exec(e.Timestamp, e.TicketID, e.Category, e.Message); err != nil {
			return fmt.Errorf("analytics: insert error event: %w", err)
		}
	}

	return tx.Commit()
}

// RunsForProject returns every indexed run for one project, most recent
// timestamp first.
func (idx *Index) RunsForProject(projectID string) ([]HistoryEntry, error) {
	rows, err := idx.db.Query(`SELECT run_id, project_id, timestamp, terminal_phase, tickets_completed, tickets_blocked, tickets_failed, prs_created, step_count, duration_s, git_sha
		FROM runs WHERE project_id = ? ORDER BY timestamp DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("analytics: query runs: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var gitSHA sql.NullString
		if err := rows.Scan(&e.RunID, &e.ProjectID, &e.Timestamp, &e.TerminalPhase, &e.TicketsCompleted, &e.TicketsBlocked, &e.TicketsFailed, &e.PRsCreated, &e.StepCount, &e.DurationSeconds, &gitSHA); err != nil {
			return nil, fmt.Errorf("analytics: scan run: %w", err)
		}
		e.GitSHA = gitSHA.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CategoryCounts returns the number of error-ledger entries per category.
func (idx *Index) CategoryCounts() (map[string]int, error) {
	rows, err := idx.db.Query(`SELECT category, COUNT(*) FROM error_events GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("analytics: query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("analytics: scan category count: %w", err)
		}
		counts[category] = count
	}
	return counts, rows.Err()
}
