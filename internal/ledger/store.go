package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mepipe/internal/audit"
	"mepipe/internal/config"
)

// Record is one persisted per-scan outcome.
type Record struct {
	ID        int64
	RunID     string
	Exam      string
	Scan      string
	Outcome   audit.Outcome
	Detail    string
	CreatedAt time.Time
}

// Store manages outcome persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database under the log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenAt(filepath.Join(cfg.Paths.LogDir, "ledger.db"))
}

// OpenAt opens the ledger database at an explicit path.
func OpenAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the database.
func (s *Store) Path() string {
	return s.path
}

// Record persists one scan outcome.
func (s *Store) Record(ctx context.Context, runID, exam, scan string, outcome audit.Outcome, detail string) (*Record, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scan_outcomes (run_id, exam, scan, outcome, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, exam, scan, string(outcome), nullableString(detail), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Record{ID: id, RunID: runID, Exam: exam, Scan: scan, Outcome: outcome, Detail: detail, CreatedAt: now}, nil
}

// ExamRecords returns every recorded outcome for an exam, newest first.
func (s *Store) ExamRecords(ctx context.Context, exam string) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, exam, scan, outcome, detail, created_at
         FROM scan_outcomes WHERE exam = ? ORDER BY created_at DESC, id DESC`,
		exam,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LatestOutcomes returns the most recent record per scan of an exam.
func (s *Store) LatestOutcomes(ctx context.Context, exam string) (map[string]Record, error) {
	records, err := s.ExamRecords(ctx, exam)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Record, len(records))
	for _, record := range records {
		if _, seen := latest[record.Scan]; !seen {
			latest[record.Scan] = record
		}
	}
	return latest, nil
}

// Prune deletes records older than the retention window and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_outcomes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			record    Record
			outcome   string
			detail    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&record.ID, &record.RunID, &record.Exam, &record.Scan, &outcome, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		record.Outcome = audit.Outcome(outcome)
		record.Detail = detail.String
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			record.CreatedAt = ts
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}
	return records, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
