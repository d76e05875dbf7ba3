// Package history keeps a SQLite ledger of save runs: what was copied from
// where, and how it ended. It is a record for the user only; nothing reads
// it back to resume or skip work.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/alipan-save/internal/saver"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// maxErrorLen bounds the error text stored per run.
const maxErrorLen = 1000

// ErrRunNotFound is returned by Finish for an unknown run id.
var ErrRunNotFound = errors.New("history: run not found")

const (
	sqlInsertRun = `INSERT INTO runs
		(id, started_at, share_id, source_id, dest_parent_id, dest_name, api_base, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlFinishRun = `UPDATE runs SET
		finished_at = ?, dest_id = ?, status = ?, error = ?,
		folders_visited = ?, folders_created = ?, subtree_copies = ?, fallbacks = ?,
		files_copied = ?, files_failed = ?, empty_folders = ?
		WHERE id = ?`

	sqlRecentRuns = `SELECT id, started_at, finished_at, share_id, source_id,
		dest_parent_id, dest_id, dest_name, api_base, status, error,
		folders_visited, folders_created, subtree_copies, fallbacks,
		files_copied, files_failed, empty_folders
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`
)

// Run is one row of the ledger.
type Run struct {
	ID           string       `json:"id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
	ShareID      string       `json:"share_id"`
	SourceID     string       `json:"source_id"`
	DestParentID string       `json:"dest_parent_id"`
	DestID       string       `json:"dest_id,omitempty"`
	DestName     string       `json:"dest_name"`
	APIBase      string       `json:"api_base"`
	Status       string       `json:"status"`
	Error        string       `json:"error,omitempty"`
	Report       saver.Report `json:"report"`
}

// Store is the run ledger. Safe for use by one process at a time.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the ledger at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records the start of a run and returns its new id. ID, StartedAt
// and Status in run are ignored.
func (s *Store) Begin(ctx context.Context, run Run) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, sqlInsertRun,
		id, s.nowFunc().UnixNano(), run.ShareID, run.SourceID,
		run.DestParentID, run.DestName, run.APIBase, StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("history: recording run start: %w", err)
	}

	return id, nil
}

// Finish records how run id ended. A nil runErr marks it succeeded.
// report may be nil when the run failed before copying began.
func (s *Store) Finish(ctx context.Context, id, destID string, report *saver.Report, runErr error) error {
	status := StatusSucceeded
	errText := ""

	if runErr != nil {
		status = StatusFailed
		errText = truncate(runErr.Error(), maxErrorLen)
	}

	if report == nil {
		report = &saver.Report{}
	}

	res, err := s.db.ExecContext(ctx, sqlFinishRun,
		s.nowFunc().UnixNano(), destID, status, errText,
		report.FoldersVisited, report.FoldersCreated, report.SubtreeCopies, report.Fallbacks,
		report.FilesCopied, report.FilesFailed, report.EmptyFolders,
		id,
	)
	if err != nil {
		return fmt.Errorf("history: recording run end: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: recording run end: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)

		if err := rows.Scan(
			&r.ID, &started, &finished, &r.ShareID, &r.SourceID,
			&r.DestParentID, &r.DestID, &r.DestName, &r.APIBase, &r.Status, &r.Error,
			&r.Report.FoldersVisited, &r.Report.FoldersCreated, &r.Report.SubtreeCopies, &r.Report.Fallbacks,
			&r.Report.FilesCopied, &r.Report.FilesFailed, &r.Report.EmptyFolders,
		); err != nil {
			return nil, fmt.Errorf("history: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating runs: %w", err)
	}

	return runs, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
