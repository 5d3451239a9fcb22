// Package runlog keeps a write-only history of model runs in SQLite. No run
// reads it; it exists for later inspection.
package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	input_path    TEXT,
	output_path   TEXT,
	seed          INTEGER NOT NULL,
	chains        INTEGER NOT NULL,
	config_json   TEXT,
	status        TEXT NOT NULL,
	error         TEXT,
	n             INTEGER,
	nsub          INTEGER,
	ngroup        INTEGER,
	ntrial        INTEGER,
	started_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS run_warnings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	message       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// #endregion schema

// #region store-struct
// Store records runs in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region begin
// Begin inserts a running record and returns it with RunID and StartedAt set.
func (s *Store) Begin(rec RunRecord) (RunRecord, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	rec.Status = StatusRunning

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, model, input_path, output_path, seed, chains, config_json, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Model, nullIfEmpty(rec.InputPath), nullIfEmpty(rec.OutputPath),
		rec.Seed, rec.Chains, nullIfEmpty(rec.ConfigJSON), string(rec.Status),
		rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// #endregion begin

// #region finish
// Finish closes a run with its final status. runErr is nil on success.
func (s *Store) Finish(runID string, runErr error, counts Counts) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, n = ?, nsub = ?, ngroup = ?, ntrial = ?, finished_at = ?
		 WHERE run_id = ?`,
		string(status), nullIfEmpty(msg), counts.N, counts.Nsub, counts.Ngroup, counts.Ntrial,
		time.Now().UTC().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// #endregion finish

// #region get
// Get returns one run with its warnings.
func (s *Store) Get(runID string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(selectRun+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	rec.Warnings, err = s.warnings(runID)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// #endregion get

// #region list
// List returns the most recent runs, newest first, without warnings.
func (s *Store) List(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(selectRun+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list

// #region scan
const selectRun = `SELECT run_id, model, input_path, output_path, seed, chains, config_json,
	status, error, n, nsub, ngroup, ntrial, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var input, output, cfg, errMsg, finished sql.NullString
	var n, nsub, ngroup, ntrial sql.NullInt64
	var status, started string

	err := row.Scan(&rec.RunID, &rec.Model, &input, &output, &rec.Seed, &rec.Chains, &cfg,
		&status, &errMsg, &n, &nsub, &ngroup, &ntrial, &started, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	rec.InputPath = input.String
	rec.OutputPath = output.String
	rec.ConfigJSON = cfg.String
	rec.Status = Status(status)
	rec.Error = errMsg.String
	rec.Counts = Counts{N: int(n.Int64), Nsub: int(nsub.Int64), Ngroup: int(ngroup.Int64), Ntrial: int(ntrial.Int64)}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return rec, nil
}

// #endregion scan
