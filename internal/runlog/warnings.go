package runlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
)

// #region log-warning
// LogWarning writes a warning entry to the run_warnings table.
func LogWarning(db *sql.DB, entry WarningEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_warnings (run_id, table_name, message, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.RunID,
		entry.Table,
		entry.Message,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log warning: %w", err)
	}
	return nil
}

// RecordWarnings logs every export warning of a run.
func (s *Store) RecordWarnings(runID string, ws []apperr.ExportWarning) error {
	for _, w := range ws {
		if err := LogWarning(s.db, WarningEntry{RunID: runID, Table: w.Table, Message: w.Msg}); err != nil {
			return err
		}
	}
	return nil
}

// #endregion log-warning

// #region read-warnings
func (s *Store) warnings(runID string) ([]WarningEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, table_name, message, created_at FROM run_warnings WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	defer rows.Close()

	var out []WarningEntry
	for rows.Next() {
		var w WarningEntry
		var created string
		if err := rows.Scan(&w.RunID, &w.Table, &w.Message, &created); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, w)
	}
	return out, rows.Err()
}

// #endregion read-warnings

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
