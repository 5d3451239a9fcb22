package runlog

import "time"

// #region status
// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// #endregion status

// #region run-record
// RunRecord is one row of the runs table plus its warnings.
type RunRecord struct {
	RunID      string
	Model      string
	InputPath  string
	OutputPath string
	Seed       int64
	Chains     int
	ConfigJSON string // effective configuration at start

	Status Status
	Error  string
	Counts Counts

	StartedAt  time.Time
	FinishedAt time.Time // zero while running

	Warnings []WarningEntry
}

// Counts are the dictionary sizes recorded when a run finishes.
type Counts struct {
	N      int
	Nsub   int
	Ngroup int
	Ntrial int
}

// #endregion run-record

// #region warning-entry
// WarningEntry is a single row in the run_warnings table.
type WarningEntry struct {
	RunID     string
	Table     string
	Message   string
	CreatedAt time.Time
}

// #endregion warning-entry
