package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/runlog"
)

var (
	dbPath  string
	last    int
	runID   string
	jsonOut bool
)

// #region main
var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List or show recorded model runs",
	Long: `inspect reads the run history written by runmodel when runlog.db_path
is configured. Without --run it lists the most recent runs.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("--db is required (or set HBRL_RUNLOG_DB)")
		}
		store, err := runlog.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()

		if runID != "" {
			return runDetailMode(cmd.OutOrStdout(), store, runID, jsonOut)
		}
		return runListMode(cmd.OutOrStdout(), store, last, jsonOut)
	},
}

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", os.Getenv("HBRL_RUNLOG_DB"), "path to the run log database")
	rootCmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	rootCmd.Flags().StringVar(&runID, "run", "", "show single run detail")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string `json:"run_id"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	Nsub      int    `json:"nsub"`
	Seed      int64  `json:"seed"`
	Chains    int    `json:"chains"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration,omitempty"`
}

func runListMode(w io.Writer, store *runlog.Store, last int, jsonOut bool) error {
	runs, err := store.List(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[len(runs)-1-i] = listRow{
			RunID:     r.RunID,
			Model:     r.Model,
			Status:    string(r.Status),
			Nsub:      r.Counts.Nsub,
			Seed:      r.Seed,
			Chains:    r.Chains,
			StartedAt: r.StartedAt.Format(time.RFC3339),
			Duration:  duration(r),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-10s  %-12s  %-10s  %5s  %8s  %6s  %-10s  %s\n",
		"Run", "Model", "Status", "Nsub", "Seed", "Chains", "Duration", "Started")
	fmt.Fprintf(w, "%-10s+-%-12s+-%-10s+-%5s+-%8s+-%6s+-%-10s+-%s\n",
		"----------", "------------", "----------", "-----", "--------", "------", "----------", "--------------------")
	for _, r := range rows {
		d := r.Duration
		if d == "" {
			d = "-"
		}
		fmt.Fprintf(w, "%-10s  %-12s  %-10s  %5d  %8d  %6d  %-10s  %s\n",
			shortID(r.RunID), r.Model, r.Status, r.Nsub, r.Seed, r.Chains, d, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID      string          `json:"run_id"`
	Model      string          `json:"model"`
	InputPath  string          `json:"input_path"`
	OutputPath string          `json:"output_path"`
	Seed       int64           `json:"seed"`
	Chains     int             `json:"chains"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Counts     runlog.Counts   `json:"counts"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Warnings   []warningDetail `json:"warnings,omitempty"`
}

type warningDetail struct {
	Table   string `json:"table"`
	Message string `json:"message"`
}

func runDetailMode(w io.Writer, store *runlog.Store, id string, jsonOut bool) error {
	r, err := store.Get(id)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:      r.RunID,
		Model:      r.Model,
		InputPath:  r.InputPath,
		OutputPath: r.OutputPath,
		Seed:       r.Seed,
		Chains:     r.Chains,
		Status:     string(r.Status),
		Error:      r.Error,
		Counts:     r.Counts,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	if json.Valid([]byte(r.ConfigJSON)) {
		out.Config = json.RawMessage(r.ConfigJSON)
	}
	for _, wn := range r.Warnings {
		out.Warnings = append(out.Warnings, warningDetail{Table: wn.Table, Message: wn.Message})
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:      %s\n", out.RunID)
	fmt.Fprintf(w, "Model:    %s\n", out.Model)
	fmt.Fprintf(w, "Input:    %s\n", out.InputPath)
	fmt.Fprintf(w, "Output:   %s\n", out.OutputPath)
	fmt.Fprintf(w, "Seed:     %d\n", out.Seed)
	fmt.Fprintf(w, "Chains:   %d\n", out.Chains)
	fmt.Fprintf(w, "Status:   %s\n", out.Status)
	if out.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", out.Error)
	}
	fmt.Fprintf(w, "Started:  %s\n", out.StartedAt)
	if out.FinishedAt != "" {
		fmt.Fprintf(w, "Finished: %s\n", out.FinishedAt)
	}

	fmt.Fprintf(w, "\nCounts:\n")
	fmt.Fprintf(w, "  %-8s %d\n", "N", out.Counts.N)
	fmt.Fprintf(w, "  %-8s %d\n", "Nsub", out.Counts.Nsub)
	fmt.Fprintf(w, "  %-8s %d\n", "Ngroup", out.Counts.Ngroup)
	fmt.Fprintf(w, "  %-8s %d\n", "Ntrial", out.Counts.Ntrial)

	if len(out.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, wn := range out.Warnings {
			fmt.Fprintf(w, "  %-16s %s\n", wn.Table, wn.Message)
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func duration(r runlog.RunRecord) string {
	if r.FinishedAt.IsZero() {
		return ""
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
