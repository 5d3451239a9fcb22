package tableio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/trials"
)

// #region columns
// CanonicalColumns is the header of the canonical trial CSV, in order.
var CanonicalColumns = []string{
	"SubjNum", "AgeGroup", "TrialNum", "RunNum", "DelayCond",
	"Outcome", "Chosen", "Unchosen", "Trial",
}

// #endregion columns

// #region write
// WriteCanonical writes rows in their current order with no index column.
// Missing chosen cues and outcomes are written as empty cells.
func WriteCanonical(w io.Writer, rows []trials.CanonicalTrial) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Subject),
			r.AgeGroup,
			strconv.Itoa(r.TrialNum),
			strconv.Itoa(r.RunNum),
			strconv.Itoa(r.DelayCond),
			formatOptFloat(r.Outcome),
			formatOptInt(r.Chosen),
			strconv.Itoa(r.Unchosen),
			strconv.Itoa(r.Trial),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCanonicalFile creates path and writes the canonical table to it.
func WriteCanonicalFile(path string, rows []trials.CanonicalTrial) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCanonical(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// #endregion write

// #region read
// ReadCanonical parses a canonical trial CSV. Extra columns (such as a
// leading index written by other tools) are ignored.
func ReadCanonical(r io.Reader) ([]trials.CanonicalTrial, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperr.Schemaf("", 0, "input has no header row")
	}
	idx, err := headerIndex(rows[0], CanonicalColumns)
	if err != nil {
		return nil, err
	}

	var out []trials.CanonicalTrial
	for i, rec := range rows[1:] {
		if blankRow(rec) {
			continue
		}
		c := cells{rec: rec, idx: idx, row: i + 2}
		t := trials.CanonicalTrial{AgeGroup: normalizeID(c.str("AgeGroup"))}

		if t.Subject, err = c.requiredInt("SubjNum"); err != nil {
			return nil, err
		}
		if t.TrialNum, err = c.requiredInt("TrialNum"); err != nil {
			return nil, err
		}
		if t.RunNum, err = c.requiredInt("RunNum"); err != nil {
			return nil, err
		}
		if t.DelayCond, err = c.requiredInt("DelayCond"); err != nil {
			return nil, err
		}
		if t.Outcome, err = c.optionalFloat("Outcome"); err != nil {
			return nil, err
		}
		if t.Chosen, err = c.optionalInt("Chosen"); err != nil {
			return nil, err
		}
		if t.Unchosen, err = c.requiredInt("Unchosen"); err != nil {
			return nil, err
		}
		if t.Trial, err = c.requiredInt("Trial"); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadCanonicalFile opens path and parses it as a canonical trial CSV.
func ReadCanonicalFile(path string) ([]trials.CanonicalTrial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCanonical(f)
}

// #endregion read
