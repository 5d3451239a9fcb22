package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
)

// #region predictive-csv
// WritePredictiveCSV writes the predictive table in tidy form with header
// draw,group,condition,<variable>. Axes the layout lacks are left empty.
func WritePredictiveCSV(w io.Writer, p *posterior.PredictiveTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"draw", "group", "condition", p.Variable}); err != nil {
		return fmt.Errorf("write predictive header: %w", err)
	}
	for _, r := range p.Rows {
		rec := []string{
			strconv.Itoa(r.Draw),
			r.Group,
			r.Condition,
			strconv.FormatFloat(r.Value, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write predictive row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush predictive csv: %w", err)
	}
	return nil
}

// WritePredictiveCSVFile creates path and writes the predictive table to it.
func WritePredictiveCSVFile(path string, p *posterior.PredictiveTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePredictiveCSV(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// #endregion predictive-csv
