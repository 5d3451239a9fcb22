// Package export writes reduced posterior summaries to disk.
package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
)

// #region sheet-names
const (
	SheetLearningRates = "Learning Rates"
	SheetSoftmax       = "Softmax"
	SheetLogLik        = "Log Likelihood"
)

// RPESheet names the prediction-error sheet for a 1-based subject index.
func RPESheet(subject int) string { return "RPE_Subject" + strconv.Itoa(subject) }

// EVSheet names the expected-value sheet for a 1-based subject index.
func EVSheet(subject int) string { return "EV_Subject" + strconv.Itoa(subject) }

// #endregion sheet-names

// #region sheet
// sheet is one table: an index column followed by value columns.
type sheet struct {
	name      string
	indexName string
	columns   []string
	rows      [][]float64
}

func matrixSheet(name, indexName, valueName string, a posterior.Array) sheet {
	rows := a.Matrix()
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	cols := make([]string, width)
	if width == 1 {
		cols[0] = valueName
	} else {
		for j := range cols {
			cols[j] = valueName + " " + strconv.Itoa(j+1)
		}
	}
	return sheet{name: name, indexName: indexName, columns: cols, rows: rows}
}

// #endregion sheet

// #region workbook
// sheets lists the workbook tables in write order: per-subject prediction
// error and expected value, then learning rates, then the optional tables.
func sheets(s *posterior.SummaryTables) []sheet {
	var out []sheet
	for i := range s.PredictionError {
		out = append(out,
			matrixSheet(RPESheet(i+1), "Trial", "RPE", s.PredictionError[i]),
			matrixSheet(EVSheet(i+1), "Trial", "Cue", s.ExpectedValue[i]),
		)
	}
	out = append(out, matrixSheet(SheetLearningRates, "Subject", "Learning Rate", s.LearningRate))
	if s.SoftmaxTemperature != nil {
		out = append(out, matrixSheet(SheetSoftmax, "Subject", "Softmax Temperature", *s.SoftmaxTemperature))
	}
	if s.LogLikDraws != nil {
		// One row per pooled draw; trailing axes are flattened into columns.
		out = append(out, matrixSheet(SheetLogLik, "Draw", "Log Likelihood", *s.LogLikDraws))
	}
	return out
}

// SheetNames returns the sheet names WriteWorkbook would produce for s.
func SheetNames(s *posterior.SummaryTables) []string {
	sh := sheets(s)
	names := make([]string, len(sh))
	for i, t := range sh {
		names[i] = t.name
	}
	return names
}

// WriteWorkbook writes s to an xlsx workbook at path, replacing any existing file.
func WriteWorkbook(path string, s *posterior.SummaryTables) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range sheets(s) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.name); err != nil {
				return fmt.Errorf("name sheet %s: %w", t.name, err)
			}
		} else if _, err := f.NewSheet(t.name); err != nil {
			return fmt.Errorf("add sheet %s: %w", t.name, err)
		}
		if err := writeSheet(f, t); err != nil {
			return fmt.Errorf("write sheet %s: %w", t.name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, t sheet) error {
	header := make([]any, 0, len(t.columns)+1)
	header = append(header, t.indexName)
	for _, c := range t.columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(t.name, "A1", &header); err != nil {
		return err
	}
	for i, r := range t.rows {
		row := make([]any, 0, len(r)+1)
		row = append(row, i+1)
		for _, v := range r {
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// #endregion workbook
