// Package tableio reads raw trial logs and reads/writes the canonical trial CSV.
package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/trials"
	"github.com/xuri/excelize/v2"
)

// #region columns
// RawColumns is the column subset kept from a raw trial log. Other columns are dropped.
var RawColumns = []string{
	"SubjNum", "AgeGroup", "TrialNum", "RunNum", "DelayCond",
	"CueLeftPic", "CueRightPic", "CueChosen", "Outcome",
}

// #endregion columns

// #region read-raw
// ReadRaw loads a raw trial log from an .xlsx or .csv file. sheet selects the
// worksheet for .xlsx input; empty means the first sheet.
func ReadRaw(path, sheet string) ([]trials.RawTrialRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadRawXLSX(path, sheet)
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return ReadRawCSV(f)
	}
	return nil, fmt.Errorf("unsupported input format %q (want .xlsx or .csv)", filepath.Ext(path))
}

// ReadRawCSV parses a delimited raw trial log with a header row.
func ReadRawCSV(r io.Reader) ([]trials.RawTrialRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRawRows(rows)
}

// ReadRawXLSX parses one worksheet of a raw trial-log workbook.
func ReadRawXLSX(path, sheet string) ([]trials.RawTrialRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return parseRawRows(rows)
}

// #endregion read-raw

// #region parse
func parseRawRows(rows [][]string) ([]trials.RawTrialRecord, error) {
	if len(rows) == 0 {
		return nil, apperr.Schemaf("", 0, "input has no header row")
	}
	idx, err := headerIndex(rows[0], RawColumns)
	if err != nil {
		return nil, err
	}

	var out []trials.RawTrialRecord
	for i, rec := range rows[1:] {
		if blankRow(rec) {
			continue
		}
		row := i + 2 // header is row 1
		c := cells{rec: rec, idx: idx, row: row}

		r := trials.RawTrialRecord{
			Row:         row,
			Subject:     normalizeID(c.str("SubjNum")),
			AgeGroup:    normalizeID(c.str("AgeGroup")),
			CueLeftPic:  c.str("CueLeftPic"),
			CueRightPic: c.str("CueRightPic"),
			CueChosen:   c.optionalStr("CueChosen"),
		}
		if r.TrialNum, err = c.requiredInt("TrialNum"); err != nil {
			return nil, err
		}
		if r.RunNum, err = c.requiredInt("RunNum"); err != nil {
			return nil, err
		}
		if r.DelayCond, err = c.requiredInt("DelayCond"); err != nil {
			return nil, err
		}
		if r.Outcome, err = c.optionalFloat("Outcome"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// headerIndex maps each required column to its position, failing on the first absent one.
func headerIndex(header []string, required []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	idx := make(map[string]int, len(required))
	for _, col := range required {
		i, ok := pos[col]
		if !ok {
			return nil, apperr.Schemaf(col, 0, "required column missing")
		}
		idx[col] = i
	}
	return idx, nil
}

type cells struct {
	rec []string
	idx map[string]int
	row int
}

func (c cells) str(col string) string {
	i := c.idx[col]
	if i >= len(c.rec) {
		return ""
	}
	return strings.TrimSpace(c.rec[i])
}

// optionalStr maps the null spellings to "".
func (c cells) optionalStr(col string) string {
	v := c.str(col)
	if isNull(v) {
		return ""
	}
	return v
}

func (c cells) requiredInt(col string) (int, error) {
	v := c.str(col)
	if v == "" {
		return 0, apperr.Schemaf(col, c.row, "value is required")
	}
	n, err := parseIntegral(v)
	if err != nil {
		return 0, apperr.Schemaf(col, c.row, "%v", err)
	}
	return n, nil
}

func (c cells) optionalInt(col string) (*int, error) {
	v := c.str(col)
	if isNull(v) {
		return nil, nil
	}
	n, err := parseIntegral(v)
	if err != nil {
		return nil, apperr.Schemaf(col, c.row, "%v", err)
	}
	return &n, nil
}

func (c cells) optionalFloat(col string) (*float64, error) {
	v := c.str(col)
	if isNull(v) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return nil, apperr.Schemaf(col, c.row, "%q is not numeric", v)
	}
	return &f, nil
}

// parseIntegral accepts "3" and spreadsheet-style "3.0".
func parseIntegral(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not numeric", v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	return int(f), nil
}

// normalizeID renders integral numeric ids without a decimal part so "101.0" and "101" agree.
func normalizeID(v string) string {
	if n, err := parseIntegral(v); err == nil {
		return strconv.Itoa(n)
	}
	return v
}

func isNull(v string) bool {
	switch strings.ToLower(v) {
	case "", "nan", "na", "null":
		return true
	}
	return false
}

func blankRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// #endregion parse

// IsNotExist reports whether err came from a missing input file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
