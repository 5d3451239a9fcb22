// Package apperr defines the error kinds shared by the pipeline stages.
//
// Schema and dimension errors abort a run before the sampler is invoked.
// Sampler errors abort after it. Export warnings are values, never errors.
package apperr

import (
	"errors"
	"fmt"
)

// #region sentinels
var (
	ErrSchema    = errors.New("schema error")
	ErrDimension = errors.New("dimension error")
	ErrSampler   = errors.New("sampler error")
)

// #endregion sentinels

// #region schema-error
// SchemaError reports malformed or missing input data. Row is the 1-based
// source row, or 0 when the problem is not tied to a single row.
type SchemaError struct {
	Column string
	Row    int
	Msg    string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Column != "" && e.Row > 0:
		return fmt.Sprintf("schema error: column %s, row %d: %s", e.Column, e.Row, e.Msg)
	case e.Column != "":
		return fmt.Sprintf("schema error: column %s: %s", e.Column, e.Msg)
	case e.Row > 0:
		return fmt.Sprintf("schema error: row %d: %s", e.Row, e.Msg)
	}
	return "schema error: " + e.Msg
}

// Is lets errors.Is(err, ErrSchema) match any SchemaError.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Schemaf builds a SchemaError with a formatted message.
func Schemaf(column string, row int, format string, args ...any) *SchemaError {
	return &SchemaError{Column: column, Row: row, Msg: fmt.Sprintf(format, args...)}
}

// #endregion schema-error

// #region dimension-error
// DimensionError reports a length mismatch or an index outside its declared range.
type DimensionError struct {
	Field string
	Msg   string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension error: %s: %s", e.Field, e.Msg)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// Dimensionf builds a DimensionError with a formatted message.
func Dimensionf(field string, format string, args ...any) *DimensionError {
	return &DimensionError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// #endregion dimension-error

// #region sampler-error
// SamplerError carries a compile or fit failure from the external sampler.
type SamplerError struct {
	Op    string // "compile" | "fit"
	Model string
	Err   error
}

func (e *SamplerError) Error() string {
	return fmt.Sprintf("sampler %s %s: %v", e.Op, e.Model, e.Err)
}

func (e *SamplerError) Unwrap() error { return e.Err }

func (e *SamplerError) Is(target error) bool { return target == ErrSampler }

// #endregion sampler-error

// #region export-warning
// ExportWarning records a derived table that could not be produced.
// It is collected and logged; it never aborts a run.
type ExportWarning struct {
	Table string
	Msg   string
}

func (w ExportWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Table, w.Msg)
}

// #endregion export-warning
