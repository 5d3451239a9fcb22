package posterior

import (
	"fmt"
	"strconv"
)

// #region kind
// PredictiveKind is the layout of the held-out predictive parameter, resolved
// once from the rank of its draws.
type PredictiveKind int

const (
	PredictiveScalar           PredictiveKind = iota + 1 // [draws]
	PredictiveByGroup                                    // [draws, Ngroup]
	PredictiveByGroupCondition                           // [draws, Ngroup, Ncond]
)

func (k PredictiveKind) String() string {
	switch k {
	case PredictiveScalar:
		return "scalar"
	case PredictiveByGroup:
		return "by_group"
	case PredictiveByGroupCondition:
		return "by_group_condition"
	}
	return "unknown"
}

// kindForRank maps draw-array rank to a layout; ok is false for any other rank.
func kindForRank(rank int) (PredictiveKind, bool) {
	switch rank {
	case 1:
		return PredictiveScalar, true
	case 2:
		return PredictiveByGroup, true
	case 3:
		return PredictiveByGroupCondition, true
	}
	return 0, false
}

// #endregion kind

// #region table
// PredictiveRow is one tidy observation of the predictive parameter.
// Group and Condition are empty when the layout lacks that axis.
type PredictiveRow struct {
	Draw      int // 1-based
	Group     string
	Condition string
	Value     float64
}

// PredictiveTable holds every draw of the predictive parameter in tidy form.
type PredictiveTable struct {
	Kind     PredictiveKind
	Variable string
	Rows     []PredictiveRow
}

// #endregion table

// #region render
type axisLabels struct {
	groups     []string
	conditions []string
}

type renderFunc func(a Array, labels axisLabels) []PredictiveRow

var renderers = map[PredictiveKind]renderFunc{
	PredictiveScalar:           renderScalar,
	PredictiveByGroup:          renderByGroup,
	PredictiveByGroupCondition: renderByGroupCondition,
}

func renderScalar(a Array, _ axisLabels) []PredictiveRow {
	rows := make([]PredictiveRow, a.Shape[0])
	for d := range rows {
		rows[d] = PredictiveRow{Draw: d + 1, Value: a.Data[d]}
	}
	return rows
}

func renderByGroup(a Array, labels axisLabels) []PredictiveRow {
	nd, ng := a.Shape[0], a.Shape[1]
	rows := make([]PredictiveRow, 0, nd*ng)
	for d := 0; d < nd; d++ {
		for g := 0; g < ng; g++ {
			rows = append(rows, PredictiveRow{
				Draw:  d + 1,
				Group: labelAt(labels.groups, g),
				Value: a.Data[d*ng+g],
			})
		}
	}
	return rows
}

func renderByGroupCondition(a Array, labels axisLabels) []PredictiveRow {
	nd, ng, nc := a.Shape[0], a.Shape[1], a.Shape[2]
	rows := make([]PredictiveRow, 0, nd*ng*nc)
	for d := 0; d < nd; d++ {
		for g := 0; g < ng; g++ {
			for c := 0; c < nc; c++ {
				rows = append(rows, PredictiveRow{
					Draw:      d + 1,
					Group:     labelAt(labels.groups, g),
					Condition: labelAt(labels.conditions, c),
					Value:     a.Data[(d*ng+g)*nc+c],
				})
			}
		}
	}
	return rows
}

// labelAt falls back to the 1-based index when no label covers position i.
func labelAt(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return strconv.Itoa(i + 1)
}

// #endregion render

// #region build
// buildPredictive resolves the layout of a and renders it. The error is
// reported as a warning by the caller, never as a failure.
func buildPredictive(name string, a Array, labels axisLabels) (*PredictiveTable, error) {
	if err := a.Check(name); err != nil {
		return nil, err
	}
	kind, ok := kindForRank(a.Rank())
	if !ok {
		return nil, fmt.Errorf("unanticipated shape %v (rank %d)", a.Shape, a.Rank())
	}
	return &PredictiveTable{
		Kind:     kind,
		Variable: name,
		Rows:     renderers[kind](a, labels),
	}, nil
}

// #endregion build
