// Package posterior holds raw posterior draws and reduces them into
// subject-level summary tables.
package posterior

import (
	"fmt"
	"slices"
	"sort"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
)

// #region array
// Array is a dense row-major n-d array. For draws, axis 0 is the draw axis.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Draws maps a model variable name to its draws, shaped [draws, ...dims].
type Draws map[string]Array

// Rank is the number of axes.
func (a Array) Rank() int { return len(a.Shape) }

// Size is the element count implied by Shape.
func (a Array) Size() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// Check verifies that Data holds exactly Size elements.
func (a Array) Check(name string) error {
	for _, s := range a.Shape {
		if s < 0 {
			return apperr.Dimensionf(name, "negative extent in shape %v", a.Shape)
		}
	}
	if a.Size() != len(a.Data) {
		return apperr.Dimensionf(name, "shape %v needs %d values, have %d", a.Shape, a.Size(), len(a.Data))
	}
	return nil
}

// At returns the sub-array at index i of axis 0.
func (a Array) At(i int) (Array, error) {
	if a.Rank() == 0 {
		return Array{}, fmt.Errorf("index into scalar")
	}
	if i < 0 || i >= a.Shape[0] {
		return Array{}, fmt.Errorf("index %d outside [0, %d)", i, a.Shape[0])
	}
	inner := a.Size() / max(a.Shape[0], 1)
	return Array{
		Shape: slices.Clone(a.Shape[1:]),
		Data:  slices.Clone(a.Data[i*inner : (i+1)*inner]),
	}, nil
}

// Matrix lays the array out as rows for tabular export: a scalar is 1x1, a
// vector is a single column, and rank >= 2 keeps axis 0 as rows with the
// remaining axes flattened into columns.
func (a Array) Matrix() [][]float64 {
	switch a.Rank() {
	case 0:
		if len(a.Data) == 0 {
			return nil
		}
		return [][]float64{{a.Data[0]}}
	case 1:
		rows := make([][]float64, len(a.Data))
		for i, v := range a.Data {
			rows[i] = []float64{v}
		}
		return rows
	}
	n := a.Shape[0]
	if n == 0 {
		return nil
	}
	cols := a.Size() / n
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = a.Data[i*cols : (i+1)*cols]
	}
	return rows
}

// #endregion array

// #region median
// Median reduces axis 0 to its pointwise median. An even number of draws
// averages the two middle values.
func Median(a Array) (Array, error) {
	if a.Rank() == 0 {
		return Array{}, fmt.Errorf("median of a scalar has no draw axis")
	}
	n := a.Shape[0]
	if n == 0 {
		return Array{}, fmt.Errorf("median over zero draws")
	}
	inner := a.Size() / n
	out := Array{Shape: slices.Clone(a.Shape[1:]), Data: make([]float64, inner)}

	col := make([]float64, n)
	for j := 0; j < inner; j++ {
		for i := 0; i < n; i++ {
			col[i] = a.Data[i*inner+j]
		}
		sort.Float64s(col)
		if n%2 == 1 {
			out.Data[j] = col[n/2]
		} else {
			out.Data[j] = (col[n/2-1] + col[n/2]) / 2
		}
	}
	return out, nil
}

// #endregion median

// #region concat
// Concat stacks arrays along axis 0. All parts must agree on the trailing axes.
func Concat(parts ...Array) (Array, error) {
	if len(parts) == 0 {
		return Array{}, fmt.Errorf("concat of zero arrays")
	}
	first := parts[0]
	if first.Rank() == 0 {
		return Array{}, fmt.Errorf("concat of scalars")
	}
	out := Array{Shape: slices.Clone(first.Shape)}
	out.Shape[0] = 0
	for i, p := range parts {
		if !slices.Equal(p.Shape[1:], first.Shape[1:]) {
			return Array{}, fmt.Errorf("part %d has shape %v, want [*%v]", i, p.Shape, first.Shape[1:])
		}
		out.Shape[0] += p.Shape[0]
		out.Data = append(out.Data, p.Data...)
	}
	return out, nil
}

// Pool stacks per-chain draws variable by variable, in chain order.
func Pool(chains []Draws) (Draws, error) {
	if len(chains) == 0 {
		return Draws{}, nil
	}
	out := make(Draws, len(chains[0]))
	for name := range chains[0] {
		parts := make([]Array, len(chains))
		for c, ch := range chains {
			a, ok := ch[name]
			if !ok {
				return nil, fmt.Errorf("chain %d is missing variable %q", c+1, name)
			}
			parts[c] = a
		}
		pooled, err := Concat(parts...)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		out[name] = pooled
	}
	return out, nil
}

// #endregion concat
