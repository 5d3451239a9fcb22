// Package modeldata builds and validates the sampler data dictionary from a
// canonical trial table.
package modeldata

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/trials"
)

// #region build
// Build converts canonical rows into a validated Dictionary. Counts are taken
// over distinct values, so the input need not be densely numbered.
func Build(rows []trials.CanonicalTrial, opts Options) (*Dictionary, error) {
	if len(rows) == 0 {
		return nil, apperr.Schemaf("", 0, "trial table is empty")
	}

	subjects := denseIndex(rows, func(r trials.CanonicalTrial) string { return strconv.Itoa(r.Subject) })
	groups := denseIndex(rows, func(r trials.CanonicalTrial) string { return r.AgeGroup })
	conds := denseIndex(rows, func(r trials.CanonicalTrial) string { return strconv.Itoa(r.DelayCond) })
	runs := denseIndex(rows, func(r trials.CanonicalTrial) string { return strconv.Itoa(r.RunNum) })

	d := &Dictionary{
		Options:     opts,
		N:           len(rows),
		Nsub:        len(subjects.labels),
		Ngroup:      len(groups.labels),
		GroupLabels: groups.labels,
		Sub:         make([]int, len(rows)),
		Chosen:      make([]int, len(rows)),
		Unchosen:    make([]int, len(rows)),
		Trial:       make([]int, len(rows)),
		Outcome:     make([]int, len(rows)),
		Group:       make([]int, len(subjects.labels)),
	}
	if opts.IncludeCondition {
		d.Ncond = len(conds.labels)
		d.ConditionLabels = conds.labels
		d.Condition = make([]int, d.Nsub)
	}
	if opts.IncludeRun {
		d.Nrun = len(runs.labels)
		d.Run = make([]int, d.N)
	}

	cues := make(map[int]bool)
	firstRow := make([]int, d.Nsub) // 1-based row of each subject's first occurrence

	for i, r := range rows {
		row := i + 1
		sub := subjects.index[strconv.Itoa(r.Subject)]
		d.Sub[i] = sub
		d.Trial[i] = r.Trial
		d.Ntrial = max(d.Ntrial, r.Trial)

		d.Chosen[i] = MissingCue
		if r.Chosen != nil {
			d.Chosen[i] = *r.Chosen
			cues[*r.Chosen] = true
		}
		d.Unchosen[i] = r.Unchosen

		d.Outcome[i] = MissingOutcome
		if r.Outcome != nil {
			o := *r.Outcome
			if o != math.Trunc(o) || math.IsInf(o, 0) || math.IsNaN(o) {
				return nil, apperr.Schemaf("Outcome", row, "outcome %v is not an integer", o)
			}
			d.Outcome[i] = int(o)
		}

		if opts.IncludeRun {
			d.Run[i] = runs.index[strconv.Itoa(r.RunNum)]
		}

		g := groups.index[r.AgeGroup]
		s := sub - 1
		if firstRow[s] == 0 {
			firstRow[s] = row
			d.Group[s] = g
			if opts.IncludeCondition {
				d.Condition[s] = conds.index[strconv.Itoa(r.DelayCond)]
			}
			continue
		}
		if d.Group[s] != g {
			return nil, apperr.Schemaf("AgeGroup", row,
				"ambiguous group assignment for subject %d: %q (row %d) and %q",
				r.Subject, d.GroupLabels[d.Group[s]-1], firstRow[s], r.AgeGroup)
		}
		if opts.IncludeCondition {
			if c := conds.index[strconv.Itoa(r.DelayCond)]; d.Condition[s] != c {
				return nil, apperr.Schemaf("DelayCond", row,
					"ambiguous condition assignment for subject %d: %s (row %d) and %d",
					r.Subject, d.ConditionLabels[d.Condition[s]-1], firstRow[s], r.DelayCond)
			}
		}
	}
	d.Ncue = len(cues)

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// #endregion build

// #region validate
// Validate checks every parallel array length and index range.
func (d *Dictionary) Validate() error {
	if d.N < 1 {
		return apperr.Dimensionf("N", "must be positive, got %d", d.N)
	}
	perTrial := []struct {
		name string
		vals []int
	}{
		{"sub", d.Sub}, {"chosen", d.Chosen}, {"unchosen", d.Unchosen},
		{"trial", d.Trial}, {"outcome", d.Outcome},
	}
	if d.Options.IncludeRun {
		perTrial = append(perTrial, struct {
			name string
			vals []int
		}{"run", d.Run})
	}
	for _, a := range perTrial {
		if len(a.vals) != d.N {
			return apperr.Dimensionf(a.name, "length %d, want N=%d", len(a.vals), d.N)
		}
	}
	if len(d.Group) != d.Nsub {
		return apperr.Dimensionf("group", "length %d, want Nsub=%d", len(d.Group), d.Nsub)
	}
	if d.Options.IncludeCondition && len(d.Condition) != d.Nsub {
		return apperr.Dimensionf("condition", "length %d, want Nsub=%d", len(d.Condition), d.Nsub)
	}

	if err := checkRange("sub", d.Sub, 1, d.Nsub); err != nil {
		return err
	}
	if err := checkSubjectsPresent(d.Sub, d.Nsub); err != nil {
		return err
	}
	if err := checkRange("trial", d.Trial, 1, d.Ntrial); err != nil {
		return err
	}
	if err := checkRange("group", d.Group, 1, d.Ngroup); err != nil {
		return err
	}
	if err := checkRange("chosen", d.Chosen, MissingCue, math.MaxInt); err != nil {
		return err
	}
	if err := checkRange("unchosen", d.Unchosen, MissingCue, math.MaxInt); err != nil {
		return err
	}
	if d.Options.IncludeCondition {
		if err := checkRange("condition", d.Condition, 1, d.Ncond); err != nil {
			return err
		}
	}
	if d.Options.IncludeRun {
		if err := checkRange("run", d.Run, 1, d.Nrun); err != nil {
			return err
		}
	}
	if len(d.GroupLabels) != d.Ngroup {
		return apperr.Dimensionf("group labels", "length %d, want Ngroup=%d", len(d.GroupLabels), d.Ngroup)
	}
	return nil
}

func checkRange(field string, vals []int, lo, hi int) error {
	for i, v := range vals {
		if v < lo || v > hi {
			return apperr.Dimensionf(field, "entry %d = %d outside [%d, %d]", i+1, v, lo, hi)
		}
	}
	return nil
}

// checkSubjectsPresent rejects a subject index with no trials.
func checkSubjectsPresent(sub []int, nsub int) error {
	seen := make([]bool, nsub)
	for _, s := range sub {
		seen[s-1] = true
	}
	for i, ok := range seen {
		if !ok {
			return apperr.Dimensionf("sub", "subject %d has no trials", i+1)
		}
	}
	return nil
}

// #endregion validate

// #region sampler-data
// SamplerData returns the dictionary under the fixed key names the model
// programs declare. Optional keys appear only when their option is on.
func (d *Dictionary) SamplerData() map[string]any {
	m := map[string]any{
		"N":        d.N,
		"Nsub":     d.Nsub,
		"Ncue":     d.Ncue,
		"Ntrial":   d.Ntrial,
		"Ngroup":   d.Ngroup,
		"sub":      d.Sub,
		"chosen":   d.Chosen,
		"unchosen": d.Unchosen,
		"trial":    d.Trial,
		"outcome":  d.Outcome,
		"group":    d.Group,
	}
	if d.Options.IncludeCondition {
		m["Ncond"] = d.Ncond
		m["condition"] = d.Condition
	}
	if d.Options.IncludeRun {
		m["Nrun"] = d.Nrun
		m["run"] = d.Run
	}
	return m
}

// WriteJSON writes SamplerData as a JSON object, the data file format
// accepted by command-line Stan.
func (d *Dictionary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.SamplerData()); err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	return nil
}

// #endregion sampler-data

// #region helpers
type dense struct {
	labels []string       // label for index i+1
	index  map[string]int // label -> 1-based index
}

// denseIndex maps distinct keys to 1-based indices in sorted order: numeric
// when every key parses as a number, lexical otherwise.
func denseIndex(rows []trials.CanonicalTrial, key func(trials.CanonicalTrial) string) dense {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range rows {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			labels = append(labels, k)
		}
	}

	numeric := true
	for _, l := range labels {
		if _, err := strconv.ParseFloat(l, 64); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		slices.SortFunc(labels, func(a, b string) int {
			fa, _ := strconv.ParseFloat(a, 64)
			fb, _ := strconv.ParseFloat(b, 64)
			return cmp.Compare(fa, fb)
		})
	} else {
		slices.Sort(labels)
	}

	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i + 1
	}
	return dense{labels: labels, index: idx}
}

// #endregion helpers
