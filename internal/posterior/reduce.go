package posterior

import (
	"fmt"
	"slices"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
)

// #region variables
// Variables names the model outputs the reducer reads, plus display names
// for group labels in the predictive table.
type Variables struct {
	PredictionError    string `yaml:"prediction_error"`
	ExpectedValue      string `yaml:"expected_value"`
	LearningRate       string `yaml:"learning_rate"`
	SoftmaxTemperature string `yaml:"softmax_temperature"`
	LogLik             string `yaml:"log_lik"`
	Predictive         string `yaml:"predictive"`

	// GroupNames maps a group label (e.g. "1") to a display name (e.g. "Younger").
	GroupNames map[string]string `yaml:"group_names,omitempty"`
}

// DefaultVariables returns the names the bundled model programs use.
func DefaultVariables() Variables {
	return Variables{
		PredictionError:    "Delta",
		ExpectedValue:      "Q",
		LearningRate:       "alpha",
		SoftmaxTemperature: "beta",
		LogLik:             "log_lik",
		Predictive:         "alpha_pred",
	}
}

// withDefaults fills unset names from DefaultVariables.
func (v Variables) withDefaults() Variables {
	def := DefaultVariables()
	fill(&v.PredictionError, def.PredictionError)
	fill(&v.ExpectedValue, def.ExpectedValue)
	fill(&v.LearningRate, def.LearningRate)
	fill(&v.SoftmaxTemperature, def.SoftmaxTemperature)
	fill(&v.LogLik, def.LogLik)
	fill(&v.Predictive, def.Predictive)
	return v
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// #endregion variables

// #region summary
// SummaryTables is the reduced view of one fit, ready for export.
type SummaryTables struct {
	Nsub int

	// Per-subject medians, indexed by dense subject - 1.
	PredictionError []Array
	ExpectedValue   []Array

	// LearningRate is the per-subject median, shape [Nsub].
	LearningRate Array

	SoftmaxTemperature *Array
	// LogLikDraws keeps every pooled draw, shape [draws, ...].
	LogLikDraws *Array
	Predictive  *PredictiveTable

	Warnings []apperr.ExportWarning
}

func (s *SummaryTables) warn(table, format string, args ...any) {
	s.Warnings = append(s.Warnings, apperr.ExportWarning{Table: table, Msg: fmt.Sprintf(format, args...)})
}

// #endregion summary

// #region reduce
// Reduce computes posterior medians per subject. Missing or misshapen
// required variables fail with a DimensionError; optional tables that cannot
// be produced are recorded as warnings.
func Reduce(draws Draws, dict *modeldata.Dictionary, vars Variables) (*SummaryTables, error) {
	if dict == nil {
		return nil, fmt.Errorf("reduce: nil dictionary")
	}
	vars = vars.withDefaults()
	out := &SummaryTables{Nsub: dict.Nsub}

	delta, err := subjectMedian(draws, vars.PredictionError, dict.Nsub)
	if err != nil {
		return nil, err
	}
	if out.PredictionError, err = splitSubjects(delta); err != nil {
		return nil, err
	}

	q, err := subjectMedian(draws, vars.ExpectedValue, dict.Nsub)
	if err != nil {
		return nil, err
	}
	if out.ExpectedValue, err = splitSubjects(q); err != nil {
		return nil, err
	}

	alpha, err := subjectMedian(draws, vars.LearningRate, dict.Nsub)
	if err != nil {
		return nil, err
	}
	if alpha.Rank() != 1 {
		return nil, apperr.Dimensionf(vars.LearningRate, "expected one value per subject, median has shape %v", alpha.Shape)
	}
	out.LearningRate = alpha

	if a, ok := draws[vars.SoftmaxTemperature]; !ok {
		out.warn("Softmax", "variable %q not in posterior", vars.SoftmaxTemperature)
	} else if m, err := checkedMedian(vars.SoftmaxTemperature, a); err != nil {
		out.warn("Softmax", "%v", err)
	} else {
		out.SoftmaxTemperature = &m
	}

	if a, ok := draws[vars.LogLik]; !ok {
		out.warn("Log Likelihood", "variable %q not in posterior", vars.LogLik)
	} else if err := checkedDraws(vars.LogLik, a); err != nil {
		out.warn("Log Likelihood", "%v", err)
	} else {
		raw := Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
		out.LogLikDraws = &raw
	}

	if a, ok := draws[vars.Predictive]; !ok {
		out.warn("Model_preds", "variable %q not in posterior", vars.Predictive)
	} else {
		labels := axisLabels{
			groups:     displayNames(dict.GroupLabels, vars.GroupNames),
			conditions: dict.ConditionLabels,
		}
		pt, err := buildPredictive(vars.Predictive, a, labels)
		if err != nil {
			out.warn("Model_preds", "%v", err)
		} else {
			out.Predictive = pt
		}
	}

	return out, nil
}

// #endregion reduce

// #region helpers
func checkedMedian(name string, a Array) (Array, error) {
	if err := a.Check(name); err != nil {
		return Array{}, err
	}
	m, err := Median(a)
	if err != nil {
		return Array{}, apperr.Dimensionf(name, "%v", err)
	}
	return m, nil
}

// checkedDraws requires a draw axis with at least one draw.
func checkedDraws(name string, a Array) error {
	if err := a.Check(name); err != nil {
		return err
	}
	if a.Rank() < 1 || a.Shape[0] == 0 {
		return apperr.Dimensionf(name, "no draws")
	}
	return nil
}

// subjectMedian loads a required variable and checks that its median leads
// with the subject axis.
func subjectMedian(draws Draws, name string, nsub int) (Array, error) {
	a, ok := draws[name]
	if !ok {
		return Array{}, apperr.Dimensionf(name, "required variable not in posterior")
	}
	m, err := checkedMedian(name, a)
	if err != nil {
		return Array{}, err
	}
	if m.Rank() == 0 || m.Shape[0] != nsub {
		return Array{}, apperr.Dimensionf(name, "leading dimension of %v does not match Nsub=%d", m.Shape, nsub)
	}
	return m, nil
}

func splitSubjects(m Array) ([]Array, error) {
	out := make([]Array, m.Shape[0])
	for i := range out {
		sub, err := m.At(i)
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

func displayNames(labels []string, names map[string]string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		if n, ok := names[l]; ok && n != "" {
			out[i] = n
		} else {
			out[i] = l
		}
	}
	return out
}

// #endregion helpers
