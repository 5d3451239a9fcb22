package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
)

// #region helpers
func summary() *posterior.SummaryTables {
	return &posterior.SummaryTables{
		Nsub: 2,
		PredictionError: []posterior.Array{
			{Shape: []int{3}, Data: []float64{0.1, 0.2, 0.3}},
			{Shape: []int{3}, Data: []float64{0.4, 0.5, 0.6}},
		},
		ExpectedValue: []posterior.Array{
			{Shape: []int{3, 2}, Data: []float64{1, 2, 3, 4, 5, 6}},
			{Shape: []int{3, 2}, Data: []float64{7, 8, 9, 10, 11, 12}},
		},
		LearningRate: posterior.Array{Shape: []int{2}, Data: []float64{0.35, 0.75}},
	}
}

// #endregion helpers

// #region workbook-tests
func TestSheetNames_RequiredOnly(t *testing.T) {
	got := SheetNames(summary())
	want := []string{"RPE_Subject1", "EV_Subject1", "RPE_Subject2", "EV_Subject2", "Learning Rates"}
	require.Equal(t, want, got)
}

func TestSheetNames_Optional(t *testing.T) {
	s := summary()
	s.SoftmaxTemperature = &posterior.Array{Shape: []int{2}, Data: []float64{1, 2}}
	s.LogLikDraws = &posterior.Array{Shape: []int{3, 2}, Data: []float64{-3, -4, -3.5, -4.5, -2.5, -5}}
	got := SheetNames(s)
	require.Equal(t, "Softmax", got[len(got)-2])
	require.Equal(t, "Log Likelihood", got[len(got)-1])
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, WriteWorkbook(path, summary()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, SheetNames(summary()), f.GetSheetList())

	rows, err := f.GetRows(SheetLearningRates)
	require.NoError(t, err)
	require.Equal(t, []string{"Subject", "Learning Rate"}, rows[0])
	require.Equal(t, []string{"1", "0.35"}, rows[1])
	require.Equal(t, []string{"2", "0.75"}, rows[2])

	ev, err := f.GetRows("EV_Subject2")
	require.NoError(t, err)
	require.Len(t, ev, 4)
	require.Equal(t, []string{"Trial", "Cue 1", "Cue 2"}, ev[0])
	require.Equal(t, []string{"3", "11", "12"}, ev[3])

	rpe, err := f.GetRows("RPE_Subject1")
	require.NoError(t, err)
	require.Equal(t, []string{"Trial", "RPE"}, rpe[0])
	require.Equal(t, []string{"2", "0.2"}, rpe[2])
}

func TestWriteWorkbook_LogLikDraws(t *testing.T) {
	s := summary()
	s.LogLikDraws = &posterior.Array{Shape: []int{3, 2}, Data: []float64{-3, -4, -3.5, -4.5, -2.5, -5}}
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, WriteWorkbook(path, s))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetLogLik)
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per draw")
	require.Equal(t, []string{"Draw", "Log Likelihood 1", "Log Likelihood 2"}, rows[0])
	require.Equal(t, []string{"2", "-3.5", "-4.5"}, rows[2])
}

func TestWriteWorkbook_BadPath(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "missing", "results.xlsx"), summary())
	require.Error(t, err)
}

// #endregion workbook-tests

// #region predictive-tests
func TestWritePredictiveCSV(t *testing.T) {
	tests := []struct {
		name string
		in   *posterior.PredictiveTable
		want string
	}{
		{
			name: "scalar",
			in: &posterior.PredictiveTable{
				Kind: posterior.PredictiveScalar, Variable: "alpha_pred",
				Rows: []posterior.PredictiveRow{{Draw: 1, Value: 0.25}, {Draw: 2, Value: 0.5}},
			},
			want: "draw,group,condition,alpha_pred\n1,,,0.25\n2,,,0.5\n",
		},
		{
			name: "by-group-condition",
			in: &posterior.PredictiveTable{
				Kind: posterior.PredictiveByGroupCondition, Variable: "alpha_pred",
				Rows: []posterior.PredictiveRow{{Draw: 1, Group: "Younger", Condition: "0", Value: 0.1}},
			},
			want: "draw,group,condition,alpha_pred\n1,Younger,0,0.1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePredictiveCSV(&buf, tt.in))
			require.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWritePredictiveCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Model_preds.csv")
	p := &posterior.PredictiveTable{Variable: "alpha_pred", Rows: []posterior.PredictiveRow{{Draw: 1, Group: "1", Value: 1}}}
	require.NoError(t, WritePredictiveCSVFile(path, p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "draw,group,condition,alpha_pred\n1,1,,1\n", string(data))

	require.Error(t, WritePredictiveCSVFile(filepath.Join(t.TempDir(), "missing", "p.csv"), p))
}

// #endregion predictive-tests
