package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/runlog"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler/fixture"
)

var fixturePath = filepath.Join("..", "sampler", "fixture", "testdata", "model1_small.json")

// #region helpers
// rawLog is two subjects x two runs x three trials; subject 102 misses one trial.
func rawLog() string {
	var b strings.Builder
	b.WriteString("SubjNum,AgeGroup,TrialNum,RunNum,DelayCond,CueLeftPic,CueRightPic,CueChosen,Outcome,Notes\n")
	for _, sub := range []struct {
		id, group, delay int
	}{{101, 1, 1}, {102, 2, 2}} {
		for run := 1; run <= 2; run++ {
			for tr := 1; tr <= 3; tr++ {
				left, right := "stim1.jpg", "stim2.jpg"
				if tr%2 == 0 {
					left, right = right, left
				}
				chosen, outcome := left, "1"
				if sub.id == 102 && run == 2 && tr == 3 {
					chosen, outcome = "", ""
				}
				fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%s,%s,%s,%s,x\n",
					sub.id, sub.group, tr, run, sub.delay, left, right, chosen, outcome)
			}
		}
	}
	return b.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Normalizer.DelayEncoding = "zero_based"
	cfg.Sampler.Backend = config.BackendFixture
	cfg.Sampler.Fixture = fixturePath
	cfg.Reducer.GroupNames = map[string]string{"1": "Younger", "2": "Older"}
	require.NoError(t, cfg.Validate())
	return cfg
}

// cleanInput writes the raw log and cleans it, returning the canonical path.
func cleanInput(t *testing.T, cfg *config.Config, dir string) string {
	t.Helper()
	raw := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(raw, []byte(rawLog()), 0o644))
	canon := filepath.Join(dir, "clean.csv")
	n, err := Clean(cfg, raw, canon, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 12, n)
	return canon
}

func writeModel(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("model { }"), 0o644))
	return path
}

func openRuns(t *testing.T, dir string) *runlog.Store {
	t.Helper()
	s, err := runlog.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// #endregion helpers

// #region clean-tests
func TestClean_RequiresDelayEncoding(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(raw, []byte(rawLog()), 0o644))
	_, err := Clean(config.DefaultConfig(), raw, filepath.Join(dir, "clean.csv"), nil)
	require.Error(t, err)
}

func TestClean_SchemaError(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	bad := strings.Replace(rawLog(), "stim1.jpg,stim2.jpg,stim1.jpg", "stim1.jpg,stim2.jpg,stimX.jpg", 1)
	require.NoError(t, os.WriteFile(raw, []byte(bad), 0o644))
	_, err := Clean(testConfig(t), raw, filepath.Join(dir, "clean.csv"), nil)
	require.ErrorIs(t, err, apperr.ErrSchema)
	_, statErr := os.Stat(filepath.Join(dir, "clean.csv"))
	require.True(t, os.IsNotExist(statErr), "no canonical file after a schema error")
}

// #endregion clean-tests

// #region run-tests
func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	canon := cleanInput(t, cfg, dir)

	backend, err := fixture.Open(fixturePath)
	require.NoError(t, err)
	runs := openRuns(t, dir)
	p := New(cfg, backend, runs, zaptest.NewLogger(t))

	out := filepath.Join(dir, "results.xlsx")
	res, err := p.Run(context.Background(), Request{
		ModelPath:  writeModel(t, dir, "model1.stan"),
		InputPath:  canon,
		OutputPath: out,
		Seed:       77752,
	})
	require.NoError(t, err)

	// Dictionary matches the cleaned table.
	d := res.Dictionary
	require.Equal(t, 12, d.N)
	require.Equal(t, 2, d.Nsub)
	require.Equal(t, 2, d.Ngroup)
	require.Equal(t, 9, d.Ntrial)
	require.Equal(t, 2, d.Ncue)

	// Learning rates are the pooled posterior medians.
	require.InDeltaSlice(t, []float64{0.35, 0.75}, res.Summary.LearningRate.Data, 1e-9)

	// Sampler saw the configured chains, the seed and explicit model1 inits.
	req := backend.LastRequest()
	require.NotNil(t, req)
	require.Equal(t, 2, req.Chains)
	require.Equal(t, int64(77752), req.Seed)
	require.Len(t, req.Inits, 2)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{
		"RPE_Subject1", "EV_Subject1", "RPE_Subject2", "EV_Subject2",
		"Learning Rates", "Softmax",
	}, f.GetSheetList())

	preds, err := os.ReadFile(filepath.Join(dir, "Model_preds.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(preds)), "\n")
	require.Equal(t, "draw,group,condition,alpha_pred", lines[0])
	require.Len(t, lines, 1+4*2)
	require.True(t, strings.HasPrefix(lines[1], "1,Younger,,"))
	require.True(t, strings.HasPrefix(lines[2], "1,Older,,"))

	rec, err := runs.Get(res.RunID)
	require.NoError(t, err)
	require.Equal(t, runlog.StatusSucceeded, rec.Status)
	require.Equal(t, runlog.Counts{N: 12, Nsub: 2, Ngroup: 2, Ntrial: 9}, rec.Counts)
	require.Equal(t, "model1", rec.Model)
	require.Len(t, rec.Warnings, 1)
	require.Equal(t, "Log Likelihood", rec.Warnings[0].Table)
}

func TestRun_SchemaErrorStopsBeforeSampler(t *testing.T) {
	dir := t.TempDir()
	canon := filepath.Join(dir, "clean.csv")
	// Subject 1 switches group between rows.
	require.NoError(t, os.WriteFile(canon, []byte(
		"SubjNum,AgeGroup,TrialNum,RunNum,DelayCond,Outcome,Chosen,Unchosen,Trial\n"+
			"1,1,1,1,0,1,1,2,4\n"+
			"1,2,2,1,0,0,2,1,5\n"), 0o644))

	backend, err := fixture.Open(fixturePath)
	require.NoError(t, err)
	runs := openRuns(t, dir)
	p := New(testConfig(t), backend, runs, nil)

	_, err = p.Run(context.Background(), Request{
		ModelPath:  writeModel(t, dir, "model1.stan"),
		InputPath:  canon,
		OutputPath: filepath.Join(dir, "results.xlsx"),
	})
	require.ErrorIs(t, err, apperr.ErrSchema)
	require.Nil(t, backend.LastRequest(), "sampler must not run after a schema error")

	list, err := runs.List(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, runlog.StatusFailed, list[0].Status)
	require.Contains(t, list[0].Error, "ambiguous group")
}

func TestRun_SamplerError(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	canon := cleanInput(t, cfg, dir)

	backend, err := fixture.Open(fixturePath)
	require.NoError(t, err)
	p := New(cfg, backend, nil, nil)

	out := filepath.Join(dir, "results.xlsx")
	// The fixture was recorded for model1, so compiling model2 fails.
	_, err = p.Run(context.Background(), Request{
		ModelPath:  writeModel(t, dir, "model2.stan"),
		InputPath:  canon,
		OutputPath: out,
	})
	require.ErrorIs(t, err, apperr.ErrSampler)
	var se *apperr.SamplerError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "compile", se.Op)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "no workbook after a sampler error")
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	backend, err := fixture.Open(fixturePath)
	require.NoError(t, err)
	p := New(testConfig(t), backend, nil, nil)
	_, err = p.Run(context.Background(), Request{
		ModelPath:  writeModel(t, dir, "model1.stan"),
		InputPath:  filepath.Join(dir, "nope.csv"),
		OutputPath: filepath.Join(dir, "results.xlsx"),
	})
	require.Error(t, err)
}

// #endregion run-tests

// #region backend-tests
func TestOpenBackend(t *testing.T) {
	cfg := testConfig(t)
	s, closer, err := OpenBackend(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, closer.Close())

	cfg.Sampler.Backend = config.BackendGRPC
	cfg.Sampler.Addr = "localhost:0"
	s, closer, err = OpenBackend(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, closer.Close())

	cfg.Sampler.Backend = "local"
	_, _, err = OpenBackend(cfg, nil)
	require.Error(t, err)
}

// #endregion backend-tests
