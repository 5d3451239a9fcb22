// Package pipeline runs the stages end to end: clean, build, sample, reduce,
// export. Stages are sequential and the first error aborts the run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/export"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/runlog"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/tableio"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/trials"
)

// #region clean
// Clean reads a raw trial table and writes the canonical CSV. It returns the
// number of canonical rows written.
func Clean(cfg *config.Config, inPath, outPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	norm, err := trials.NewNormalizer(cfg.NormalizerSettings())
	if err != nil {
		return 0, fmt.Errorf("clean: %w", err)
	}

	raw, err := tableio.ReadRaw(inPath, cfg.Normalizer.Sheet)
	if err != nil {
		return 0, err
	}
	logger.Info("read raw trials", zap.String("path", inPath), zap.Int("rows", len(raw)))

	canon, err := norm.Normalize(raw)
	if err != nil {
		return 0, err
	}
	missed := 0
	for _, r := range canon {
		if r.IsMissed() {
			missed++
		}
	}
	logger.Info("normalized trials", zap.Int("rows", len(canon)), zap.Int("missed", missed))

	if err := tableio.WriteCanonicalFile(outPath, canon); err != nil {
		return 0, err
	}
	return len(canon), nil
}

// #endregion clean

// #region run
// Request is one model run.
type Request struct {
	ModelPath  string
	InputPath  string // canonical CSV
	OutputPath string // xlsx workbook
	Seed       int64
	Chains     int // <= 0 uses the configured chain count
}

// Result reports what a successful run produced.
type Result struct {
	RunID      string
	Dictionary *modeldata.Dictionary
	Summary    *posterior.SummaryTables
	Outputs    []string
}

// Pipeline carries the long-lived collaborators of a model run.
type Pipeline struct {
	cfg    *config.Config
	driver *sampler.Driver
	runs   *runlog.Store // nil disables the run log
	logger *zap.Logger
}

// New wires a pipeline. runs and logger may be nil.
func New(cfg *config.Config, backend sampler.Sampler, runs *runlog.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		driver: sampler.NewDriver(backend, cfg.DriverConfig(), logger.Named("sampler")),
		runs:   runs,
		logger: logger,
	}
}

// Run executes build, sample, reduce and export for one canonical table.
func (p *Pipeline) Run(ctx context.Context, req Request) (_ *Result, err error) {
	chains := req.Chains
	if chains <= 0 {
		chains = p.cfg.Sampler.Chains
	}
	model := sampler.ModelRefFromPath(req.ModelPath)
	res := &Result{}

	if p.runs != nil {
		rec, berr := p.runs.Begin(runlog.RunRecord{
			Model:      model.Name,
			InputPath:  req.InputPath,
			OutputPath: req.OutputPath,
			Seed:       req.Seed,
			Chains:     chains,
			ConfigJSON: configJSON(p.cfg),
		})
		if berr != nil {
			return nil, fmt.Errorf("run log: %w", berr)
		}
		res.RunID = rec.RunID
		defer func() {
			var counts runlog.Counts
			if res.Dictionary != nil {
				d := res.Dictionary
				counts = runlog.Counts{N: d.N, Nsub: d.Nsub, Ngroup: d.Ngroup, Ntrial: d.Ntrial}
			}
			if ferr := p.runs.Finish(rec.RunID, err, counts); ferr != nil {
				p.logger.Warn("run log finish failed", zap.String("run_id", rec.RunID), zap.Error(ferr))
			}
		}()
	}

	if err := p.execute(ctx, req, model, chains, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, req Request, model sampler.ModelRef, chains int, res *Result) error {
	rows, err := tableio.ReadCanonicalFile(req.InputPath)
	if err != nil {
		return err
	}

	dict, err := modeldata.Build(rows, p.cfg.ModelOptions())
	if err != nil {
		return err
	}
	res.Dictionary = dict
	p.logger.Info("built data dictionary",
		zap.Int("N", dict.N),
		zap.Int("Nsub", dict.Nsub),
		zap.Int("Ncue", dict.Ncue),
		zap.Int("Ntrial", dict.Ntrial),
		zap.Int("Ngroup", dict.Ngroup))

	draws, err := p.driver.Run(ctx, dict, sampler.RunRequest{Model: model, Chains: chains, Seed: req.Seed})
	if err != nil {
		return err
	}

	summary, err := posterior.Reduce(draws, dict, p.cfg.Reducer)
	if err != nil {
		return err
	}
	res.Summary = summary
	for _, w := range summary.Warnings {
		p.logger.Warn("export table skipped", zap.String("table", w.Table), zap.String("reason", w.Msg))
	}
	if p.runs != nil && res.RunID != "" {
		if err := p.runs.RecordWarnings(res.RunID, summary.Warnings); err != nil {
			p.logger.Warn("run log warnings failed", zap.Error(err))
		}
	}

	if err := export.WriteWorkbook(req.OutputPath, summary); err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, req.OutputPath)

	if summary.Predictive != nil && p.cfg.Output.PredictiveCSV != "" {
		path := p.predictivePath(req.OutputPath)
		if err := export.WritePredictiveCSVFile(path, summary.Predictive); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
		p.logger.Info("wrote predictive table",
			zap.String("path", path),
			zap.String("kind", summary.Predictive.Kind.String()),
			zap.Int("rows", len(summary.Predictive.Rows)))
	}

	p.logger.Info("run complete", zap.Strings("outputs", res.Outputs))
	return nil
}

// predictivePath puts a relative predictive CSV name next to the workbook.
func (p *Pipeline) predictivePath(workbook string) string {
	name := p.cfg.Output.PredictiveCSV
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(filepath.Dir(workbook), name)
}

func configJSON(cfg *config.Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion run
