package sampler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
)

// #region config
const (
	DefaultChains = 2
	DefaultSeed   = 77752
)

// DriverConfig configures a Driver.
type DriverConfig struct {
	// Inits maps model name -> init strategy name, overriding built-ins.
	Inits    map[string]string
	Settings Settings
}

// RunRequest is one model run. Chains <= 0 means DefaultChains.
type RunRequest struct {
	Model  ModelRef
	Chains int
	Seed   int64
}

// #endregion config

// #region driver
// Driver runs compile then fit against a backend. It never retries.
type Driver struct {
	backend Sampler
	cfg     DriverConfig
	logger  *zap.Logger
}

// NewDriver wires a backend. A nil logger discards output.
func NewDriver(backend Sampler, cfg DriverConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{backend: backend, cfg: cfg, logger: logger}
}

// Run compiles req.Model, fits it to dict and returns the pooled draws.
// Compile and fit failures are returned as *apperr.SamplerError.
func (d *Driver) Run(ctx context.Context, dict *modeldata.Dictionary, req RunRequest) (posterior.Draws, error) {
	if dict == nil {
		return nil, errors.New("run: nil dictionary")
	}
	chains := req.Chains
	if chains <= 0 {
		chains = DefaultChains
	}

	sid, strategy, err := StrategyFor(req.Model.Name, d.cfg.Inits)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	inits := ChainInits(strategy, DimsOf(dict), chains, req.Seed)

	d.logger.Info("compiling model",
		zap.String("model", req.Model.Name),
		zap.String("path", req.Model.Path))
	compiled, err := d.backend.Compile(ctx, req.Model)
	if err != nil {
		return nil, &apperr.SamplerError{Op: "compile", Model: req.Model.Name, Err: err}
	}

	d.logger.Info("fitting model",
		zap.String("model", req.Model.Name),
		zap.Int("chains", chains),
		zap.Int64("seed", req.Seed),
		zap.String("inits", string(sid)))
	fit, err := d.backend.Fit(ctx, compiled, FitRequest{
		Data:     dict.SamplerData(),
		Inits:    inits,
		Seed:     req.Seed,
		Chains:   chains,
		Settings: d.cfg.Settings,
	})
	if err != nil {
		return nil, &apperr.SamplerError{Op: "fit", Model: req.Model.Name, Err: err}
	}

	draws := fit.Draws()
	if len(draws) == 0 {
		return nil, &apperr.SamplerError{Op: "fit", Model: req.Model.Name, Err: errors.New("fit returned no draws")}
	}
	d.logger.Debug("fit complete", zap.Int("variables", len(draws)))
	return draws, nil
}

// #endregion driver
