// Package sampler drives an external MCMC sampler: compile a model program,
// fit it to a data dictionary, and hand back the posterior draws.
package sampler

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
)

// #region types
// ModelRef identifies a model program on disk.
type ModelRef struct {
	Name string // file stem, e.g. "model1"
	Path string
}

// ModelRefFromPath derives the model name from the file stem.
func ModelRefFromPath(path string) ModelRef {
	base := filepath.Base(path)
	return ModelRef{Name: strings.TrimSuffix(base, filepath.Ext(base)), Path: path}
}

// Compiled is a handle to a compiled model held by the backend.
type Compiled struct {
	Model  string
	Handle string
}

// Settings are passed through to the sampler untouched. Zero means the
// backend's own default.
type Settings struct {
	NumSamples int `yaml:"num_samples"`
	NumWarmup  int `yaml:"num_warmup"`
}

// FitRequest is everything one fit needs. Inits holds one set per chain, or
// is nil to let the sampler choose its own starting points.
type FitRequest struct {
	Data     map[string]any
	Inits    []InitValues
	Seed     int64
	Chains   int
	Settings Settings
}

// Fit is a finished fit.
type Fit interface {
	Draws() posterior.Draws
}

// DrawsFit is a Fit over already-pooled draws.
type DrawsFit posterior.Draws

func (f DrawsFit) Draws() posterior.Draws { return posterior.Draws(f) }

// #endregion types

// #region interface
// Sampler is the backend contract. Fit blocks until every chain is done.
type Sampler interface {
	Compile(ctx context.Context, model ModelRef) (Compiled, error)
	Fit(ctx context.Context, compiled Compiled, req FitRequest) (Fit, error)
}

// #endregion interface

// #region dims
// Dims are the dictionary sizes an init strategy may need.
type Dims struct {
	Nsub   int
	Ngroup int
	Ncond  int
	Nrun   int
	Ncue   int
}

// DimsOf reads Dims off a built dictionary.
func DimsOf(d *modeldata.Dictionary) Dims {
	return Dims{Nsub: d.Nsub, Ngroup: d.Ngroup, Ncond: d.Ncond, Nrun: d.Nrun, Ncue: d.Ncue}
}

// #endregion dims
