// Package fixture is a sampler backend that replays canned draws from a
// JSON file. It backs tests and offline re-reduction of saved fits.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a canned fit.
type Fixture struct {
	Description string            `json:"description"`
	Model       string            `json:"model,omitempty"` // empty matches any model
	Chains      []posterior.Draws `json:"chains"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Chains) == 0 {
		return nil, fmt.Errorf("parse fixture %s: no chains", path)
	}
	for c, ch := range f.Chains {
		for name, a := range ch {
			if err := a.Check(name); err != nil {
				return nil, fmt.Errorf("fixture %s chain %d: %w", path, c+1, err)
			}
		}
	}
	return &f, nil
}

// Save writes f as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader

// #region backend

// Backend serves a Fixture through the sampler interface.
type Backend struct {
	fixture *Fixture

	mu   sync.Mutex
	last *sampler.FitRequest
}

var _ sampler.Sampler = (*Backend)(nil)

// NewBackend wraps a loaded fixture.
func NewBackend(f *Fixture) *Backend {
	return &Backend{fixture: f}
}

// Open loads the fixture at path and wraps it.
func Open(path string) (*Backend, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return nil, err
	}
	return NewBackend(f), nil
}

// Compile only checks that the fixture was recorded for this model.
func (b *Backend) Compile(ctx context.Context, model sampler.ModelRef) (sampler.Compiled, error) {
	if err := ctx.Err(); err != nil {
		return sampler.Compiled{}, err
	}
	if b.fixture.Model != "" && b.fixture.Model != model.Name {
		return sampler.Compiled{}, fmt.Errorf("fixture recorded for model %s, not %s", b.fixture.Model, model.Name)
	}
	return sampler.Compiled{Model: model.Name, Handle: "fixture:" + model.Name}, nil
}

// Fit pools every recorded chain in order. The requested chain count,
// seed and inits are recorded but do not change the draws.
func (b *Backend) Fit(ctx context.Context, _ sampler.Compiled, req sampler.FitRequest) (sampler.Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.last = &req
	b.mu.Unlock()

	pooled, err := posterior.Pool(b.fixture.Chains)
	if err != nil {
		return nil, fmt.Errorf("pool fixture chains: %w", err)
	}
	return sampler.DrawsFit(pooled), nil
}

// LastRequest returns the most recent FitRequest, or nil before any Fit.
func (b *Backend) LastRequest() *sampler.FitRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// #endregion backend
