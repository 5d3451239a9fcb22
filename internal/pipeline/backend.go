package pipeline

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler/fixture"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler/remote"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenBackend builds the configured sampler backend. The caller closes the
// returned Closer when the run is done.
func OpenBackend(cfg *config.Config, logger *zap.Logger) (sampler.Sampler, io.Closer, error) {
	switch cfg.Sampler.Backend {
	case config.BackendGRPC:
		c, err := remote.NewClient(cfg.Sampler.Addr, logger)
		if err != nil {
			return nil, nil, err
		}
		c.WithTimeout(cfg.GetSamplerTimeout())
		return c, c, nil
	case config.BackendFixture:
		b, err := fixture.Open(cfg.Sampler.Fixture)
		if err != nil {
			return nil, nil, err
		}
		return b, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("invalid sampler backend: %s", cfg.Sampler.Backend)
}
