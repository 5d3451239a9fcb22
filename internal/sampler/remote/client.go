// Package remote is a sampler backend that talks gRPC to a sampler sidecar
// process hosting the MCMC engine.
package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
)

// #region client-struct
// Client wraps the gRPC connection to the sampler sidecar.
type Client struct {
	conn    *grpc.ClientConn
	svc     Service
	timeout time.Duration // per Fit call; zero = none
	logger  *zap.Logger
}

var _ sampler.Sampler = (*Client)(nil)

// #endregion client-struct

// #region constructor
// NewClient connects to the sidecar at addr. Extra dial options are appended
// after the default insecure transport credentials.
func NewClient(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClientWithService(grpcService{cc: conn}, logger)
	c.conn = conn
	return c, nil
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc Service, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{svc: svc, logger: logger}
}

// WithTimeout bounds each Fit call.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region compile
// Compile sends the model program source to the sidecar.
func (c *Client) Compile(ctx context.Context, model sampler.ModelRef) (sampler.Compiled, error) {
	code, err := os.ReadFile(model.Path)
	if err != nil {
		return sampler.Compiled{}, fmt.Errorf("read model: %w", err)
	}
	in, err := toStruct(compileRequest{Name: model.Name, Code: string(code)})
	if err != nil {
		return sampler.Compiled{}, err
	}
	out, err := c.svc.Compile(ctx, in)
	if err != nil {
		return sampler.Compiled{}, fmt.Errorf("compile rpc: %w", err)
	}
	var resp compileResponse
	if err := fromStruct(out, &resp); err != nil {
		return sampler.Compiled{}, err
	}
	if resp.Handle == "" {
		return sampler.Compiled{}, errors.New("compile rpc: empty model handle")
	}
	return sampler.Compiled{Model: model.Name, Handle: resp.Handle}, nil
}

// #endregion compile

// #region fit
// Fit runs one RPC per chain concurrently and pools the draws in chain order.
// The first failing chain cancels the rest.
func (c *Client) Fit(ctx context.Context, compiled sampler.Compiled, req sampler.FitRequest) (sampler.Fit, error) {
	if req.Chains < 1 {
		return nil, fmt.Errorf("fit: chains must be positive, got %d", req.Chains)
	}
	if req.Inits != nil && len(req.Inits) != req.Chains {
		return nil, fmt.Errorf("fit: %d init sets for %d chains", len(req.Inits), req.Chains)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results := make([]posterior.Draws, req.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for chain := 0; chain < req.Chains; chain++ {
		msg := fitRequest{
			Handle:     compiled.Handle,
			Data:       req.Data,
			Seed:       req.Seed,
			ChainID:    chain + 1,
			NumSamples: req.Settings.NumSamples,
			NumWarmup:  req.Settings.NumWarmup,
		}
		if req.Inits != nil {
			msg.Init = req.Inits[chain]
		}
		g.Go(func() error {
			draws, err := c.fitChain(gctx, msg)
			if err != nil {
				return fmt.Errorf("chain %d: %w", msg.ChainID, err)
			}
			results[msg.ChainID-1] = draws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pooled, err := posterior.Pool(results)
	if err != nil {
		return nil, fmt.Errorf("pool chains: %w", err)
	}
	return sampler.DrawsFit(pooled), nil
}

func (c *Client) fitChain(ctx context.Context, msg fitRequest) (posterior.Draws, error) {
	in, err := toStruct(msg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := c.svc.Fit(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("fit rpc: %w", err)
	}
	var resp fitResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	for name, a := range resp.Draws {
		if err := a.Check(name); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("chain finished",
		zap.Int("chain", msg.ChainID),
		zap.Int("variables", len(resp.Draws)),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Draws, nil
}

// #endregion fit
