package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/logging"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/pipeline"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/runlog"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
)

var (
	configPath string
	outputPath string
	seed       int64
	chains     int
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// #region root
var rootCmd = &cobra.Command{
	Use:   "runmodel <model> <input>",
	Short: "Fit a hierarchical RL model to a cleaned trial table",
	Long: `runmodel compiles a model, samples its posterior for the canonical
trial CSV and writes per-subject summaries to an xlsx workbook.

The .stan, .csv and .xlsx extensions are appended to model, input and
--output when missing.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(logging.Verbose(cfg.Logging.Level, verbose), cfg.Logging.JSON)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runModel,
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "results.xlsx", "output workbook")
	rootCmd.Flags().Int64VarP(&seed, "seed", "s", sampler.DefaultSeed, "random seed for inits and sampling")
	rootCmd.Flags().IntVar(&chains, "chains", 0, "number of chains (default: sampler.chains from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("HBRL_CONFIG", "hbrl.yaml"), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var nf notFoundError
		if errors.As(err, &nf) {
			fmt.Fprintln(os.Stderr, nf.Error())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// #endregion root

// #region run
func runModel(cmd *cobra.Command, args []string) error {
	modelPath := withExt(args[0], ".stan")
	inputPath := withExt(args[1], ".csv")
	out := withExt(outputPath, ".xlsx")

	for _, p := range []string{modelPath, inputPath} {
		if err := readable(p); err != nil {
			return err
		}
	}
	if err := cfg.ValidateSampler(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	backend, closer, err := pipeline.OpenBackend(cfg, logger.Named("backend"))
	if err != nil {
		return err
	}
	defer closer.Close()

	var runs *runlog.Store
	if cfg.RunLog.DBPath != "" {
		runs, err = runlog.Open(cfg.RunLog.DBPath)
		if err != nil {
			return err
		}
		defer runs.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting run",
		zap.String("model", modelPath),
		zap.String("input", inputPath),
		zap.String("output", out),
		zap.Int64("seed", seed),
		zap.String("backend", cfg.Sampler.Backend))

	res, err := pipeline.New(cfg, backend, runs, logger).Run(ctx, pipeline.Request{
		ModelPath:  modelPath,
		InputPath:  inputPath,
		OutputPath: out,
		Seed:       seed,
		Chains:     chains,
	})
	if err != nil {
		return err
	}

	for _, p := range res.Outputs {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	if res.RunID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", res.RunID)
	}
	return nil
}

// #endregion run

// #region helpers
type notFoundError struct{ path string }

func (e notFoundError) Error() string { return fmt.Sprintf("Sorry, can't find %s", e.path) }

// readable opens and closes path so a missing or unreadable file is reported
// before any work starts.
func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return notFoundError{path: path}
	}
	return f.Close()
}

// withExt appends ext unless path already ends with it.
func withExt(path, ext string) string {
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path
	}
	return path + ext
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
