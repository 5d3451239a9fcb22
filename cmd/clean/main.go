package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/logging"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/pipeline"
)

var (
	configPath    string
	outputPath    string
	delayEncoding string
	sheet         string
	verbose       bool

	cfg    *config.Config
	logger *zap.Logger
)

// #region root
var rootCmd = &cobra.Command{
	Use:   "clean <raw-table>",
	Short: "Convert a raw trial log (xlsx or csv) to the canonical trial CSV",
	Long: `clean reads a raw trial log, maps cue labels to integer ids, re-encodes
the delay condition, densifies subject ids and assigns a global trial index.

The delay encoding has no default. Pass --delay-encoding or set
normalizer.delay_encoding in the config file.`,
	Args:          cobra.ExactArgs(1),
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
	RunE: runClean,
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "canonical CSV (default: <raw-table>_clean.csv)")
	rootCmd.Flags().StringVar(&delayEncoding, "delay-encoding", "", "zero_based or as_supplied (overrides config)")
	rootCmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet to read (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("HBRL_CONFIG", "hbrl.yaml"), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion root

// #region run
func runClean(cmd *cobra.Command, args []string) error {
	in := args[0]
	if delayEncoding != "" {
		cfg.Normalizer.DelayEncoding = delayEncoding
	}
	if sheet != "" {
		cfg.Normalizer.Sheet = sheet
	}
	if err := cfg.ValidateNormalizer(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	out := outputPath
	if out == "" {
		out = defaultOutput(in)
	}

	n, err := pipeline.Clean(cfg, in, out, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d trials to %s\n", n, out)
	return nil
}

// #endregion run

// #region helpers
func defaultOutput(in string) string {
	return strings.TrimSuffix(in, filepath.Ext(in)) + "_clean.csv"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
