package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/config"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/logging"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/tableio"
)

var (
	configPath       string
	outputPath       string
	includeCondition bool
	includeRun       bool
	verbose          bool

	cfg    *config.Config
	logger *zap.Logger
)

// #region root
var rootCmd = &cobra.Command{
	Use:   "export-data <canonical-csv>",
	Short: "Write the sampler data dictionary for a canonical trial table as JSON",
	Long: `export-data builds the model data dictionary from a canonical trial CSV
and writes it as JSON, for use with an external sampler such as CmdStan.`,
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
	RunE: runExport,
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output JSON file (default: stdout)")
	rootCmd.Flags().BoolVar(&includeCondition, "include-condition", false, "add Ncond and per-subject condition")
	rootCmd.Flags().BoolVar(&includeRun, "include-run", false, "add Nrun and per-trial run")
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
func runExport(cmd *cobra.Command, args []string) error {
	rows, err := tableio.ReadCanonicalFile(args[0])
	if err != nil {
		return err
	}

	opts := cfg.ModelOptions()
	opts.IncludeCondition = opts.IncludeCondition || includeCondition
	opts.IncludeRun = opts.IncludeRun || includeRun

	d, err := modeldata.Build(rows, opts)
	if err != nil {
		return err
	}
	logger.Info("built data dictionary",
		zap.Int("N", d.N),
		zap.Int("Nsub", d.Nsub),
		zap.Int("Ncue", d.Ncue),
		zap.Int("Ntrial", d.Ntrial),
		zap.Int("Ngroup", d.Ngroup))

	if outputPath == "" {
		return d.WriteJSON(cmd.OutOrStdout())
	}
	return writeJSONFile(outputPath, d)
}

func writeJSONFile(path string, d *modeldata.Dictionary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := d.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// #endregion run

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
