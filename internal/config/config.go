// Package config loads pipeline settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/modeldata"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/posterior"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/sampler"
	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/trials"
)

// #region types
// Config holds every tunable of the pipeline.
type Config struct {
	Normalizer NormalizerConfig    `yaml:"normalizer"`
	Model      ModelConfig         `yaml:"model"`
	Sampler    SamplerConfig       `yaml:"sampler"`
	Reducer    posterior.Variables `yaml:"reducer"`
	Output     OutputConfig        `yaml:"output"`
	RunLog     RunLogConfig        `yaml:"runlog"`
	Logging    LoggingConfig       `yaml:"logging"`
}

// NormalizerConfig configures raw-to-canonical cleaning.
type NormalizerConfig struct {
	// DelayEncoding has no default; it must be set before cleaning.
	DelayEncoding string `yaml:"delay_encoding"`
	CueCharOffset int    `yaml:"cue_char_offset"`
	Sheet         string `yaml:"sheet"` // xlsx sheet; empty = first
}

// ModelConfig selects the optional dictionary dimensions.
type ModelConfig struct {
	IncludeCondition bool `yaml:"include_condition"`
	IncludeRun       bool `yaml:"include_run"`
}

// SamplerConfig selects and tunes the sampler backend.
type SamplerConfig struct {
	Backend    string            `yaml:"backend"` // "grpc" | "fixture"
	Addr       string            `yaml:"addr"`
	Fixture    string            `yaml:"fixture"`
	Chains     int               `yaml:"chains"`
	NumSamples int               `yaml:"num_samples"`
	NumWarmup  int               `yaml:"num_warmup"`
	Timeout    string            `yaml:"timeout"`
	Inits      map[string]string `yaml:"inits,omitempty"` // model -> init strategy
}

// OutputConfig names secondary output files.
type OutputConfig struct {
	PredictiveCSV string `yaml:"predictive_csv"`
}

// RunLogConfig locates the run history database. Empty disables it.
type RunLogConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

const (
	BackendGRPC    = "grpc"
	BackendFixture = "fixture"
)

// #endregion types

// #region defaults
// DefaultConfig returns the built-in configuration. DelayEncoding is left
// unset on purpose; Validate reports it.
func DefaultConfig() *Config {
	return &Config{
		Normalizer: NormalizerConfig{
			CueCharOffset: trials.DefaultCueCharOffset,
		},
		Sampler: SamplerConfig{
			Backend: BackendGRPC,
			Addr:    "localhost:50061",
			Chains:  sampler.DefaultChains,
			Timeout: "2h",
		},
		Reducer: posterior.DefaultVariables(),
		Output: OutputConfig{
			PredictiveCSV: "Model_preds.csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// #endregion defaults

// #region load-save
// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("HBRL_SAMPLER_ADDR"); addr != "" {
		c.Sampler.Addr = addr
	}
	if path := os.Getenv("HBRL_RUNLOG_DB"); path != "" {
		c.RunLog.DBPath = path
	}
	if level := os.Getenv("HBRL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// #endregion load-save

// #region accessors
// NormalizerSettings converts to the trials package config.
func (c *Config) NormalizerSettings() trials.NormalizerConfig {
	return trials.NormalizerConfig{
		DelayEncoding: trials.DelayEncoding(c.Normalizer.DelayEncoding),
		CueCharOffset: c.Normalizer.CueCharOffset,
	}
}

// ModelOptions converts to the dictionary builder options.
func (c *Config) ModelOptions() modeldata.Options {
	return modeldata.Options{
		IncludeCondition: c.Model.IncludeCondition,
		IncludeRun:       c.Model.IncludeRun,
	}
}

// DriverConfig converts to the sampler driver config.
func (c *Config) DriverConfig() sampler.DriverConfig {
	return sampler.DriverConfig{
		Inits: c.Sampler.Inits,
		Settings: sampler.Settings{
			NumSamples: c.Sampler.NumSamples,
			NumWarmup:  c.Sampler.NumWarmup,
		},
	}
}

// GetSamplerTimeout returns the sampler timeout, or zero for none.
func (c *Config) GetSamplerTimeout() time.Duration {
	if c.Sampler.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Sampler.Timeout)
	if err != nil {
		return 2 * time.Hour
	}
	return d
}

// #endregion accessors

// #region validate
// ValidBackends lists the supported sampler backends.
var ValidBackends = []string{BackendGRPC, BackendFixture}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ValidateNormalizer(); err != nil {
		return err
	}
	return c.ValidateSampler()
}

// ValidateSampler checks the settings a model run depends on. Cleaning
// settings are not consulted.
func (c *Config) ValidateSampler() error {
	if !slices.Contains(ValidBackends, c.Sampler.Backend) {
		return fmt.Errorf("invalid sampler backend: %s (valid: %v)", c.Sampler.Backend, ValidBackends)
	}
	if c.Sampler.Backend == BackendGRPC && c.Sampler.Addr == "" {
		return fmt.Errorf("sampler addr not configured (set sampler.addr or HBRL_SAMPLER_ADDR)")
	}
	if c.Sampler.Backend == BackendFixture && c.Sampler.Fixture == "" {
		return fmt.Errorf("sampler fixture path not configured")
	}
	if c.Sampler.Chains < 1 {
		return fmt.Errorf("sampler chains must be positive, got %d", c.Sampler.Chains)
	}
	if c.Sampler.NumSamples < 0 || c.Sampler.NumWarmup < 0 {
		return fmt.Errorf("sampler num_samples and num_warmup must not be negative")
	}
	if c.Sampler.Timeout != "" {
		if _, err := time.ParseDuration(c.Sampler.Timeout); err != nil {
			return fmt.Errorf("invalid sampler timeout %q: %w", c.Sampler.Timeout, err)
		}
	}
	for model, name := range c.Sampler.Inits {
		if _, ok := sampler.Strategies[sampler.StrategyID(name)]; !ok {
			return fmt.Errorf("unknown init strategy %q for model %s (known: %v)", name, model, sampler.StrategyNames())
		}
	}
	return nil
}

// ValidateNormalizer checks only the cleaning settings.
func (c *Config) ValidateNormalizer() error {
	if c.Normalizer.DelayEncoding == "" {
		return fmt.Errorf("normalizer.delay_encoding not configured (valid: %s, %s)", trials.DelayZeroBased, trials.DelayAsSupplied)
	}
	if !trials.DelayEncoding(c.Normalizer.DelayEncoding).Valid() {
		return fmt.Errorf("invalid delay encoding: %s (valid: %s, %s)", c.Normalizer.DelayEncoding, trials.DelayZeroBased, trials.DelayAsSupplied)
	}
	if c.Normalizer.CueCharOffset < 0 {
		return fmt.Errorf("cue_char_offset must not be negative, got %d", c.Normalizer.CueCharOffset)
	}
	return nil
}

// #endregion validate
