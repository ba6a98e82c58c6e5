// Package config loads the evaluation settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// ErrInvalid is returned for a configuration that cannot be run.
var ErrInvalid = errors.New("invalid config")

// Config holds every recognised option.
type Config struct {
	NumNormal     int     `yaml:"num_normal"`
	NumAnomalous  int     `yaml:"num_anomalous"`
	NumDoS        int     `yaml:"num_dos"`
	NumDoSSources int     `yaml:"num_dos_sources"`
	StartTime     float64 `yaml:"start_time"`
	Duration      float64 `yaml:"duration_seconds"`

	DoSThreshold  int     `yaml:"dos_threshold"`
	Contamination float64 `yaml:"contamination"`
	NumTrees      int     `yaml:"num_trees"`
	SubsampleSize int     `yaml:"subsample_size"`
	RandomSeed    int64   `yaml:"random_seed"`
	Workers       int     `yaml:"workers"`

	Output OutputConfig `yaml:"output"`
	Log    LogConfig    `yaml:"log"`
}

// OutputConfig names the optional artifacts of a run. Empty paths are skipped.
type OutputConfig struct {
	DatasetCSV  string `yaml:"dataset_csv"`
	DatasetPcap string `yaml:"dataset_pcap"`
	ResultsCSV  string `yaml:"results_csv"`
	ReportJSON  string `yaml:"report_json"`
	MetricsFile string `yaml:"metrics_file"`
	ModelFile   string `yaml:"model_file"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	gen := traffic.DefaultGeneratorConfig()
	return Config{
		NumNormal:     gen.NumNormal,
		NumAnomalous:  gen.NumAnomalous,
		NumDoS:        gen.NumDoS,
		NumDoSSources: gen.NumDoSSources,
		StartTime:     gen.StartTime,
		Duration:      gen.Duration,
		DoSThreshold:  50,
		Contamination: 0.2,
		NumTrees:      100,
		SubsampleSize: 256,
		RandomSeed:    gen.Seed,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults, so absent keys keep
// their default values.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first unusable option.
func (c *Config) Validate() error {
	if err := c.Generator().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.DoSThreshold < 0 {
		return fmt.Errorf("%w: dos_threshold must not be negative", ErrInvalid)
	}
	if !(c.Contamination > 0 && c.Contamination < 1) {
		return fmt.Errorf("%w: contamination must be in (0, 1), got %v", ErrInvalid, c.Contamination)
	}
	if c.NumTrees <= 0 {
		return fmt.Errorf("%w: num_trees must be positive", ErrInvalid)
	}
	if c.SubsampleSize <= 0 {
		return fmt.Errorf("%w: subsample_size must be positive", ErrInvalid)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Generator returns the synthetic traffic settings.
func (c *Config) Generator() traffic.GeneratorConfig {
	return traffic.GeneratorConfig{
		NumNormal:     c.NumNormal,
		NumAnomalous:  c.NumAnomalous,
		NumDoS:        c.NumDoS,
		NumDoSSources: c.NumDoSSources,
		StartTime:     c.StartTime,
		Duration:      c.Duration,
		Seed:          c.RandomSeed,
	}
}
