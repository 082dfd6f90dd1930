// Package config holds the immutable pipeline configuration. A Config is
// loaded once at startup, validated, and passed to every component; its YAML
// fingerprint guards cached feature-column artifacts against drift.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/medforge/tabtrain/internal/features"
)

// IteratorConfig controls per-iterator behaviour.
type IteratorConfig struct {
	// KeepStaticDataInMemory caches every static shard at iterator
	// construction instead of re-reading them per Advance.
	KeepStaticDataInMemory bool `yaml:"keep_static_data_in_memory" json:"keep_static_data_in_memory"`
}

// ModelConfig contains the trainer parameters and operating mode.
type ModelConfig struct {
	// KeepDataInMemory selects the in-memory mode (collect every shard up
	// front) over the streaming mode (trainer drives the pull iterator).
	KeepDataInMemory bool    `yaml:"keep_data_in_memory" json:"keep_data_in_memory"`
	Rounds           int     `yaml:"rounds" json:"rounds"`
	LearningRate     float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth         int     `yaml:"max_depth" json:"max_depth"`
	MinChildSamples  int     `yaml:"min_child_samples" json:"min_child_samples"`
	Lambda           float64 `yaml:"lambda" json:"lambda"`
}

// Config represents the pipeline configuration
type Config struct {
	MEDSCohortDir      string `yaml:"meds_cohort_dir" json:"meds_cohort_dir"`
	TabularizedDataDir string `yaml:"tabularized_data_dir" json:"tabularized_data_dir"`
	CacheDir           string `yaml:"cache_dir" json:"cache_dir"`

	WindowSizes []string `yaml:"window_sizes" json:"window_sizes"`
	Aggs        []string `yaml:"aggs" json:"aggs"`

	// Codes restricts feature columns to these codes; nil means unrestricted.
	Codes []string `yaml:"codes" json:"codes"`
	// MinCodeInclusionFrequency keeps only codes at least this frequent in
	// the corpus-wide frequency table; nil means unrestricted.
	MinCodeInclusionFrequency *int64 `yaml:"min_code_inclusion_frequency" json:"min_code_inclusion_frequency"`

	// SetCountZeroToNull converts zero values in *count columns to nulls
	// during schema normalization.
	SetCountZeroToNull bool `yaml:"set_count_zero_to_null" json:"set_count_zero_to_null"`

	Iterator IteratorConfig `yaml:"iterator" json:"iterator"`
	Model    ModelConfig    `yaml:"model" json:"model"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns a configuration with every field populated.
func DefaultConfig() *Config {
	return &Config{
		MEDSCohortDir:      "data/meds",
		TabularizedDataDir: "data/tabularized",
		CacheDir:           "data/cache",
		WindowSizes:        []string{"1d", "7d", "30d"},
		Aggs:               []string{"code/count", "value/sum"},
		Iterator:           IteratorConfig{KeepStaticDataInMemory: true},
		Model: ModelConfig{
			KeepDataInMemory: true,
			Rounds:           50,
			LearningRate:     0.3,
			MaxDepth:         6,
			MinChildSamples:  1,
			Lambda:           1.0,
		},
		LogLevel: "info",
	}
}

// LoadConfig loads the pipeline configuration from an optional YAML file and
// environment variables, on top of defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		// viper flattens keys; unmarshal the raw YAML straight into the
		// struct so yaml tags and pointer fields round-trip exactly.
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	// Load configuration from environment variables
	if dir := os.Getenv("MEDS_COHORT_DIR"); dir != "" {
		config.MEDSCohortDir = dir
	}
	if dir := os.Getenv("TABULARIZED_DATA_DIR"); dir != "" {
		config.TabularizedDataDir = dir
	}
	if dir := os.Getenv("CACHE_DIR"); dir != "" {
		config.CacheDir = dir
	}
	if windows := os.Getenv("WINDOW_SIZES"); windows != "" {
		config.WindowSizes = strings.Split(windows, ",")
	}
	if aggs := os.Getenv("AGGS"); aggs != "" {
		config.Aggs = strings.Split(aggs, ",")
	}
	if codes := os.Getenv("CODES"); codes != "" {
		config.Codes = strings.Split(codes, ",")
	}
	if freq, err := strconv.ParseInt(os.Getenv("MIN_CODE_INCLUSION_FREQUENCY"), 10, 64); err == nil {
		config.MinCodeInclusionFrequency = &freq
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration the way the service configs do: plain
// range and enumeration checks, failing on the first violation.
func (c *Config) Validate() error {
	if c.MEDSCohortDir == "" {
		return fmt.Errorf("meds_cohort_dir must be set")
	}
	if c.TabularizedDataDir == "" {
		return fmt.Errorf("tabularized_data_dir must be set")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must be set")
	}
	if len(c.WindowSizes) == 0 {
		return fmt.Errorf("window_sizes must not be empty")
	}
	// The as-of join direction is derived from the window sign; mixed signs
	// would need per-window label alignment, which is not supported.
	trailing := strings.Contains(c.WindowSizes[0], "-")
	for _, w := range c.WindowSizes[1:] {
		if strings.Contains(w, "-") != trailing {
			return fmt.Errorf("window_sizes mix trailing and leading offsets: %v", c.WindowSizes)
		}
	}
	if len(c.Aggs) == 0 {
		return fmt.Errorf("aggs must not be empty")
	}
	for _, agg := range c.Aggs {
		if err := features.ValidateAggregation(agg); err != nil {
			return fmt.Errorf("aggs: %w", err)
		}
	}
	if c.MinCodeInclusionFrequency != nil && *c.MinCodeInclusionFrequency < 1 {
		return fmt.Errorf("min_code_inclusion_frequency must be >= 1, got %d", *c.MinCodeInclusionFrequency)
	}
	if c.Model.Rounds <= 0 {
		return fmt.Errorf("model.rounds must be positive, got %d", c.Model.Rounds)
	}
	if c.Model.LearningRate <= 0 || c.Model.LearningRate > 1 {
		return fmt.Errorf("model.learning_rate must be in (0, 1], got %v", c.Model.LearningRate)
	}
	if c.Model.MaxDepth <= 0 {
		return fmt.Errorf("model.max_depth must be positive, got %d", c.Model.MaxDepth)
	}
	if c.Model.MinChildSamples < 1 {
		return fmt.Errorf("model.min_child_samples must be >= 1, got %d", c.Model.MinChildSamples)
	}
	if c.Model.Lambda < 0 {
		return fmt.Errorf("model.lambda must be non-negative, got %v", c.Model.Lambda)
	}
	return nil
}

// FlatDir returns the directory holding the persisted feature-column set.
func (c *Config) FlatDir() string {
	return filepath.Join(c.TabularizedDataDir, "flat_reps")
}

// Fingerprint returns the canonical YAML serialization of the configuration,
// used for byte-equality comparison against a previously stored config.
func (c *Config) Fingerprint() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config fingerprint: %w", err)
	}
	return out, nil
}
