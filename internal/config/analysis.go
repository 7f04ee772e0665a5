package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TracerConfig bounds the derivation explainer.
type TracerConfig struct {
	MaxDepth     int  `yaml:"max_depth" json:"max_depth"`
	MaxSteps     int  `yaml:"max_steps" json:"max_steps"`
	AllPaths     bool `yaml:"all_paths" json:"all_paths"`
	StratumAware bool `yaml:"stratum_aware" json:"stratum_aware"`
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	// DebounceMs is how long to wait after the last write event before
	// re-running analysis.
	DebounceMs int `yaml:"debounce_ms" json:"debounce_ms"`
}

// AnalysisConfig is the top-level configuration for an analysis run.
type AnalysisConfig struct {
	// VirtualPredicates are exempt from missing/undefined/unused checks.
	VirtualPredicates []string `yaml:"virtual_predicates" json:"virtual_predicates,omitempty"`
	// BuiltinPredicates extend the default builtin set.
	BuiltinPredicates []string `yaml:"builtin_predicates" json:"builtin_predicates,omitempty"`
	// SizesFile points at a JSON map of predicate name to estimated
	// row count, consumed by the performance pass.
	SizesFile string `yaml:"sizes_file" json:"sizes_file,omitempty"`
	// FailOn is the minimum severity that makes the run fail
	// (info, low, medium, warning, high, error).
	FailOn string `yaml:"fail_on" json:"fail_on"`
	// Completeness makes any missing cross-file definition fail the run.
	Completeness bool `yaml:"completeness" json:"completeness"`
	// Dialect enables the upstream-parser crosscheck.
	Dialect bool `yaml:"dialect" json:"dialect"`

	Tracer TracerConfig `yaml:"tracer" json:"tracer"`
	Watch  WatchConfig  `yaml:"watch" json:"watch"`
}

// DefaultAnalysisConfig returns sensible defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		FailOn: "error",
		Tracer: TracerConfig{
			MaxDepth: 25,
			MaxSteps: 10000,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
	}
}

// LoadAnalysisConfig reads a YAML config file, layering it over the
// defaults. A missing path returns the defaults without error.
func LoadAnalysisConfig(path string) (AnalysisConfig, error) {
	cfg := DefaultAnalysisConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFloors()
	return cfg, nil
}

// applyFloors keeps zero or negative bounds from disabling the guards.
func (c *AnalysisConfig) applyFloors() {
	if c.Tracer.MaxDepth <= 0 {
		c.Tracer.MaxDepth = 25
	}
	if c.Tracer.MaxSteps <= 0 {
		c.Tracer.MaxSteps = 10000
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = 500
	}
	if c.FailOn == "" {
		c.FailOn = "error"
	}
}
