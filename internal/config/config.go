// Package config loads run configuration from YAML files.
//
// File values overlay the built-in defaults; command-line flags overlay
// the file. Unknown keys are rejected so typos fail fast instead of
// silently training with defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/horde-ml/horde/internal/train"
)

// fileConfig mirrors train.Config with pointer fields so absent keys are
// distinguishable from zero values.
type fileConfig struct {
	BatchSize   *int     `yaml:"batch_size"`
	Workers     *int     `yaml:"workers"`
	Epochs      *int     `yaml:"epochs"`
	LR          *float64 `yaml:"lr"`
	LRWeights   *float64 `yaml:"lr_weights"`
	LRBiases    *float64 `yaml:"lr_biases"`
	WeightDecay *float64 `yaml:"weight_decay"`
	Warmup      *bool    `yaml:"warmup"`
	Seed        *int64   `yaml:"seed"`
	Hidden      *int     `yaml:"hidden"`
}

// Load reads a YAML config file and overlays it onto the defaults.
func Load(path string) (train.Config, error) {
	cfg := train.DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.Epochs != nil {
		cfg.Epochs = *fc.Epochs
	}
	if fc.LR != nil {
		cfg.LR = *fc.LR
	}
	if fc.LRWeights != nil {
		cfg.LRWeights = *fc.LRWeights
	}
	if fc.LRBiases != nil {
		cfg.LRBiases = *fc.LRBiases
	}
	if fc.WeightDecay != nil {
		cfg.WeightDecay = *fc.WeightDecay
	}
	if fc.Warmup != nil {
		cfg.Warmup = *fc.Warmup
	}
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}
	if fc.Hidden != nil {
		cfg.Hidden = *fc.Hidden
	}
	return cfg, nil
}
