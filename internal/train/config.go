package train

import "fmt"

// Config is the run configuration, consumed once at startup. It is not
// re-validated mid-run; Validate rejects bad configurations before any
// epoch executes.
type Config struct {
	BatchSize   int     // logical batch size, split evenly across workers
	Workers     int     // number of worker goroutines (one per rank)
	Epochs      int     // fixed epoch count; no early stopping
	LR          float64 // base learning rate for the no-warmup schedule
	LRWeights   float64 // warmup-mode multiplier for weight-like parameters
	LRBiases    float64 // warmup-mode multiplier for bias/norm parameters
	WeightDecay float64 // L2 penalty coefficient
	Warmup      bool    // linear warmup + cosine decay vs cosine annealing
	Seed        int64   // RNG seed; 0 derives one from the clock
	Hidden      int     // hidden width of the bundled classifier
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:   32,
		Workers:     2,
		Epochs:      1,
		LR:          0.01,
		LRWeights:   0.2,
		LRBiases:    0.0048,
		WeightDecay: 5e-4,
		Warmup:      false,
		Seed:        0,
		Hidden:      128,
	}
}

// Validate returns an error for any configuration that must not start a
// run. Configuration errors are fatal at startup; no partial run is
// attempted.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("train: workers must be at least 1, got %d", c.Workers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if c.BatchSize%c.Workers != 0 {
		return fmt.Errorf("train: batch size %d is not divisible by %d workers", c.BatchSize, c.Workers)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("train: epochs must be at least 1, got %d", c.Epochs)
	}
	if c.LR <= 0 {
		return fmt.Errorf("train: learning rate must be positive, got %g", c.LR)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("train: hidden width must be at least 1, got %d", c.Hidden)
	}
	return nil
}
