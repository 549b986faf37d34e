// Command horde trains an image classifier across N synchronous workers
// with the LARS optimizer.
//
// Usage:
//
//	horde -data ./cifar-10-batches-bin -bs 256 -workers 4 -epochs 30 -warm
//	horde -synthetic -bs 32 -workers 2 -epochs 1
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"

	"github.com/horde-ml/horde/internal/config"
	"github.com/horde-ml/horde/internal/data"
	"github.com/horde-ml/horde/internal/train"
)

func main() {
	defaults := train.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file (flags override it)")
	bs := flag.Int("bs", defaults.BatchSize, "logical batch size, split across workers")
	workers := flag.Int("workers", defaults.Workers, "number of workers")
	epochs := flag.Int("epochs", defaults.Epochs, "number of training epochs")
	lr := flag.Float64("lr", defaults.LR, "initial learning rate (no-warmup mode)")
	seed := flag.Int64("seed", defaults.Seed, "RNG seed (0 = derive from clock)")
	warm := flag.Bool("warm", defaults.Warmup, "use the linear warmup + cosine decay schedule")
	lrWeights := flag.Float64("learning-rate-weights", defaults.LRWeights, "warmup-mode rate multiplier for weights")
	lrBiases := flag.Float64("learning-rate-biases", defaults.LRBiases, "warmup-mode rate multiplier for biases and norm parameters")
	wd := flag.Float64("wd", defaults.WeightDecay, "weight decay")
	hidden := flag.Int("hidden", defaults.Hidden, "hidden width of the classifier")
	dataDir := flag.String("data", "./data", "directory with CIFAR-10 binary batches")
	outDir := flag.String("out", ".", "directory for the metrics CSV")
	synthetic := flag.Bool("synthetic", false, "train on synthetic data instead of CIFAR-10")
	samples := flag.Int("samples", 0, "max samples to load (0 = all)")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("horde: %v", err)
		}
		cfg = loaded
	}

	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bs":
			cfg.BatchSize = *bs
		case "workers":
			cfg.Workers = *workers
		case "epochs":
			cfg.Epochs = *epochs
		case "lr":
			cfg.LR = *lr
		case "seed":
			cfg.Seed = *seed
		case "warm":
			cfg.Warmup = *warm
		case "learning-rate-weights":
			cfg.LRWeights = *lrWeights
		case "learning-rate-biases":
			cfg.LRBiases = *lrBiases
		case "wd":
			cfg.WeightDecay = *wd
		case "hidden":
			cfg.Hidden = *hidden
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("horde: %v", err)
	}

	trainSet, testSet, err := loadDatasets(cfg, *dataDir, *synthetic, *samples)
	if err != nil {
		log.Fatalf("horde: %v", err)
	}
	log.Printf("loaded %d train / %d test samples (%d features, %d classes)",
		trainSet.NumSamples(), testSet.NumSamples(), trainSet.Dim, trainSet.Classes)

	sink, err := train.NewCSVSink(*outDir, cfg)
	if err != nil {
		log.Fatalf("horde: %v", err)
	}

	recorder, err := train.Run(cfg, trainSet, testSet, sink)
	if err != nil {
		log.Fatalf("horde: training failed: %v", err)
	}

	records := recorder.Records()
	last := records[len(records)-1]
	fmt.Printf("done: %d epochs, final train_acc=%.2f%% test_acc=%.2f%%\n",
		len(records), last.TrainAcc, last.TestAcc)
	fmt.Printf("metrics written to %s\n", sink.Path())
}

// loadDatasets returns the train/test pair, either CIFAR-10 from disk or a
// seeded synthetic set.
func loadDatasets(cfg train.Config, dataDir string, synthetic bool, maxSamples int) (*data.Dataset, *data.Dataset, error) {
	if synthetic {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		return data.Synthetic(2048, 64, 10, seed), data.Synthetic(512, 64, 10, seed+1), nil
	}

	trainSet, err := data.LoadCIFAR10(dataDir, true, maxSamples)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("CIFAR-10 not found in %s (download the binary version from https://www.cs.toronto.edu/~kriz/cifar.html, or run with -synthetic): %w", dataDir, err)
		}
		return nil, nil, err
	}
	testSet, err := data.LoadCIFAR10(dataDir, false, maxSamples)
	if err != nil {
		return nil, nil, err
	}
	return trainSet, testSet, nil
}
