package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CIFAR-10 binary format constants. Each record is one label byte followed
// by 3072 pixel bytes (1024 per channel, channel-major R/G/B).
const (
	cifarImageSize  = 32 * 32
	cifarChannels   = 3
	cifarDim        = cifarImageSize * cifarChannels
	cifarClasses    = 10
	cifarRecordSize = 1 + cifarDim
)

// Per-channel normalization constants (the standard ImageNet mean/std).
var (
	cifarMean = [cifarChannels]float64{0.485, 0.456, 0.406}
	cifarStd  = [cifarChannels]float64{0.229, 0.224, 0.225}
)

// LoadCIFAR10 loads the CIFAR-10 dataset from its binary batch files.
//
// Expected files in dataDir (from the "CIFAR-10 binary version" archive):
//   - data_batch_1.bin … data_batch_5.bin for the training set
//   - test_batch.bin for the test set
//
// Pixels are scaled to [0, 1] and normalized per channel. maxSamples
// limits the number of samples loaded (0 = load all).
func LoadCIFAR10(dataDir string, train bool, maxSamples int) (*Dataset, error) {
	var files []string
	if train {
		for i := 1; i <= 5; i++ {
			files = append(files, filepath.Join(dataDir, fmt.Sprintf("data_batch_%d.bin", i)))
		}
	} else {
		files = []string{filepath.Join(dataDir, "test_batch.bin")}
	}

	ds := &Dataset{Dim: cifarDim, Classes: cifarClasses}
	for _, name := range files {
		if err := readCIFARBatch(name, ds, maxSamples); err != nil {
			return nil, err
		}
		if maxSamples > 0 && ds.NumSamples() >= maxSamples {
			break
		}
	}

	if ds.NumSamples() == 0 {
		return nil, fmt.Errorf("cifar: no samples loaded from %s", dataDir)
	}
	return ds, nil
}

// readCIFARBatch appends one binary batch file's records to ds.
func readCIFARBatch(name string, ds *Dataset, maxSamples int) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("cifar: failed to open batch: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	record := make([]byte, cifarRecordSize)
	for {
		if maxSamples > 0 && ds.NumSamples() >= maxSamples {
			return nil
		}

		_, err := io.ReadFull(r, record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cifar: short read in %s: %w", name, err)
		}

		label := int(record[0])
		if label >= cifarClasses {
			return fmt.Errorf("cifar: label %d out of range in %s", label, name)
		}

		img := make([]float64, cifarDim)
		for c := 0; c < cifarChannels; c++ {
			for p := 0; p < cifarImageSize; p++ {
				raw := float64(record[1+c*cifarImageSize+p]) / 255.0
				img[c*cifarImageSize+p] = (raw - cifarMean[c]) / cifarStd[c]
			}
		}

		ds.Images = append(ds.Images, img)
		ds.Labels = append(ds.Labels, label)
	}
}
