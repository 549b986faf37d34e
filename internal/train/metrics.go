package train

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// EpochMetrics is the per-epoch scalar record: mean losses and accuracy
// percentages for the training and evaluation passes.
type EpochMetrics struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	TestLoss  float64
	TestAcc   float64
}

// Recorder is the ordered per-run metrics log, keyed by epoch index. It is
// owned by the coordinating worker; no other worker touches it, so it
// needs no locking.
type Recorder struct {
	records []EpochMetrics
}

// Append adds one epoch's record.
func (r *Recorder) Append(m EpochMetrics) {
	r.records = append(r.records, m)
}

// Records returns the accumulated epoch records in order.
func (r *Recorder) Records() []EpochMetrics {
	return r.records
}

// Sink persists epoch records. Only the coordinator calls it.
type Sink interface {
	Record(m EpochMetrics) error
	Finalize() error
}

// DiscardSink drops every record. Useful for tests and dry runs.
type DiscardSink struct{}

func (DiscardSink) Record(EpochMetrics) error { return nil }
func (DiscardSink) Finalize() error           { return nil }

// CSVSink buffers epoch records and writes them to a CSV file on Finalize.
//
// The file name encodes the run's batch size, base rate, and schedule mode
// plus a short run ID, e.g. "32_0.01_warm_1a2b3c4d.csv".
type CSVSink struct {
	path    string
	records []EpochMetrics
}

// NewCSVSink creates a sink writing into dir, creating dir if needed.
func NewCSVSink(dir string, cfg Config) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("train: failed to create metrics dir: %w", err)
	}
	mode := "cosine"
	if cfg.Warmup {
		mode = "warm"
	}
	runID := uuid.New().String()[:8]
	name := fmt.Sprintf("%d_%g_%s_%s.csv", cfg.BatchSize, cfg.LR, mode, runID)
	return &CSVSink{path: filepath.Join(dir, name)}, nil
}

// Path returns the file the sink will write.
func (s *CSVSink) Path() string {
	return s.path
}

// Record buffers one epoch record.
func (s *CSVSink) Record(m EpochMetrics) error {
	s.records = append(s.records, m)
	return nil
}

// Finalize writes all buffered records to the CSV file.
func (s *CSVSink) Finalize() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("train: failed to create metrics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "train_loss", "train_acc", "test_loss", "test_acc"}); err != nil {
		return err
	}
	for _, m := range s.records {
		row := []string{
			strconv.Itoa(m.Epoch),
			strconv.FormatFloat(m.TrainLoss, 'g', -1, 64),
			strconv.FormatFloat(m.TrainAcc, 'g', -1, 64),
			strconv.FormatFloat(m.TestLoss, 'g', -1, 64),
			strconv.FormatFloat(m.TestAcc, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
