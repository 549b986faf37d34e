// Package train drives synchronous data-parallel training: N workers in
// lock-step over sharded batches, gradients averaged through the process
// group before every optimizer step, metrics aggregated on the
// coordinator.
package train

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/horde-ml/horde/internal/data"
	"github.com/horde-ml/horde/internal/dist"
	"github.com/horde-ml/horde/internal/nn"
	"github.com/horde-ml/horde/internal/optim"
	"github.com/horde-ml/horde/internal/schedule"
	"github.com/horde-ml/horde/internal/tensor"
)

// Model is the trainer's view of a classifier: a forward pass producing
// per-class scores, a matching backward pass that fills parameter
// gradients, and the parameter list in a stable order.
type Model interface {
	Forward(input *tensor.Dense) *tensor.Dense
	Backward(dlogits *tensor.Dense)
	Parameters() []*nn.Parameter
}

// Run executes one full training run and returns the coordinator's metrics
// record.
//
// It spawns cfg.Workers goroutines, one per rank, each owning a model
// replica and optimizer state. Rank 0's initial weights are broadcast so
// all replicas start identical. Any worker error aborts the whole group;
// there is no partial-worker continuation.
func Run(cfg Config, trainSet, testSet *data.Dataset, sink Sink) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := trainSet.Validate(); err != nil {
		return nil, err
	}
	if err := testSet.Validate(); err != nil {
		return nil, err
	}
	if trainSet.Dim != testSet.Dim || trainSet.Classes != testSet.Classes {
		return nil, fmt.Errorf("train: train/test dataset mismatch: dim %d/%d, classes %d/%d",
			trainSet.Dim, testSet.Dim, trainSet.Classes, testSet.Classes)
	}
	if sink == nil {
		sink = DiscardSink{}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctxs, err := dist.NewGroup(cfg.Workers)
	if err != nil {
		return nil, err
	}

	perWorker := cfg.BatchSize / cfg.Workers
	trainSampler := data.NewSampler(trainSet, seed)
	testSampler := data.NewSampler(testSet, seed)
	if trainSampler.StepsPerEpoch(cfg.Workers, perWorker) == 0 {
		return nil, fmt.Errorf("train: dataset of %d samples is too small for %d workers", trainSet.NumSamples(), cfg.Workers)
	}

	recorder := &Recorder{}
	errs := make([]error, cfg.Workers)

	var wg sync.WaitGroup
	for rank, ctx := range ctxs {
		rng := rand.New(rand.NewSource(seed + int64(rank)))
		model := nn.NewClassifier(trainSet.Dim, cfg.Hidden, trainSet.Classes, rng)

		w := &worker{
			cfg:          cfg,
			ctx:          ctx,
			model:        model,
			opt:          optim.NewLARS(optim.GroupByRank(model.Parameters()), larsConfig(cfg)),
			trainSampler: trainSampler,
			testSampler:  testSampler,
			recorder:     recorder,
			sink:         sink,
			logger:       log.New(os.Stderr, fmt.Sprintf("[rank %d] ", rank), log.LstdFlags),
		}

		wg.Add(1)
		go func(rank int, w *worker) {
			defer wg.Done()
			if err := w.run(); err != nil {
				errs[rank] = err
				// A failed worker takes the whole group down rather
				// than leaving its peers blocked in a collective.
				w.ctx.Abort()
			}
		}(rank, w)
	}
	wg.Wait()
	ctxs[0].Teardown()

	if err := firstCause(errs); err != nil {
		return nil, err
	}
	if err := sink.Finalize(); err != nil {
		return nil, err
	}
	return recorder, nil
}

// firstCause picks the most informative worker error: a real failure wins
// over the ErrAborted its peers observe as a consequence.
func firstCause(errs []error) error {
	var aborted error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, dist.ErrAborted) {
			aborted = err
			continue
		}
		return err
	}
	return aborted
}

func larsConfig(cfg Config) optim.LARSConfig {
	return optim.LARSConfig{
		WeightDecay:          cfg.WeightDecay,
		WeightDecayFilter:    true,
		LARSAdaptationFilter: true,
	}
}

// worker is one rank's training state. All fields are owned exclusively by
// the worker's goroutine except recorder and sink, which only the
// coordinator touches.
type worker struct {
	cfg          Config
	ctx          *dist.Worker
	model        Model
	opt          *optim.LARS
	trainSampler *data.Sampler
	testSampler  *data.Sampler
	recorder     *Recorder
	sink         Sink
	logger       *log.Logger
}

// run executes the full epoch loop for one rank. The step control flow is
// identical on every rank; only metric accumulation and reporting are
// gated on IsCoordinator, which is what keeps the collectives in
// lock-step.
func (w *worker) run() error {
	params := w.model.Parameters()
	if err := w.ctx.BroadcastParameters(params); err != nil {
		return err
	}

	perWorker := w.cfg.BatchSize / w.cfg.Workers
	stepsPerEpoch := w.trainSampler.StepsPerEpoch(w.ctx.Size(), perWorker)
	totalSteps := w.cfg.Epochs * stepsPerEpoch
	warmupSteps := 10 * stepsPerEpoch
	baseRate := schedule.BaseRate(w.cfg.BatchSize)

	for epoch := 0; epoch < w.cfg.Epochs; epoch++ {
		batches := w.trainSampler.ShardForEpoch(epoch, w.ctx.Rank(), w.ctx.Size(), perWorker)

		lossSum := 0.0
		correct, total := 0, 0

		for i, batch := range batches {
			step := epoch*stepsPerEpoch + i

			wLR, bLR := groupRates(w.cfg, step, totalSteps, warmupSteps, baseRate)
			w.opt.SetGroupLR(optim.WeightGroup, wLR)
			w.opt.SetGroupLR(optim.BiasGroup, bLR)

			logits := w.model.Forward(batch.Images)
			loss := nn.CrossEntropy(logits, batch.Labels)

			w.opt.ZeroGrad()
			w.model.Backward(nn.CrossEntropyBackward(logits, batch.Labels))

			// Synchronization boundary: every rank's gradients are
			// combined here before any rank may step.
			if err := w.ctx.AllReduceGradients(params); err != nil {
				return err
			}
			w.opt.Step()

			if w.ctx.IsCoordinator() {
				lossSum += loss
				total += batch.Size()
				correct += nn.CountCorrect(logits, batch.Labels)
			}
		}

		if w.ctx.IsCoordinator() {
			m := EpochMetrics{
				Epoch:     epoch,
				TrainLoss: lossSum / float64(len(batches)),
				TrainAcc:  100 * float64(correct) / float64(total),
			}
			m.TestLoss, m.TestAcc = w.evaluate(epoch, perWorker)

			w.recorder.Append(m)
			if err := w.sink.Record(m); err != nil {
				return err
			}
			w.logger.Printf("epoch %d: train_loss=%.4f train_acc=%.2f%% test_loss=%.4f test_acc=%.2f%%",
				m.Epoch, m.TrainLoss, m.TrainAcc, m.TestLoss, m.TestAcc)
		}
	}
	return nil
}

// groupRates computes the per-group learning rates for a global step.
//
// Warmup mode composes two factors multiplicatively: the schedule output
// and the per-group multiplier. The no-warmup mode drives both groups with
// the same cosine-annealed rate; its curve is advanced once per batch with
// a period of cfg.Epochs schedule steps, so the annealing runs its course
// within the first cfg.Epochs batches.
func groupRates(cfg Config, step, totalSteps, warmupSteps int, baseRate float64) (weightLR, biasLR float64) {
	if cfg.Warmup {
		lr := schedule.WarmupCosine(step, totalSteps, warmupSteps, baseRate)
		return lr * cfg.LRWeights, lr * cfg.LRBiases
	}
	lr := schedule.CosineAnnealing(step, cfg.Epochs, cfg.LR)
	return lr, lr
}

// evaluate runs one pass over the coordinator's evaluation shard with no
// gradient computation and returns mean loss and accuracy percentage.
// Called on the coordinator only; it is not a collective.
func (w *worker) evaluate(epoch, batchSize int) (meanLoss, accPct float64) {
	batches := w.testSampler.ShardForEpoch(epoch, 0, w.ctx.Size(), batchSize)
	if len(batches) == 0 {
		return 0, 0
	}

	lossSum := 0.0
	correct, total := 0, 0
	for _, batch := range batches {
		logits := w.model.Forward(batch.Images)
		lossSum += nn.CrossEntropy(logits, batch.Labels)
		total += batch.Size()
		correct += nn.CountCorrect(logits, batch.Labels)
	}
	return lossSum / float64(len(batches)), 100 * float64(correct) / float64(total)
}
