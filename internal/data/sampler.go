package data

import (
	"math/rand"

	"github.com/horde-ml/horde/internal/tensor"
)

// Batch is one mini-batch of training inputs.
type Batch struct {
	Images *tensor.Dense // [batch_size, features]
	Labels []int         // [batch_size]
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Sampler produces deterministic, sharded, per-epoch batches.
//
// Every worker constructs a sampler with the same dataset and seed; the
// permutation for an epoch is derived from (seed, epoch) alone, so all
// workers reshuffle consistently without communicating. Shards are
// disjoint by rank and truncated to equal length, which guarantees equal
// per-worker batch counts — the lock-step requirement of the gradient
// collective.
type Sampler struct {
	dataset *Dataset
	seed    int64
}

// NewSampler creates a sampler over the dataset.
func NewSampler(dataset *Dataset, seed int64) *Sampler {
	return &Sampler{dataset: dataset, seed: seed}
}

// StepsPerEpoch returns the number of batches each worker processes per
// epoch, identical across ranks for fixed (size, batchSize).
func (s *Sampler) StepsPerEpoch(size, batchSize int) int {
	perWorker := s.dataset.NumSamples() / size
	return (perWorker + batchSize - 1) / batchSize
}

// ShardForEpoch returns rank's batches for the given epoch.
//
// The epoch's permutation is shared by all ranks; rank r takes elements
// r, r+size, r+2*size, … of it. The remainder that does not divide evenly
// across workers is dropped, so every rank sees the same number of
// batches, and batch k has the same size on every rank.
func (s *Sampler) ShardForEpoch(epoch, rank, size, batchSize int) []*Batch {
	n := s.dataset.NumSamples()
	perWorker := n / size

	rng := rand.New(rand.NewSource(s.seed + int64(epoch)))
	perm := rng.Perm(n)

	indices := make([]int, perWorker)
	for i := 0; i < perWorker; i++ {
		indices[i] = perm[i*size+rank]
	}

	dim := s.dataset.Dim
	batches := make([]*Batch, 0, (perWorker+batchSize-1)/batchSize)
	for start := 0; start < perWorker; start += batchSize {
		end := start + batchSize
		if end > perWorker {
			end = perWorker
		}
		count := end - start

		images := tensor.Zeros(tensor.Shape{count, dim})
		labels := make([]int, count)
		for i := 0; i < count; i++ {
			idx := indices[start+i]
			copy(images.Row(i), s.dataset.Images[idx])
			labels[i] = s.dataset.Labels[idx]
		}
		batches = append(batches, &Batch{Images: images, Labels: labels})
	}
	return batches
}
