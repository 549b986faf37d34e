// Package schedule provides the pure learning-rate schedule functions.
//
// The functions map a global step to a learning rate and hold no state;
// the training loop owns the step counter and applies the result to the
// optimizer's parameter groups. Keeping the schedule side-effect free is
// what makes it testable in isolation from the loop.
package schedule

import "math"

// EndRateFraction is the floor the warmup+cosine schedule decays toward,
// as a fraction of the base rate.
const EndRateFraction = 0.001

// BaseRate returns the batch-size-scaled base learning rate used by the
// warmup schedule: batchSize / 256.
func BaseRate(batchSize int) float64 {
	return float64(batchSize) / 256.0
}

// WarmupCosine computes the learning rate for a global step under the
// two-regime schedule: linear warmup from 0 to baseRate over warmupSteps,
// then cosine decay from baseRate toward baseRate*EndRateFraction over the
// remaining steps.
//
// step is 0-based and global across the whole run
// (totalSteps = epochs * stepsPerEpoch).
//
// Guards: a non-positive warmupSteps skips the ramp entirely (callers that
// disable warmup should use CosineAnnealing instead), and a cosine span of
// zero or fewer steps holds the rate at baseRate rather than dividing by
// zero.
func WarmupCosine(step, totalSteps, warmupSteps int, baseRate float64) float64 {
	if warmupSteps > 0 && step < warmupSteps {
		return baseRate * float64(step) / float64(warmupSteps)
	}

	s := step - warmupSteps
	m := totalSteps - warmupSteps
	q := 1.0
	if m > 0 {
		q = 0.5 * (1 + math.Cos(math.Pi*float64(s)/float64(m)))
	}
	endRate := baseRate * EndRateFraction
	return baseRate*q + endRate*(1-q)
}

// CosineAnnealing computes the learning rate for the no-warmup mode: a
// standard cosine curve from baseRate to 0 over tMax schedule steps, with
// no floor blending.
//
// The trainer advances this once per batch with tMax equal to the epoch
// count, not once per epoch, so the curve completes its descent within
// the first tMax batches and the rate stays near zero afterwards.
func CosineAnnealing(step, tMax int, baseRate float64) float64 {
	if tMax <= 0 {
		return baseRate
	}
	return 0.5 * baseRate * (1 + math.Cos(math.Pi*float64(step)/float64(tMax)))
}
