package nn

import (
	"fmt"
	"math"

	"github.com/horde-ml/horde/internal/tensor"
)

// CrossEntropy computes the mean cross-entropy loss for a batch.
//
// Uses the LogSoftmax + NLLLoss decomposition for numerical stability:
//
//	Loss = -log_probs[target]
//	where log_probs = LogSoftmax(logits)
//
// Parameters:
//   - logits: unnormalized scores with shape [batch_size, num_classes]
//   - targets: class indices, one per batch row
//
// Returns the scalar mean loss over the batch.
func CrossEntropy(logits *tensor.Dense, targets []int) float64 {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic("CrossEntropy: logits must be 2D [batch_size, num_classes]")
	}
	batchSize := shape[0]
	numClasses := shape[1]
	if len(targets) != batchSize {
		panic(fmt.Sprintf("CrossEntropy: got %d targets for batch of %d", len(targets), batchSize))
	}

	totalLoss := 0.0
	for b := 0; b < batchSize; b++ {
		logProbs := logSoftmax(logits.Row(b))

		target := targets[b]
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("CrossEntropy: target %d out of range [0, %d)", target, numClasses))
		}
		totalLoss += -logProbs[target]
	}

	return totalLoss / float64(batchSize)
}

// CrossEntropyBackward computes the gradient of the mean cross-entropy loss
// with respect to the logits.
//
// Gradient formula:
//
//	dL/dlogits[i] = (softmax(logits)[i] - onehot(target)[i]) / batch_size
//
// The division by batch size makes downstream parameter gradients the mean
// over the local batch, which is what the gradient all-reduce expects.
func CrossEntropyBackward(logits *tensor.Dense, targets []int) *tensor.Dense {
	shape := logits.Shape()
	batchSize := shape[0]
	numClasses := shape[1]

	grad := tensor.Zeros(shape)
	for b := 0; b < batchSize; b++ {
		probs := softmax(logits.Row(b))
		target := targets[b]

		gradRow := grad.Row(b)
		for i := 0; i < numClasses; i++ {
			g := probs[i]
			if i == target {
				g -= 1.0
			}
			gradRow[i] = g / float64(batchSize)
		}
	}
	return grad
}

// logSoftmax computes log(softmax(z)) using the log-sum-exp trick, which
// prevents overflow for large logits and underflow for very negative ones.
func logSoftmax(z []float64) []float64 {
	n := len(z)
	result := make([]float64, n)

	maxZ := z[0]
	for i := 1; i < n; i++ {
		if z[i] > maxZ {
			maxZ = z[i]
		}
	}

	sumExp := 0.0
	for i := 0; i < n; i++ {
		sumExp += math.Exp(z[i] - maxZ)
	}
	logSumExp := maxZ + math.Log(sumExp)

	for i := 0; i < n; i++ {
		result[i] = z[i] - logSumExp
	}
	return result
}

// softmax computes softmax(z) = exp(LogSoftmax(z)).
func softmax(z []float64) []float64 {
	logProbs := logSoftmax(z)
	result := make([]float64, len(logProbs))
	for i, lp := range logProbs {
		result[i] = math.Exp(lp)
	}
	return result
}

// CountCorrect returns how many batch rows have argmax(logits) == target.
func CountCorrect(logits *tensor.Dense, targets []int) int {
	shape := logits.Shape()
	batchSize := shape[0]

	correct := 0
	for b := 0; b < batchSize; b++ {
		if tensor.Argmax(logits.Row(b)) == targets[b] {
			correct++
		}
	}
	return correct
}
