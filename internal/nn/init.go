package nn

import (
	"math"
	"math/rand"

	"github.com/horde-ml/horde/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Fills a tensor with values drawn from
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))), which keeps
// activation variance stable across layers.
//
// The RNG is passed explicitly so that seeded runs are reproducible.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Dense {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.Zeros(shape)
	data := t.Data()
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return t
}

// Zeros creates a zero-filled tensor. Commonly used for bias initialization.
func Zeros(shape tensor.Shape) *tensor.Dense {
	return tensor.Zeros(shape)
}
