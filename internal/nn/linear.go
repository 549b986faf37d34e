package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/horde-ml/horde/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights use Xavier/Glorot initialization, biases start at zero. The
// matmuls go through gonum's mat.Dense, wrapping the tensor buffers without
// copying.
//
// The layer carries a hand-written backward pass: Forward caches its input
// and Backward produces batch-mean parameter gradients plus the gradient
// with respect to the input.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]

	input *tensor.Dense // cached by Forward for the backward pass
}

// NewLinear creates a new Linear layer with Xavier-initialized weights.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	weightTensor := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng)
	biasTensor := Zeros(tensor.Shape{outFeatures})

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weightTensor),
		bias:        NewParameter("bias", biasTensor),
	}
}

// Forward computes y = x @ W.T + b.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
//
// The input is cached for Backward.
func (l *Linear) Forward(input *tensor.Dense) *tensor.Dense {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}
	batch := inputShape[0]

	x := mat.NewDense(batch, l.inFeatures, input.Data())
	w := mat.NewDense(l.outFeatures, l.inFeatures, l.weight.Value().Data())

	out := tensor.Zeros(tensor.Shape{batch, l.outFeatures})
	y := mat.NewDense(batch, l.outFeatures, out.Data())
	y.Mul(x, w.T())

	// Broadcast bias across the batch.
	biasData := l.bias.Value().Data()
	for i := 0; i < batch; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] += biasData[j]
		}
	}

	l.input = input
	return out
}

// Backward computes gradients from the upstream gradient dout.
//
// Sets the weight gradient (dout.T @ x), the bias gradient (column sums of
// dout), and returns the gradient with respect to the input (dout @ W).
// The caller is responsible for any batch-size normalization; the loss
// backward here already emits batch-mean gradients.
func (l *Linear) Backward(dout *tensor.Dense) *tensor.Dense {
	if l.input == nil {
		panic("Linear.Backward: no cached input, call Forward first")
	}
	doutShape := dout.Shape()
	batch := l.input.Shape()[0]
	if len(doutShape) != 2 || doutShape[0] != batch || doutShape[1] != l.outFeatures {
		panic(fmt.Sprintf("Linear.Backward: expected gradient shape [%d, %d], got %v", batch, l.outFeatures, doutShape))
	}

	x := mat.NewDense(batch, l.inFeatures, l.input.Data())
	w := mat.NewDense(l.outFeatures, l.inFeatures, l.weight.Value().Data())
	dy := mat.NewDense(batch, l.outFeatures, dout.Data())

	// dW = dout.T @ x
	gradW := tensor.Zeros(tensor.Shape{l.outFeatures, l.inFeatures})
	dw := mat.NewDense(l.outFeatures, l.inFeatures, gradW.Data())
	dw.Mul(dy.T(), x)
	l.weight.SetGrad(gradW)

	// db = column sums of dout
	gradB := tensor.Zeros(tensor.Shape{l.outFeatures})
	gradBData := gradB.Data()
	for i := 0; i < batch; i++ {
		row := dout.Row(i)
		for j := range row {
			gradBData[j] += row[j]
		}
	}
	l.bias.SetGrad(gradB)

	// dx = dout @ W
	dxTensor := tensor.Zeros(tensor.Shape{batch, l.inFeatures})
	dx := mat.NewDense(batch, l.inFeatures, dxTensor.Data())
	dx.Mul(dy, w)
	return dxTensor
}

// Parameters returns the trainable parameters of this layer.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}
