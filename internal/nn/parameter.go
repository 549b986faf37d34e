package nn

import (
	"github.com/horde-ml/horde/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that receive gradients during training. Whether a
// parameter is weight-like (rank > 1) or bias/norm-like (rank == 1) is
// decided once at construction and stored, so the optimizer never has to
// re-inspect shapes per step.
type Parameter struct {
	name       string
	value      *tensor.Dense
	grad       *tensor.Dense // populated by backward, nil until then
	weightLike bool
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the Parameter.
// The gradient is allocated on the first backward pass.
func NewParameter(name string, value *tensor.Dense) *Parameter {
	return &Parameter{
		name:       name,
		value:      value,
		grad:       nil,
		weightLike: value.Rank() > 1,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Value returns the parameter tensor.
func (p *Parameter) Value() *tensor.Dense {
	return p.value
}

// Grad returns the gradient tensor, or nil if none has been computed since
// the last ZeroGrad.
func (p *Parameter) Grad() *tensor.Dense {
	return p.grad
}

// SetGrad sets the gradient tensor. Called by layer backward passes.
func (p *Parameter) SetGrad(grad *tensor.Dense) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
//
// Call before each backward pass so gradients never accumulate across
// iterations.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// WeightLike reports whether the parameter is weight-like (rank > 1).
// Bias and normalization parameters are rank 1 and report false.
func (p *Parameter) WeightLike() bool {
	return p.weightLike
}
