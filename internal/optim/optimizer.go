// Package optim implements the optimization side of training: parameter
// groups and the LARS update rule.
//
// Parameters are partitioned once at startup into exactly two groups —
// weight-like (rank > 1) and bias/norm-like (rank == 1) — and group
// membership is fixed for the run. The training loop assigns each group's
// learning rate every step from the schedule; the optimizer itself never
// computes rates.
package optim

import (
	"github.com/horde-ml/horde/internal/nn"
)

// Optimizer is the base interface for optimization algorithms.
type Optimizer interface {
	// Step applies the update rule to every parameter that has a
	// gradient. Parameters without a gradient are skipped silently.
	Step()

	// ZeroGrad clears all parameter gradients. Call before each
	// backward pass to prevent accumulation across iterations.
	ZeroGrad()
}

// ParamGroup is an ordered collection of parameters sharing one learning
// rate. The trainer writes LR every step; nothing else mutates the group
// after construction.
type ParamGroup struct {
	Params []*nn.Parameter
	LR     float64
}

// Indices of the two canonical groups produced by GroupByRank.
const (
	WeightGroup = 0
	BiasGroup   = 1
)

// GroupByRank partitions parameters into the two canonical groups:
// weight-like parameters (rank > 1) first, bias/norm-like (rank == 1)
// second. Every parameter lands in exactly one group.
func GroupByRank(params []*nn.Parameter) []*ParamGroup {
	weights := &ParamGroup{}
	biases := &ParamGroup{}
	for _, p := range params {
		if p.WeightLike() {
			weights.Params = append(weights.Params, p)
		} else {
			biases.Params = append(biases.Params, p)
		}
	}
	return []*ParamGroup{weights, biases}
}
