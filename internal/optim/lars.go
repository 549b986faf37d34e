package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/horde-ml/horde/internal/nn"
)

// LARS implements Layer-wise Adaptive Rate Scaling with momentum.
//
// Update rule per parameter p with gradient g, in this order:
//
//	1. g += weight_decay * p            (unless excluded by the decay filter)
//	2. g *= eta * ||p|| / ||g||         (trust ratio; 1 on zero norms,
//	                                     skipped for excluded parameters)
//	3. mu = momentum * mu + g           (mu zero-initialized on first use)
//	4. p -= lr * mu
//
// The filters, when enabled, exclude bias/norm-like (rank-1) parameters
// from weight decay and from the trust-ratio adaptation. When a filter is
// disabled its step applies unconditionally.
//
// The order of the four operations is significant for reproducibility and
// matches the reference LARS formulation for large-batch training
// ("Large Batch Training of Convolutional Networks", You et al., 2017).
type LARS struct {
	groups []*ParamGroup
	cfg    LARSConfig

	// Momentum buffers keyed by (group index, parameter index within the
	// group). Both are stable for the run, so identity never depends on
	// pointer values.
	mu map[bufferKey][]float64
}

type bufferKey struct {
	group int
	param int
}

// LARSConfig holds configuration for the LARS optimizer.
type LARSConfig struct {
	WeightDecay          float64 // L2 penalty coefficient
	Momentum             float64 // momentum factor (default: 0.9)
	Eta                  float64 // trust ratio coefficient (default: 0.001)
	WeightDecayFilter    bool    // exclude rank-1 parameters from decay
	LARSAdaptationFilter bool    // exclude rank-1 parameters from the trust ratio
}

// NewLARS creates a LARS optimizer over the given parameter groups.
//
// Learning rates live on the groups and are expected to be reassigned by
// the caller every step from the schedule.
func NewLARS(groups []*ParamGroup, cfg LARSConfig) *LARS {
	if cfg.Momentum == 0 {
		cfg.Momentum = 0.9
	}
	if cfg.Eta == 0 {
		cfg.Eta = 0.001
	}
	return &LARS{
		groups: groups,
		cfg:    cfg,
		mu:     make(map[bufferKey][]float64),
	}
}

// Step applies one LARS update to every parameter that has a gradient.
// Parameters without a gradient are skipped; their momentum buffers stay
// untouched.
func (l *LARS) Step() {
	for gi, g := range l.groups {
		for pi, p := range g.Params {
			grad := p.Grad()
			if grad == nil {
				continue
			}
			l.update(bufferKey{gi, pi}, p, grad.Data(), g.LR)
		}
	}
}

// update applies the four-stage LARS rule to a single parameter.
func (l *LARS) update(key bufferKey, p *nn.Parameter, grad []float64, lr float64) {
	paramData := p.Value().Data()

	// Work on a scratch copy so the parameter's gradient tensor is left
	// exactly as the synchronization produced it.
	dp := make([]float64, len(grad))
	copy(dp, grad)

	if !l.cfg.WeightDecayFilter || p.WeightLike() {
		floats.AddScaled(dp, l.cfg.WeightDecay, paramData)
	}

	if !l.cfg.LARSAdaptationFilter || p.WeightLike() {
		paramNorm := floats.Norm(paramData, 2)
		updateNorm := floats.Norm(dp, 2)
		// Trust ratio is 1 whenever either norm is zero, so the update
		// never divides by zero.
		if paramNorm > 0 && updateNorm > 0 {
			floats.Scale(l.cfg.Eta*paramNorm/updateNorm, dp)
		}
	}

	mu, ok := l.mu[key]
	if !ok {
		mu = make([]float64, len(dp))
		l.mu[key] = mu
	}
	floats.Scale(l.cfg.Momentum, mu)
	floats.Add(mu, dp)

	floats.AddScaled(paramData, -lr, mu)
}

// ZeroGrad clears gradients for all parameters in all groups.
func (l *LARS) ZeroGrad() {
	for _, g := range l.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// Groups returns the optimizer's parameter groups.
func (l *LARS) Groups() []*ParamGroup {
	return l.groups
}

// SetGroupLR assigns the learning rate for group i.
func (l *LARS) SetGroupLR(i int, lr float64) {
	if i < 0 || i >= len(l.groups) {
		panic(fmt.Sprintf("LARS.SetGroupLR: group index %d out of range [0, %d)", i, len(l.groups)))
	}
	l.groups[i].LR = lr
}
