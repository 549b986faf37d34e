package dist_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horde-ml/horde/internal/dist"
	"github.com/horde-ml/horde/internal/nn"
	"github.com/horde-ml/horde/internal/tensor"
)

// makeParam builds a parameter with the given values and gradient.
func makeParam(t *testing.T, values, grad []float64) *nn.Parameter {
	t.Helper()
	v, err := tensor.FromSlice(values, tensor.Shape{len(values)})
	require.NoError(t, err)
	p := nn.NewParameter("p", v)
	if grad != nil {
		g, err := tensor.FromSlice(grad, tensor.Shape{len(grad)})
		require.NoError(t, err)
		p.SetGrad(g)
	}
	return p
}

// TestAllReduce_MeansGradients runs the collective across several group
// sizes and checks every rank ends with the rank-ordered mean.
func TestAllReduce_MeansGradients(t *testing.T) {
	for _, size := range []int{1, 2, 4} {
		workers, err := dist.NewGroup(size)
		require.NoError(t, err)

		// Rank r contributes gradient [r+1, 2*(r+1)].
		params := make([][]*nn.Parameter, size)
		for r := 0; r < size; r++ {
			scale := float64(r + 1)
			params[r] = []*nn.Parameter{
				makeParam(t, []float64{0, 0}, []float64{scale, 2 * scale}),
			}
		}

		var wg sync.WaitGroup
		errs := make([]error, size)
		for r := 0; r < size; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				errs[r] = workers[r].AllReduceGradients(params[r])
			}(r)
		}
		wg.Wait()

		// mean of 1..size and of 2..2*size.
		sum := 0.0
		for r := 1; r <= size; r++ {
			sum += float64(r)
		}
		wantFirst := sum / float64(size)

		for r := 0; r < size; r++ {
			require.NoError(t, errs[r], "size=%d rank=%d", size, r)
			grad := params[r][0].Grad().Data()
			assert.InDelta(t, wantFirst, grad[0], 1e-12, "size=%d rank=%d", size, r)
			assert.InDelta(t, 2*wantFirst, grad[1], 1e-12, "size=%d rank=%d", size, r)
		}
	}
}

// TestAllReduce_GradientsIdenticalAcrossRanks is the synchronization
// invariant: after the collective, every rank holds the same gradient.
func TestAllReduce_GradientsIdenticalAcrossRanks(t *testing.T) {
	const size = 3
	workers, err := dist.NewGroup(size)
	require.NoError(t, err)

	params := make([][]*nn.Parameter, size)
	for r := 0; r < size; r++ {
		params[r] = []*nn.Parameter{
			makeParam(t, []float64{0}, []float64{float64(r) * 0.37}),
			makeParam(t, []float64{0, 0, 0}, []float64{1, float64(r), -float64(r)}),
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, size)
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = workers[r].AllReduceGradients(params[r])
		}(r)
	}
	wg.Wait()
	for r := 0; r < size; r++ {
		require.NoError(t, errs[r])
	}

	for pi := 0; pi < 2; pi++ {
		reference := params[0][pi].Grad().Data()
		for r := 1; r < size; r++ {
			assert.Equal(t, reference, params[r][pi].Grad().Data(), "param %d rank %d", pi, r)
		}
	}
}

// TestAllReduce_SkipsNilGradients tests that a parameter with no gradient
// on any rank is skipped silently.
func TestAllReduce_SkipsNilGradients(t *testing.T) {
	const size = 2
	workers, err := dist.NewGroup(size)
	require.NoError(t, err)

	params := make([][]*nn.Parameter, size)
	for r := 0; r < size; r++ {
		params[r] = []*nn.Parameter{
			makeParam(t, []float64{1}, nil),
			makeParam(t, []float64{0}, []float64{float64(r + 1)}),
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, size)
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = workers[r].AllReduceGradients(params[r])
		}(r)
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		require.NoError(t, errs[r])
		assert.Nil(t, params[r][0].Grad())
		assert.InDelta(t, 1.5, params[r][1].Grad().Data()[0], 1e-12)
	}
}

// TestAllReduce_ParameterCountMismatchFails tests that diverging workers
// fail the collective instead of producing garbage.
func TestAllReduce_ParameterCountMismatchFails(t *testing.T) {
	workers, err := dist.NewGroup(2)
	require.NoError(t, err)

	short := []*nn.Parameter{makeParam(t, []float64{0}, []float64{1})}
	long := []*nn.Parameter{
		makeParam(t, []float64{0}, []float64{1}),
		makeParam(t, []float64{0}, []float64{2}),
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = workers[0].AllReduceGradients(short)
	}()
	go func() {
		defer wg.Done()
		errs[1] = workers[1].AllReduceGradients(long)
	}()
	wg.Wait()

	assert.Error(t, errs[0])
	assert.Error(t, errs[1])
}

// TestBroadcastParameters tests that rank 0's weights reach all ranks.
func TestBroadcastParameters(t *testing.T) {
	const size = 3
	workers, err := dist.NewGroup(size)
	require.NoError(t, err)

	params := make([][]*nn.Parameter, size)
	for r := 0; r < size; r++ {
		params[r] = []*nn.Parameter{
			makeParam(t, []float64{float64(r), float64(r)}, nil),
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, size)
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = workers[r].BroadcastParameters(params[r])
		}(r)
	}
	wg.Wait()
	for r := 0; r < size; r++ {
		require.NoError(t, errs[r])
	}

	for r := 0; r < size; r++ {
		assert.Equal(t, []float64{0, 0}, params[r][0].Value().Data(), "rank %d", r)
	}
}

// TestAllReduce_ReusableAcrossSteps runs two consecutive collectives on
// the same group, as the training loop does every step.
func TestAllReduce_ReusableAcrossSteps(t *testing.T) {
	const size = 2
	workers, err := dist.NewGroup(size)
	require.NoError(t, err)

	for step := 0; step < 2; step++ {
		params := make([][]*nn.Parameter, size)
		for r := 0; r < size; r++ {
			params[r] = []*nn.Parameter{
				makeParam(t, []float64{0}, []float64{float64(step + r)}),
			}
		}

		var wg sync.WaitGroup
		errs := make([]error, size)
		for r := 0; r < size; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				errs[r] = workers[r].AllReduceGradients(params[r])
			}(r)
		}
		wg.Wait()
		for r := 0; r < size; r++ {
			require.NoError(t, errs[r])
		}

		want := (float64(step) + float64(step+1)) / 2
		for r := 0; r < size; r++ {
			assert.InDelta(t, want, params[r][0].Grad().Data()[0], 1e-12)
		}
	}
}

// TestAbortReleasesBlockedWorkers tests that Abort unblocks a worker
// stuck in a collective its peer never joined.
func TestAbortReleasesBlockedWorkers(t *testing.T) {
	workers, err := dist.NewGroup(2)
	require.NoError(t, err)

	params := []*nn.Parameter{makeParam(t, []float64{0}, []float64{1})}

	done := make(chan error, 1)
	go func() {
		done <- workers[0].AllReduceGradients(params)
	}()

	workers[1].Abort()
	err = <-done
	require.ErrorIs(t, err, dist.ErrAborted)
}

// TestWorkerIdentity tests rank/size/coordinator accessors.
func TestWorkerIdentity(t *testing.T) {
	workers, err := dist.NewGroup(2)
	require.NoError(t, err)

	assert.Equal(t, 0, workers[0].Rank())
	assert.Equal(t, 1, workers[1].Rank())
	assert.Equal(t, 2, workers[0].Size())
	assert.True(t, workers[0].IsCoordinator())
	assert.False(t, workers[1].IsCoordinator())

	if _, err := dist.NewGroup(0); err == nil {
		t.Error("NewGroup accepted size 0")
	}
}
