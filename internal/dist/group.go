// Package dist provides the coordination boundary between training
// workers: a fixed-size in-process group with the collectives the loop
// needs (gradient all-reduce, initial-weight broadcast, barrier).
//
// Workers run SPMD: every worker executes the same step sequence and
// reaches every collective in the same order, or the run deadlocks. That
// contract is the caller's; this package supplies the synchronization and
// a deterministic combine. Contributions are reduced in rank order, so two
// runs with the same inputs produce bit-identical results regardless of
// goroutine scheduling.
//
// There are no retries and no timeouts: a collective either completes on
// all workers or the whole group is aborted.
package dist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/horde-ml/horde/internal/nn"
)

// ErrAborted is returned from collectives after the group has been aborted
// by a failing worker.
var ErrAborted = errors.New("dist: process group aborted")

type collectiveOp int

const (
	opAllReduce collectiveOp = iota
	opBroadcast
)

// collective is the shared state of one in-flight collective call.
// slots[rank][param] holds a copy of that rank's contribution; a nil entry
// means the rank had no gradient for that parameter.
type collective struct {
	op    collectiveOp
	count int
	slots [][][]float64
	err   error
}

// Group is a fixed set of workers. Create one with NewGroup and hand each
// returned Worker to exactly one goroutine.
type Group struct {
	size int
	bar  *barrier

	mu   sync.Mutex
	coll *collective
}

// NewGroup creates a process group of n workers and returns one Worker
// context per rank. n must be at least 1.
func NewGroup(n int) ([]*Worker, error) {
	if n < 1 {
		return nil, fmt.Errorf("dist: group size must be at least 1, got %d", n)
	}
	g := &Group{
		size: n,
		bar:  newBarrier(n),
	}
	workers := make([]*Worker, n)
	for rank := 0; rank < n; rank++ {
		workers[rank] = &Worker{group: g, rank: rank}
	}
	return workers, nil
}

// Worker is one rank's handle on the group. It is not safe for concurrent
// use; each worker belongs to a single goroutine.
type Worker struct {
	group *Group
	rank  int
}

// Rank returns this worker's identity within the group.
func (w *Worker) Rank() int {
	return w.rank
}

// Size returns the number of workers in the group.
func (w *Worker) Size() int {
	return w.group.size
}

// IsCoordinator reports whether this worker is the designated coordinator
// (rank 0). Only the coordinator evaluates and records metrics.
func (w *Worker) IsCoordinator() bool {
	return w.rank == 0
}

// AllReduceGradients replaces every parameter's gradient with the
// element-wise mean of that gradient across all workers.
//
// Blocking collective: every worker must call it with the same parameter
// list shape. Parameters whose gradient is nil on every rank are skipped;
// a gradient present on some ranks but not others is a lock-step violation
// and fails the collective.
//
// After it returns on all workers, the gradient tensors are identical
// across the group.
func (w *Worker) AllReduceGradients(params []*nn.Parameter) error {
	g := w.group

	contrib := make([][]float64, len(params))
	for i, p := range params {
		if grad := p.Grad(); grad != nil {
			cp := make([]float64, len(grad.Data()))
			copy(cp, grad.Data())
			contrib[i] = cp
		}
	}

	c, err := g.join(opAllReduce, len(params), w.rank, contrib)
	if err != nil {
		return err
	}

	// All contributions are in and immutable; reduce in rank order.
	combineErr := c.err
	if combineErr == nil {
		for i, p := range params {
			grad := p.Grad()
			for rank := 0; rank < g.size; rank++ {
				slot := c.slots[rank][i]
				if (slot == nil) != (grad == nil) {
					combineErr = fmt.Errorf("dist: rank %d gradient presence for parameter %d diverges from rank %d", w.rank, i, rank)
					break
				}
				if slot != nil && len(slot) != len(grad.Data()) {
					combineErr = fmt.Errorf("dist: gradient size mismatch for parameter %d: rank %d has %d elements, rank %d has %d",
						i, w.rank, len(grad.Data()), rank, len(slot))
					break
				}
			}
			if combineErr != nil || grad == nil {
				continue
			}
			out := grad.Data()
			inv := 1.0 / float64(g.size)
			for j := range out {
				sum := 0.0
				for rank := 0; rank < g.size; rank++ {
					sum += c.slots[rank][i][j]
				}
				out[j] = sum * inv
			}
		}
	}

	if err := g.leave(); err != nil {
		return err
	}
	return combineErr
}

// BroadcastParameters copies rank 0's parameter values to every other
// rank, so all replicas start from identical weights. Blocking collective.
func (w *Worker) BroadcastParameters(params []*nn.Parameter) error {
	g := w.group

	var contrib [][]float64
	if w.rank == 0 {
		contrib = make([][]float64, len(params))
		for i, p := range params {
			data := p.Value().Data()
			cp := make([]float64, len(data))
			copy(cp, data)
			contrib[i] = cp
		}
	}

	c, err := g.join(opBroadcast, len(params), w.rank, contrib)
	if err != nil {
		return err
	}

	combineErr := c.err
	if combineErr == nil && w.rank != 0 {
		for i, p := range params {
			src := c.slots[0][i]
			dst := p.Value().Data()
			if len(src) != len(dst) {
				combineErr = fmt.Errorf("dist: parameter %d size mismatch in broadcast: rank 0 has %d elements, rank %d has %d",
					i, len(src), w.rank, len(dst))
				break
			}
			copy(dst, src)
		}
	}

	if err := g.leave(); err != nil {
		return err
	}
	return combineErr
}

// Barrier blocks until every worker in the group has reached it.
func (w *Worker) Barrier() error {
	return w.group.bar.wait(nil)
}

// Abort tears the group down from a failing worker: every blocked or
// future collective on any rank returns ErrAborted instead of hanging.
func (w *Worker) Abort() {
	w.group.bar.abort()
}

// Teardown releases the group. After teardown no collective may be called.
func (w *Worker) Teardown() {
	w.group.bar.abort()
}

// join publishes one worker's contribution to the current collective and
// waits for the rest of the group. The returned collective state is
// immutable until the matching leave.
func (g *Group) join(op collectiveOp, count, rank int, contrib [][]float64) (*collective, error) {
	g.mu.Lock()
	if g.coll == nil {
		g.coll = &collective{
			op:    op,
			count: count,
			slots: make([][][]float64, g.size),
		}
	}
	c := g.coll
	if c.err == nil && (c.op != op || c.count != count) {
		c.err = fmt.Errorf("dist: rank %d joined collective (op=%d, params=%d) while group is in (op=%d, params=%d)",
			rank, op, count, c.op, c.count)
	}
	c.slots[rank] = contrib
	g.mu.Unlock()

	if err := g.bar.wait(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// leave waits out the read phase; the last worker clears the collective
// state before releasing the group into the next call.
func (g *Group) leave() error {
	return g.bar.wait(func() {
		g.coll = nil
	})
}

// barrier is a reusable generation-counting barrier with abort support.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     int
	aborted bool
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until all n workers have arrived. The closing worker runs
// onRelease (if non-nil) before releasing the others, which gives
// collectives an exactly-once reset point.
func (b *barrier) wait(onRelease func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aborted {
		return ErrAborted
	}

	gen := b.gen
	b.arrived++
	if b.arrived == b.n {
		if onRelease != nil {
			onRelease()
		}
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}

	for gen == b.gen && !b.aborted {
		b.cond.Wait()
	}
	if b.aborted {
		return ErrAborted
	}
	return nil
}

func (b *barrier) abort() {
	b.mu.Lock()
	b.aborted = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
