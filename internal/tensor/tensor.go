// Package tensor provides the dense float64 tensor used throughout horde.
//
// Tensors are row-major and CPU-resident. The package deliberately keeps a
// small surface: storage, shape bookkeeping, and the handful of accessors
// the layers and the optimizer need. Heavier math (matmul, norms) lives
// with its callers, built on gonum.
package tensor

import "fmt"

// Shape describes tensor dimensions, outermost first.
type Shape []int

// Validate returns an error if any dimension is non-positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty shape")
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("dimension %d is %d, must be positive", i, dim)
		}
	}
	return nil
}

// NumElements returns the total number of elements.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// Dense is a row-major dense tensor of float64 values.
type Dense struct {
	shape Shape
	data  []float64
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Dense, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Dense{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}, nil
}

// Zeros creates a zero-filled tensor, panicking on an invalid shape.
//
// Use New when the shape comes from external input.
func Zeros(shape Shape) *Dense {
	t, err := New(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromSlice creates a tensor that copies the given data.
func FromSlice(data []float64, shape Shape) (*Dense, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Dense) Shape() Shape {
	return t.shape
}

// Rank returns the number of dimensions.
//
// Rank is what classifies a parameter as weight-like (rank > 1) versus
// bias/norm-like (rank == 1).
func (t *Dense) Rank() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Dense) NumElements() int {
	return len(t.data)
}

// Data returns the underlying slice. Mutations are visible to the tensor.
func (t *Dense) Data() []float64 {
	return t.data
}

// At returns the element at row i, column j of a 2D tensor.
func (t *Dense) At(i, j int) float64 {
	t.check2D()
	return t.data[i*t.shape[1]+j]
}

// Set assigns the element at row i, column j of a 2D tensor.
func (t *Dense) Set(i, j int, v float64) {
	t.check2D()
	t.data[i*t.shape[1]+j] = v
}

// Row returns row i of a 2D tensor as a slice sharing the tensor's memory.
func (t *Dense) Row(i int) []float64 {
	t.check2D()
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// Clone returns a deep copy of the tensor.
func (t *Dense) Clone() *Dense {
	c := Zeros(t.shape)
	copy(c.data, t.data)
	return c
}

// Zero resets every element to 0.
func (t *Dense) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Fill assigns v to every element.
func (t *Dense) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

func (t *Dense) check2D() {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: expected 2D tensor, got shape %v", t.shape))
	}
}

// Argmax returns the index of the largest value in xs.
func Argmax(xs []float64) int {
	maxIdx := 0
	maxVal := xs[0]
	for i := 1; i < len(xs); i++ {
		if xs[i] > maxVal {
			maxVal = xs[i]
			maxIdx = i
		}
	}
	return maxIdx
}
