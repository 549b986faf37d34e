package tensor_test

import (
	"testing"

	"github.com/horde-ml/horde/internal/tensor"
)

// TestShape tests element counting, equality, and validation.
func TestShape(t *testing.T) {
	s := tensor.Shape{2, 3, 4}
	if s.NumElements() != 24 {
		t.Errorf("NumElements: got %d, want 24", s.NumElements())
	}
	if s.Rank() != 3 {
		t.Errorf("Rank: got %d, want 3", s.Rank())
	}
	if !s.Equal(tensor.Shape{2, 3, 4}) {
		t.Error("Equal returned false for identical shapes")
	}
	if s.Equal(tensor.Shape{2, 3}) {
		t.Error("Equal returned true for different shapes")
	}
	if err := (tensor.Shape{2, 0}).Validate(); err == nil {
		t.Error("Validate accepted a zero dimension")
	}
	if err := (tensor.Shape{}).Validate(); err == nil {
		t.Error("Validate accepted an empty shape")
	}
}

// TestDense_Accessors tests At/Set/Row on a 2D tensor.
func TestDense_Accessors(t *testing.T) {
	d, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	if err != nil {
		t.Fatal(err)
	}

	if got := d.At(1, 2); got != 6 {
		t.Errorf("At(1,2): got %g, want 6", got)
	}

	d.Set(0, 1, 42)
	if got := d.At(0, 1); got != 42 {
		t.Errorf("Set/At: got %g, want 42", got)
	}

	row := d.Row(1)
	if len(row) != 3 || row[0] != 4 {
		t.Errorf("Row(1): got %v, want [4 5 6]", row)
	}

	// Row shares memory with the tensor.
	row[0] = -1
	if d.At(1, 0) != -1 {
		t.Error("Row did not alias the tensor's memory")
	}
}

// TestDense_Clone tests that clones do not alias.
func TestDense_Clone(t *testing.T) {
	d, _ := tensor.FromSlice([]float64{1, 2}, tensor.Shape{2})
	c := d.Clone()
	c.Data()[0] = 99
	if d.Data()[0] != 1 {
		t.Error("Clone aliased the original's memory")
	}
}

// TestFromSlice_LengthMismatch tests the element-count check.
func TestFromSlice_LengthMismatch(t *testing.T) {
	if _, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{2, 2}); err == nil {
		t.Error("FromSlice accepted mismatched lengths")
	}
}

// TestArgmax tests index-of-maximum.
func TestArgmax(t *testing.T) {
	if got := tensor.Argmax([]float64{0.1, 0.7, 0.2}); got != 1 {
		t.Errorf("Argmax: got %d, want 1", got)
	}
	if got := tensor.Argmax([]float64{3}); got != 0 {
		t.Errorf("Argmax single element: got %d, want 0", got)
	}
}
