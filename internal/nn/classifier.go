package nn

import (
	"math/rand"

	"github.com/horde-ml/horde/internal/tensor"
)

// Classifier is a small fully-connected network for image classification.
//
// Architecture:
//   - Input: inFeatures neurons (flattened image)
//   - Hidden: hidden neurons with ReLU activation
//   - Output: numClasses neurons (logits)
//
// The trainer treats the model as an opaque collaborator: anything with a
// forward pass, a matching backward pass, and a parameter list will do.
// This is the bundled default.
type Classifier struct {
	fc1 *Linear
	fc2 *Linear

	hidden *tensor.Dense // post-ReLU activations cached for backward
}

// NewClassifier creates a classifier with Xavier-initialized weights drawn
// from rng.
func NewClassifier(inFeatures, hidden, numClasses int, rng *rand.Rand) *Classifier {
	return &Classifier{
		fc1: NewLinear(inFeatures, hidden, rng),
		fc2: NewLinear(hidden, numClasses, rng),
	}
}

// Forward maps a batch of inputs [batch, in_features] to logits
// [batch, num_classes]. Returns raw logits; CrossEntropy applies the
// softmax internally.
func (m *Classifier) Forward(input *tensor.Dense) *tensor.Dense {
	x := m.fc1.Forward(input)

	// ReLU, in place on the fc1 output.
	data := x.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	m.hidden = x

	return m.fc2.Forward(x)
}

// Backward propagates the logits gradient through the network, setting the
// gradient on every parameter. Must follow a Forward call.
func (m *Classifier) Backward(dlogits *tensor.Dense) {
	dh := m.fc2.Backward(dlogits)

	// ReLU backward: zero where the activation was clamped.
	hiddenData := m.hidden.Data()
	dhData := dh.Data()
	for i := range dhData {
		if hiddenData[i] == 0 {
			dhData[i] = 0
		}
	}

	m.fc1.Backward(dh)
}

// Parameters returns all trainable parameters in a stable order.
func (m *Classifier) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 4)
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	return params
}
