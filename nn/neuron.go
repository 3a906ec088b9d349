package nn

import (
	"github.com/pkg/errors"
)

// Input is one incoming connection: its learned weight and the value currently
// flowing through it. Value is overwritten on every forward pass.
type Input[V Float] struct {
	Weight V
	Value  V
}

// Neuron aggregates a fixed number of weighted inputs through one policy.
type Neuron[V Float] struct {
	inputs []Input[V]
	bias   V
	policy Policy[V]

	rawSum   V
	output   V
	summed   bool
	computed bool
}

// NewNeuron returns a neuron with arity zero-weight inputs.
func NewNeuron[V Float](policy Policy[V], arity int) (*Neuron[V], error) {
	if policy == nil {
		return nil, configErrorf("neuron needs a policy")
	}
	if arity < 0 {
		return nil, configErrorf("negative arity %d", arity)
	}
	return &Neuron[V]{
		inputs: make([]Input[V], arity),
		policy: policy,
	}, nil
}

// Arity is the fixed number of inputs.
func (n *Neuron[V]) Arity() int { return len(n.inputs) }

// Policy returns the activation policy.
func (n *Neuron[V]) Policy() Policy[V] { return n.policy }

// Bias returns the current bias.
func (n *Neuron[V]) Bias() V { return n.bias }

// Inputs returns a copy of the input connections.
func (n *Neuron[V]) Inputs() []Input[V] {
	out := make([]Input[V], len(n.inputs))
	copy(out, n.inputs)
	return out
}

// SetInput replaces input i.
func (n *Neuron[V]) SetInput(i int, in Input[V]) error {
	if i < 0 || i >= len(n.inputs) {
		return outOfRange("input", i, len(n.inputs))
	}
	n.inputs[i] = in
	n.invalidate()
	return nil
}

// SetWeight changes the weight of input i.
func (n *Neuron[V]) SetWeight(i int, w V) error {
	if i < 0 || i >= len(n.inputs) {
		return outOfRange("input", i, len(n.inputs))
	}
	n.inputs[i].Weight = w
	n.invalidate()
	return nil
}

// SetValue changes the value flowing through input i.
func (n *Neuron[V]) SetValue(i int, v V) error {
	if i < 0 || i >= len(n.inputs) {
		return outOfRange("input", i, len(n.inputs))
	}
	n.inputs[i].Value = v
	return nil
}

func (n *Neuron[V]) SetBias(b V) {
	n.bias = b
	n.invalidate()
}

// ComputeSum is phase one: reduce the inputs and cache the raw sum.
func (n *Neuron[V]) ComputeSum() V {
	n.rawSum = n.policy.Sum(n.inputs, n.bias)
	n.summed = true
	return n.rawSum
}

// RawSum returns the sum cached by the last ComputeSum.
func (n *Neuron[V]) RawSum() (V, error) {
	if !n.summed {
		return 0, errors.Wrap(ErrNotComputed, "raw sum")
	}
	return n.rawSum, nil
}

// Activate is phase two: apply the policy to the cached raw sum.
func (n *Neuron[V]) Activate(peers []V) (V, error) {
	if !n.summed {
		return 0, errors.Wrap(ErrNotComputed, "activate before sum")
	}
	out := n.policy.Calculate(n.rawSum, peers)
	if Undefined(out) {
		n.computed = false
		return out, errors.Wrapf(ErrUndefinedNumeric, "%s of raw sum %v", n.policy.Descriptor(), n.rawSum)
	}
	n.output = out
	n.computed = true
	return out, nil
}

// ComputeOutput runs both phases. peers is only needed by layer-wide policies.
func (n *Neuron[V]) ComputeOutput(peers []V) (V, error) {
	n.ComputeSum()
	return n.Activate(peers)
}

// Output returns the cached output of the last computation.
func (n *Neuron[V]) Output() (V, error) {
	if !n.computed {
		return 0, ErrNotComputed
	}
	return n.output, nil
}

// Delta returns the policy's error signal for the cached output.
func (n *Neuron[V]) Delta(expected V) (V, error) {
	out, err := n.Output()
	if err != nil {
		return 0, err
	}
	return n.policy.Delta(out, expected), nil
}

// Derivative returns the policy derivative at the cached output.
func (n *Neuron[V]) Derivative() (V, error) {
	out, err := n.Output()
	if err != nil {
		return 0, err
	}
	return n.policy.Derivative(out)
}

// LayerWide reports whether the policy needs the peer raw sums.
func (n *Neuron[V]) LayerWide() bool { return n.policy.LayerWide() }

// Snapshot extracts the persistent state. Input values are excluded.
func (n *Neuron[V]) Snapshot() NeuronMemento[V] {
	weights := make([]V, len(n.inputs))
	for i, in := range n.inputs {
		weights[i] = in.Weight
	}
	return NeuronMemento[V]{weights: weights, bias: n.bias}
}

// Restore loads weights and bias from m.
func (n *Neuron[V]) Restore(m NeuronMemento[V]) error {
	if len(m.weights) != len(n.inputs) {
		return shapeErrorf("neuron has %d inputs, memento has %d weights", len(n.inputs), len(m.weights))
	}
	for i, w := range m.weights {
		n.inputs[i].Weight = w
	}
	n.bias = m.bias
	n.invalidate()
	return nil
}

// Describe reports the policy, arity and numeric type.
func (n *Neuron[V]) Describe() UnitDescriptor {
	return UnitDescriptor{
		Policy:  n.policy.Descriptor(),
		Arity:   len(n.inputs),
		Numeric: NumericTypeOf[V](),
	}
}

func (n *Neuron[V]) invalidate() {
	n.summed = false
	n.computed = false
}
