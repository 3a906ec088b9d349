package nn

import (
	"github.com/pkg/errors"
)

// RebindPolicy reinstantiates p over W.
func RebindPolicy[W, V Float](p Policy[V]) (Policy[W], error) {
	return NewPolicy[W](p.Descriptor())
}

// RebindNeuron returns a copy of n over W with converted weights, bias and
// current input values.
func RebindNeuron[W, V Float](n *Neuron[V]) (*Neuron[W], error) {
	p, err := RebindPolicy[W](n.policy)
	if err != nil {
		return nil, err
	}
	out, err := NewNeuron(p, len(n.inputs))
	if err != nil {
		return nil, err
	}
	for i, in := range n.inputs {
		out.inputs[i] = Input[W]{Weight: W(in.Weight), Value: W(in.Value)}
	}
	out.bias = W(n.bias)
	return out, nil
}

// RebindLayer reinstantiates l over W keeping width, arity and weights.
// Units of a complex layer that were stored in a third numeric type keep it.
func RebindLayer[W, V Float](l Layer[V]) (Layer[W], error) {
	var out Layer[W]
	switch src := l.(type) {
	case *DenseLayer[V]:
		p, err := RebindPolicy[W](src.policy)
		if err != nil {
			return nil, err
		}
		d, err := NewDenseLayer(src.Width(), src.arity, p)
		if err != nil {
			return nil, err
		}
		out = d
	default:
		desc := l.Describe()
		units := make([]Unit[W], len(desc.Units))
		for i, ud := range desc.Units {
			if ud.Numeric == NumericTypeOf[V]() {
				ud.Numeric = NumericTypeOf[W]()
			}
			u, err := NewUnit[W](ud)
			if err != nil {
				return nil, errors.WithMessagef(err, "unit %d", i)
			}
			units[i] = u
		}
		c, err := NewComplexLayer(units...)
		if err != nil {
			return nil, err
		}
		out = c
	}
	if err := out.SetMemento(ConvertLayerMemento[W](l.Memento())); err != nil {
		return nil, err
	}
	return out, nil
}

// RebindNetwork reinstantiates n over W. The executor, observer and ID are
// carried over.
func RebindNetwork[W, V Float](n *Network[V]) (*Network[W], error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out, err := NewNetwork[W](n.inputWidth, WithExecutor(n.exec), WithObserver(n.observer), WithID(n.ID))
	if err != nil {
		return nil, err
	}
	for i, l := range n.layers {
		rl, err := RebindLayer[W](l)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		out.layers = append(out.layers, rl)
	}
	return out, nil
}

// ConvertLayerMemento rebinds one layer record.
func ConvertLayerMemento[To, From Float](m LayerMemento[From]) LayerMemento[To] {
	out := LayerMemento[To]{neurons: make([]NeuronMemento[To], len(m.neurons))}
	for i, n := range m.neurons {
		out.neurons[i] = ConvertNeuronMemento[To](n)
	}
	return out
}
