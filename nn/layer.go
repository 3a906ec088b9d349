package nn

import (
	"github.com/pkg/errors"
)

// Layer is a fixed-width ordered collection of units evaluated together.
// Every unit of a layer consumes the same input vector.
type Layer[V Float] interface {
	Width() int
	Arity() int

	// Feed writes values into the inputs of every unit, positionally.
	Feed(values []V) error

	// CalculateOutputs evaluates every unit. Layers holding a layer-wide
	// policy run both phases across the whole layer.
	CalculateOutputs(ex Executor) error

	Output(i int) (V, error)
	Outputs() ([]V, error)
	Unit(i int) (Unit[V], error)

	Memento() LayerMemento[V]
	SetMemento(m LayerMemento[V]) error

	Describe() LayerDescriptor
}

// Layer kinds reported by Describe.
const (
	LayerDense   = "dense"
	LayerComplex = "complex"
)

// LayerDescriptor describes a layer's structure.
type LayerDescriptor struct {
	Kind  string           `json:"kind"`
	Width int              `json:"width"`
	Arity int              `json:"arity"`
	Units []UnitDescriptor `json:"units"`
}

// DenseLayer is a homogeneous layer: one policy and one numeric type for all
// of its neurons.
type DenseLayer[V Float] struct {
	policy  Policy[V]
	arity   int
	neurons []*Neuron[V]
	sums    []V
}

// NewDenseLayer returns width neurons of the given arity sharing policy.
func NewDenseLayer[V Float](width, arity int, policy Policy[V]) (*DenseLayer[V], error) {
	if width <= 0 {
		return nil, configErrorf("layer width %d", width)
	}
	l := &DenseLayer[V]{
		policy:  policy,
		arity:   arity,
		neurons: make([]*Neuron[V], width),
	}
	for i := range l.neurons {
		n, err := NewNeuron(policy, arity)
		if err != nil {
			return nil, err
		}
		l.neurons[i] = n
	}
	return l, nil
}

func (l *DenseLayer[V]) Width() int        { return len(l.neurons) }
func (l *DenseLayer[V]) Arity() int        { return l.arity }
func (l *DenseLayer[V]) Policy() Policy[V] { return l.policy }

// Neuron returns the concrete neuron i.
func (l *DenseLayer[V]) Neuron(i int) (*Neuron[V], error) {
	if i < 0 || i >= len(l.neurons) {
		return nil, outOfRange("neuron", i, len(l.neurons))
	}
	return l.neurons[i], nil
}

func (l *DenseLayer[V]) Unit(i int) (Unit[V], error) {
	n, err := l.Neuron(i)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (l *DenseLayer[V]) Feed(values []V) error {
	if len(values) != l.arity {
		return shapeErrorf("layer of arity %d fed %d values", l.arity, len(values))
	}
	for _, n := range l.neurons {
		for j, v := range values {
			n.inputs[j].Value = v
		}
	}
	return nil
}

func (l *DenseLayer[V]) CalculateOutputs(ex Executor) error {
	if ex == nil {
		ex = Reference
	}
	if !l.policy.LayerWide() {
		return ex.Run(len(l.neurons), func(i int) error {
			_, err := l.neurons[i].ComputeOutput(nil)
			return errors.WithMessagef(err, "neuron %d", i)
		})
	}

	if len(l.sums) != len(l.neurons) {
		l.sums = make([]V, len(l.neurons))
	}
	sums := l.sums
	if err := ex.Run(len(l.neurons), func(i int) error {
		sums[i] = l.neurons[i].ComputeSum()
		return nil
	}); err != nil {
		return err
	}
	return ex.Run(len(l.neurons), func(i int) error {
		_, err := l.neurons[i].Activate(sums)
		return errors.WithMessagef(err, "neuron %d", i)
	})
}

func (l *DenseLayer[V]) Output(i int) (V, error) {
	if i < 0 || i >= len(l.neurons) {
		return 0, outOfRange("neuron", i, len(l.neurons))
	}
	return l.neurons[i].Output()
}

func (l *DenseLayer[V]) Outputs() ([]V, error) {
	out := make([]V, len(l.neurons))
	for i, n := range l.neurons {
		v, err := n.Output()
		if err != nil {
			return nil, errors.WithMessagef(err, "neuron %d", i)
		}
		out[i] = v
	}
	return out, nil
}

func (l *DenseLayer[V]) Memento() LayerMemento[V] {
	m := LayerMemento[V]{neurons: make([]NeuronMemento[V], len(l.neurons))}
	for i, n := range l.neurons {
		m.neurons[i] = n.Snapshot()
	}
	return m
}

func (l *DenseLayer[V]) SetMemento(m LayerMemento[V]) error {
	if len(m.neurons) != len(l.neurons) {
		return shapeErrorf("layer has %d neurons, memento has %d", len(l.neurons), len(m.neurons))
	}
	for i, n := range l.neurons {
		if len(m.neurons[i].weights) != n.Arity() {
			return shapeErrorf("neuron %d has %d inputs, memento has %d weights", i, n.Arity(), len(m.neurons[i].weights))
		}
	}
	for i, n := range l.neurons {
		if err := n.Restore(m.neurons[i]); err != nil {
			return errors.WithMessagef(err, "neuron %d", i)
		}
	}
	return nil
}

func (l *DenseLayer[V]) Describe() LayerDescriptor {
	d := LayerDescriptor{Kind: LayerDense, Width: len(l.neurons), Arity: l.arity}
	d.Units = make([]UnitDescriptor, len(l.neurons))
	for i, n := range l.neurons {
		d.Units[i] = n.Describe()
	}
	return d
}
