package nn

import (
	"gonum.org/v1/gonum/mat"
)

// NeuronMemento is the persistent state of one neuron. Weights are ordered
// exactly like the neuron's inputs.
type NeuronMemento[V Float] struct {
	weights []V
	bias    V
}

// NewNeuronMemento copies weights.
func NewNeuronMemento[V Float](weights []V, bias V) NeuronMemento[V] {
	w := make([]V, len(weights))
	copy(w, weights)
	return NeuronMemento[V]{weights: w, bias: bias}
}

// Weights returns a copy of the weights.
func (m NeuronMemento[V]) Weights() []V {
	w := make([]V, len(m.weights))
	copy(w, m.weights)
	return w
}

func (m NeuronMemento[V]) Bias() V  { return m.bias }
func (m NeuronMemento[V]) Len() int { return len(m.weights) }

// LayerMemento holds one record per neuron in neuron order.
type LayerMemento[V Float] struct {
	neurons []NeuronMemento[V]
}

// NewLayerMemento copies neurons.
func NewLayerMemento[V Float](neurons ...NeuronMemento[V]) LayerMemento[V] {
	n := make([]NeuronMemento[V], len(neurons))
	for i, nm := range neurons {
		n[i] = NewNeuronMemento(nm.weights, nm.bias)
	}
	return LayerMemento[V]{neurons: n}
}

func (m LayerMemento[V]) Len() int { return len(m.neurons) }

// Neuron returns record i.
func (m LayerMemento[V]) Neuron(i int) (NeuronMemento[V], error) {
	if i < 0 || i >= len(m.neurons) {
		return NeuronMemento[V]{}, outOfRange("neuron", i, len(m.neurons))
	}
	return m.neurons[i], nil
}

// Matrix returns the weights as a width×arity matrix with the biases as a
// separate vector.
func (m LayerMemento[V]) Matrix() (*mat.Dense, *mat.VecDense) {
	if len(m.neurons) == 0 {
		return nil, nil
	}
	rows, cols := len(m.neurons), len(m.neurons[0].weights)
	var w *mat.Dense
	if cols > 0 {
		data := make([]float64, 0, rows*cols)
		for _, n := range m.neurons {
			for _, v := range n.weights {
				data = append(data, float64(v))
			}
		}
		w = mat.NewDense(rows, cols, data)
	}
	b := make([]float64, rows)
	for i, n := range m.neurons {
		b[i] = float64(n.bias)
	}
	return w, mat.NewVecDense(rows, b)
}

// Memento is an immutable snapshot of every weight and bias of a network.
// It carries no reference to live neurons.
type Memento[V Float] struct {
	layers []LayerMemento[V]
}

// NewMemento copies layers.
func NewMemento[V Float](layers ...LayerMemento[V]) Memento[V] {
	l := make([]LayerMemento[V], len(layers))
	for i, lm := range layers {
		l[i] = NewLayerMemento(lm.neurons...)
	}
	return Memento[V]{layers: l}
}

func (m Memento[V]) Len() int { return len(m.layers) }

// Layer returns the record of layer i.
func (m Memento[V]) Layer(i int) (LayerMemento[V], error) {
	if i < 0 || i >= len(m.layers) {
		return LayerMemento[V]{}, outOfRange("layer", i, len(m.layers))
	}
	return m.layers[i], nil
}

// Shape returns the weight count of every neuron, layer by layer.
func (m Memento[V]) Shape() [][]int {
	shape := make([][]int, len(m.layers))
	for i, l := range m.layers {
		shape[i] = make([]int, len(l.neurons))
		for j, n := range l.neurons {
			shape[i][j] = len(n.weights)
		}
	}
	return shape
}

// Equal reports whether both mementos hold identical values.
func (m Memento[V]) Equal(o Memento[V]) bool {
	if len(m.layers) != len(o.layers) {
		return false
	}
	for i := range m.layers {
		a, b := m.layers[i].neurons, o.layers[i].neurons
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j].bias != b[j].bias || len(a[j].weights) != len(b[j].weights) {
				return false
			}
			for k := range a[j].weights {
				if a[j].weights[k] != b[j].weights[k] {
					return false
				}
			}
		}
	}
	return true
}

// Snapshotter is anything a memento can be captured from.
type Snapshotter[V Float] interface {
	Memento() Memento[V]
}

// Restorer is anything a memento can be applied to.
type Restorer[V Float] interface {
	SetMemento(m Memento[V]) error
}

// Capture snapshots s.
func Capture[V Float](s Snapshotter[V]) Memento[V] {
	return s.Memento()
}

// Apply restores m into r. r validates the shape before changing any state.
func Apply[V Float](m Memento[V], r Restorer[V]) error {
	return r.SetMemento(m)
}

// ConvertNeuronMemento rebinds a neuron record to another numeric type.
func ConvertNeuronMemento[To, From Float](m NeuronMemento[From]) NeuronMemento[To] {
	return NeuronMemento[To]{weights: ConvertSlice[To](m.weights), bias: To(m.bias)}
}

// ConvertMemento rebinds a whole memento to another numeric type.
func ConvertMemento[To, From Float](m Memento[From]) Memento[To] {
	out := Memento[To]{layers: make([]LayerMemento[To], len(m.layers))}
	for i, l := range m.layers {
		out.layers[i].neurons = make([]NeuronMemento[To], len(l.neurons))
		for j, n := range l.neurons {
			out.layers[i].neurons[j] = ConvertNeuronMemento[To](n)
		}
	}
	return out
}
