package nn

import (
	"github.com/pkg/errors"
)

// ComplexLayer is a heterogeneous layer. Element i may use a different policy
// or numeric type from element j, so every call goes through the Unit
// interface of that element.
type ComplexLayer[V Float] struct {
	arity     int
	units     []Unit[V]
	layerWide bool
	sums      []V
}

// NewComplexLayer takes ownership of units. All of them must share one arity.
func NewComplexLayer[V Float](units ...Unit[V]) (*ComplexLayer[V], error) {
	if len(units) == 0 {
		return nil, configErrorf("complex layer needs at least one unit")
	}
	for i, u := range units {
		if u == nil {
			return nil, configErrorf("complex layer unit %d is nil", i)
		}
	}
	l := &ComplexLayer[V]{
		arity: units[0].Arity(),
		units: make([]Unit[V], len(units)),
	}
	for i, u := range units {
		if u.Arity() != l.arity {
			return nil, configErrorf("complex layer unit %d has arity %d, unit 0 has %d", i, u.Arity(), l.arity)
		}
		l.units[i] = u
		l.layerWide = l.layerWide || u.LayerWide()
	}
	return l, nil
}

func (l *ComplexLayer[V]) Width() int { return len(l.units) }
func (l *ComplexLayer[V]) Arity() int { return l.arity }

// Unit returns the handle of element i.
func (l *ComplexLayer[V]) Unit(i int) (Unit[V], error) {
	if i < 0 || i >= len(l.units) {
		return nil, outOfRange("unit", i, len(l.units))
	}
	return l.units[i], nil
}

func (l *ComplexLayer[V]) Feed(values []V) error {
	if len(values) != l.arity {
		return shapeErrorf("layer of arity %d fed %d values", l.arity, len(values))
	}
	for i, u := range l.units {
		for j, v := range values {
			if err := u.SetValue(j, v); err != nil {
				return errors.WithMessagef(err, "unit %d", i)
			}
		}
	}
	return nil
}

// CalculateOutputs runs the two-phase protocol as soon as one element is
// layer-wide. Local elements ignore the peer sums they are handed.
func (l *ComplexLayer[V]) CalculateOutputs(ex Executor) error {
	if ex == nil {
		ex = Reference
	}
	if !l.layerWide {
		return ex.Run(len(l.units), func(i int) error {
			_, err := l.units[i].ComputeOutput(nil)
			return errors.WithMessagef(err, "unit %d", i)
		})
	}

	if len(l.sums) != len(l.units) {
		l.sums = make([]V, len(l.units))
	}
	sums := l.sums
	if err := ex.Run(len(l.units), func(i int) error {
		sums[i] = l.units[i].ComputeSum()
		return nil
	}); err != nil {
		return err
	}
	return ex.Run(len(l.units), func(i int) error {
		_, err := l.units[i].Activate(sums)
		return errors.WithMessagef(err, "unit %d", i)
	})
}

func (l *ComplexLayer[V]) Output(i int) (V, error) {
	if i < 0 || i >= len(l.units) {
		return 0, outOfRange("unit", i, len(l.units))
	}
	return l.units[i].Output()
}

func (l *ComplexLayer[V]) Outputs() ([]V, error) {
	out := make([]V, len(l.units))
	for i, u := range l.units {
		v, err := u.Output()
		if err != nil {
			return nil, errors.WithMessagef(err, "unit %d", i)
		}
		out[i] = v
	}
	return out, nil
}

func (l *ComplexLayer[V]) Memento() LayerMemento[V] {
	m := LayerMemento[V]{neurons: make([]NeuronMemento[V], len(l.units))}
	for i, u := range l.units {
		m.neurons[i] = u.Snapshot()
	}
	return m
}

func (l *ComplexLayer[V]) SetMemento(m LayerMemento[V]) error {
	if len(m.neurons) != len(l.units) {
		return shapeErrorf("layer has %d units, memento has %d", len(l.units), len(m.neurons))
	}
	for i, u := range l.units {
		if len(m.neurons[i].weights) != u.Arity() {
			return shapeErrorf("unit %d has %d inputs, memento has %d weights", i, u.Arity(), len(m.neurons[i].weights))
		}
	}
	for i, u := range l.units {
		if err := u.Restore(m.neurons[i]); err != nil {
			return errors.WithMessagef(err, "unit %d", i)
		}
	}
	return nil
}

func (l *ComplexLayer[V]) Describe() LayerDescriptor {
	d := LayerDescriptor{Kind: LayerComplex, Width: len(l.units), Arity: l.arity}
	d.Units = make([]UnitDescriptor, len(l.units))
	for i, u := range l.units {
		d.Units[i] = u.Describe()
	}
	return d
}
