package nn

// Unit is the capability set shared by every neuron type a layer can hold.
// Complex layers store units behind this interface and dispatch per element.
type Unit[V Float] interface {
	Arity() int
	SetValue(i int, v V) error
	ComputeSum() V
	RawSum() (V, error)
	Activate(peers []V) (V, error)
	ComputeOutput(peers []V) (V, error)
	Output() (V, error)
	LayerWide() bool
	Snapshot() NeuronMemento[V]
	Restore(m NeuronMemento[V]) error
	Describe() UnitDescriptor
}

// UnitDescriptor describes one unit independently of the layer's numeric type.
type UnitDescriptor struct {
	Policy  PolicyDescriptor `json:"policy"`
	Arity   int              `json:"arity"`
	Numeric NumericType      `json:"numeric,omitempty"`
}

var _ Unit[float32] = (*Neuron[float32])(nil)

// Adapt exposes a neuron stored as W to a layer computing in V. Values are
// converted on the way in and outputs on the way out; the neuron itself
// keeps evaluating in W.
func Adapt[V, W Float](n *Neuron[W]) Unit[V] {
	return &adapted[V, W]{n: n}
}

type adapted[V, W Float] struct {
	n *Neuron[W]
}

func (a *adapted[V, W]) Arity() int { return a.n.Arity() }

func (a *adapted[V, W]) SetValue(i int, v V) error { return a.n.SetValue(i, W(v)) }

func (a *adapted[V, W]) ComputeSum() V { return V(a.n.ComputeSum()) }

func (a *adapted[V, W]) RawSum() (V, error) {
	s, err := a.n.RawSum()
	return V(s), err
}

func (a *adapted[V, W]) Activate(peers []V) (V, error) {
	var wp []W
	if peers != nil {
		wp = ConvertSlice[W](peers)
	}
	out, err := a.n.Activate(wp)
	return V(out), err
}

func (a *adapted[V, W]) ComputeOutput(peers []V) (V, error) {
	a.n.ComputeSum()
	return a.Activate(peers)
}

func (a *adapted[V, W]) Output() (V, error) {
	out, err := a.n.Output()
	return V(out), err
}

func (a *adapted[V, W]) LayerWide() bool { return a.n.LayerWide() }

func (a *adapted[V, W]) Snapshot() NeuronMemento[V] {
	return ConvertNeuronMemento[V](a.n.Snapshot())
}

func (a *adapted[V, W]) Restore(m NeuronMemento[V]) error {
	return a.n.Restore(ConvertNeuronMemento[W](m))
}

func (a *adapted[V, W]) Describe() UnitDescriptor { return a.n.Describe() }

// Neuron returns the wrapped neuron.
func (a *adapted[V, W]) Neuron() *Neuron[W] { return a.n }

// NewUnit builds a unit from its descriptor. Units whose numeric type differs
// from V are wrapped with Adapt.
func NewUnit[V Float](d UnitDescriptor) (Unit[V], error) {
	switch d.Numeric {
	case "", NumericTypeOf[V]():
		p, err := NewPolicy[V](d.Policy)
		if err != nil {
			return nil, err
		}
		n, err := NewNeuron(p, d.Arity)
		if err != nil {
			return nil, err
		}
		return n, nil
	case TypeF32:
		p, err := NewPolicy[float32](d.Policy)
		if err != nil {
			return nil, err
		}
		n, err := NewNeuron(p, d.Arity)
		if err != nil {
			return nil, err
		}
		return Adapt[V](n), nil
	case TypeF64:
		p, err := NewPolicy[float64](d.Policy)
		if err != nil {
			return nil, err
		}
		n, err := NewNeuron(p, d.Arity)
		if err != nil {
			return nil, err
		}
		return Adapt[V](n), nil
	}
	return nil, configErrorf("unknown numeric type %q", d.Numeric)
}
