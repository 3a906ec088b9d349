package nn

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Model is the capability set every backend exposes: a forward pass plus
// memento transfer. Backend equivalence is checked through it.
type Model[V Float] interface {
	Forward(input []V) ([]V, error)
	Snapshotter[V]
	Restorer[V]
}

// Network is a strict linear chain of layers. Layer i+1 consumes the outputs
// of layer i; there are no skip connections.
//
// A mutex serialises forward passes with every mutation made through the
// network, so a trainer that goes through Update or SetMemento never
// interleaves with an in-flight pass.
type Network[V Float] struct {
	ID string

	inputWidth int
	layers     []Layer[V]
	exec       Executor
	observer   Observer

	mu sync.Mutex
}

// Option configures a Network.
type Option func(*options)

type options struct {
	exec     Executor
	observer Observer
	id       string
}

// WithExecutor selects the backend used to evaluate each layer.
func WithExecutor(ex Executor) Option {
	return func(o *options) { o.exec = ex }
}

// WithObserver installs an observer notified after each layer and pass.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithID names the network in telemetry and saved files.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// NewNetwork returns an empty network expecting inputs of inputWidth values.
func NewNetwork[V Float](inputWidth int, opts ...Option) (*Network[V], error) {
	if inputWidth <= 0 {
		return nil, configErrorf("input width %d", inputWidth)
	}
	o := options{exec: Reference}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		o.exec = Reference
	}
	return &Network[V]{
		ID:         o.id,
		inputWidth: inputWidth,
		exec:       o.exec,
		observer:   o.observer,
	}, nil
}

// LayerSpec describes a homogeneous layer to add. Arity 0 derives the arity
// from the previous layer; a non-zero Arity must agree with it.
type LayerSpec[V Float] struct {
	Width  int
	Arity  int
	Policy Policy[V]
}

// AddLayer appends a homogeneous layer.
func (n *Network[V]) AddLayer(spec LayerSpec[V]) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	want := n.nextArity()
	if spec.Arity != 0 && spec.Arity != want {
		return configErrorf("layer %d declares arity %d, previous width is %d", len(n.layers), spec.Arity, want)
	}
	if spec.Policy == nil {
		return configErrorf("layer %d has no policy", len(n.layers))
	}
	l, err := NewDenseLayer(spec.Width, want, spec.Policy)
	if err != nil {
		return errors.WithMessagef(err, "layer %d", len(n.layers))
	}
	n.layers = append(n.layers, l)
	return nil
}

// AddComplexLayer appends a heterogeneous layer built from units.
func (n *Network[V]) AddComplexLayer(units ...Unit[V]) error {
	l, err := NewComplexLayer(units...)
	if err != nil {
		return err
	}
	return n.AppendLayer(l)
}

// AppendLayer appends a prebuilt layer after checking its arity.
func (n *Network[V]) AppendLayer(l Layer[V]) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if l == nil {
		return configErrorf("layer %d is nil", len(n.layers))
	}
	if want := n.nextArity(); l.Arity() != want {
		return configErrorf("layer %d has arity %d, previous width is %d", len(n.layers), l.Arity(), want)
	}
	n.layers = append(n.layers, l)
	return nil
}

func (n *Network[V]) nextArity() int {
	if len(n.layers) == 0 {
		return n.inputWidth
	}
	return n.layers[len(n.layers)-1].Width()
}

func (n *Network[V]) InputWidth() int { return n.inputWidth }

// OutputWidth is the width of the last layer, or 0 for an empty network.
func (n *Network[V]) OutputWidth() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.layers) == 0 {
		return 0
	}
	return n.layers[len(n.layers)-1].Width()
}

func (n *Network[V]) NumLayers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.layers)
}

// Layer returns layer i.
func (n *Network[V]) Layer(i int) (Layer[V], error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i < 0 || i >= len(n.layers) {
		return nil, outOfRange("layer", i, len(n.layers))
	}
	return n.layers[i], nil
}

// Layers returns the layers in order. The slice is a copy; the layers are not.
func (n *Network[V]) Layers() []Layer[V] {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Layer[V], len(n.layers))
	copy(out, n.layers)
	return out
}

// Executor returns the backend evaluating the layers.
func (n *Network[V]) Executor() Executor { return n.exec }

// Backend names the executor.
func (n *Network[V]) Backend() string { return n.exec.Name() }

// Forward runs input through every layer in order and returns a copy of the
// last layer's outputs.
func (n *Network[V]) Forward(input []V) ([]V, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.forward(input)
}

func (n *Network[V]) forward(input []V) ([]V, error) {
	if len(n.layers) == 0 {
		return nil, configErrorf("network has no layers")
	}
	if len(input) != n.inputWidth {
		return nil, shapeErrorf("input has %d values, network expects %d", len(input), n.inputWidth)
	}

	start := time.Now()
	data := input
	for i, l := range n.layers {
		layerStart := time.Now()
		if err := l.Feed(data); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		if err := l.CalculateOutputs(n.exec); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		out, err := l.Outputs()
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		if n.observer != nil {
			n.observer.OnLayer(LayerEvent{
				Network:  n.ID,
				LayerIdx: i,
				Kind:     l.Describe().Kind,
				Stats:    computeLayerStats(out, 0),
				Duration: time.Since(layerStart),
			})
		}
		data = out
	}

	if n.observer != nil {
		n.observer.OnForward(ForwardEvent{
			Network:  n.ID,
			Backend:  n.exec.Name(),
			Layers:   len(n.layers),
			Duration: time.Since(start),
		})
	}
	return data, nil
}

// Memento captures every weight and bias.
func (n *Network[V]) Memento() Memento[V] {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := Memento[V]{layers: make([]LayerMemento[V], len(n.layers))}
	for i, l := range n.layers {
		m.layers[i] = l.Memento()
	}
	return m
}

// SetMemento restores weights and biases. The whole shape is checked before
// any neuron changes, so a mismatch leaves the network untouched.
func (n *Network[V]) SetMemento(m Memento[V]) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkShape(m); err != nil {
		return err
	}
	for i, l := range n.layers {
		if err := l.SetMemento(m.layers[i]); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
	}
	return nil
}

func (n *Network[V]) checkShape(m Memento[V]) error {
	if len(m.layers) != len(n.layers) {
		return shapeErrorf("network has %d layers, memento has %d", len(n.layers), len(m.layers))
	}
	for i, l := range n.layers {
		lm := m.layers[i]
		if len(lm.neurons) != l.Width() {
			return shapeErrorf("layer %d has width %d, memento has %d", i, l.Width(), len(lm.neurons))
		}
		for j, nm := range lm.neurons {
			if len(nm.weights) != l.Arity() {
				return shapeErrorf("layer %d neuron %d has %d inputs, memento has %d weights", i, j, l.Arity(), len(nm.weights))
			}
		}
	}
	return nil
}

// Update runs fn with exclusive access to the network. No forward pass can
// run while fn is mutating weights.
func (n *Network[V]) Update(fn func(layers []Layer[V]) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.layers)
}

// ForwardWith applies m, runs input and restores the previous weights, all
// under one lock. It evaluates a snapshot without disturbing live state. A
// failed restore is reported even when the forward pass succeeded.
func (n *Network[V]) ForwardWith(m Memento[V], input []V) (out []V, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkShape(m); err != nil {
		return nil, err
	}
	saved := make([]LayerMemento[V], len(n.layers))
	for i, l := range n.layers {
		saved[i] = l.Memento()
		if err := l.SetMemento(m.layers[i]); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
	}
	defer func() {
		for i, l := range n.layers {
			if rerr := l.SetMemento(saved[i]); rerr != nil && err == nil {
				out, err = nil, errors.WithMessagef(rerr, "restore layer %d", i)
			}
		}
	}()
	return n.forward(input)
}

// Describe returns the structure of every layer.
func (n *Network[V]) Describe() []LayerDescriptor {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]LayerDescriptor, len(n.layers))
	for i, l := range n.layers {
		out[i] = l.Describe()
	}
	return out
}
