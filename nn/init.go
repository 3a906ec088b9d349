package nn

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Initializer generates initial weights. It is safe for concurrent use.
type Initializer struct {
	seed int64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewInitializer returns an initializer seeded with seed, or with the current
// time when seed is 0.
func NewInitializer(seed int64) *Initializer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Initializer{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// Seed returns the seed actually used.
func (in *Initializer) Seed() int64 { return in.seed }

// Uniform returns a value in [lo, hi).
func (in *Initializer) Uniform(lo, hi float64) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return lo + in.rng.Float64()*(hi-lo)
}

// Normal returns a sample from N(0, stddev²).
func (in *Initializer) Normal(stddev float64) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.rng.NormFloat64() * stddev
}

// InitMemento draws He-initialised weights, stddev sqrt(2/arity), for shape.
// Biases start at zero.
func InitMemento[V Float](in *Initializer, shape [][]int) Memento[V] {
	m := Memento[V]{layers: make([]LayerMemento[V], len(shape))}
	for i, layer := range shape {
		m.layers[i].neurons = make([]NeuronMemento[V], len(layer))
		for j, arity := range layer {
			stddev := 0.0
			if arity > 0 {
				stddev = math.Sqrt(2.0 / float64(arity))
			}
			w := make([]V, arity)
			for k := range w {
				w[k] = V(in.Normal(stddev))
			}
			m.layers[i].neurons[j] = NeuronMemento[V]{weights: w}
		}
	}
	return m
}

// ConstantMemento fills shape with weight w and bias b.
func ConstantMemento[V Float](shape [][]int, w, b V) Memento[V] {
	m := Memento[V]{layers: make([]LayerMemento[V], len(shape))}
	for i, layer := range shape {
		m.layers[i].neurons = make([]NeuronMemento[V], len(layer))
		for j, arity := range layer {
			ws := make([]V, arity)
			for k := range ws {
				ws[k] = w
			}
			m.layers[i].neurons[j] = NeuronMemento[V]{weights: ws, bias: b}
		}
	}
	return m
}

// Initialize overwrites every weight of n with fresh He-initialised values.
func Initialize[V Float](in *Initializer, n *Network[V]) error {
	return n.SetMemento(InitMemento[V](in, n.Memento().Shape()))
}
