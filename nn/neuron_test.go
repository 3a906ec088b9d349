package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNeuron[V Float](t *testing.T, p Policy[V], weights []V, bias V) *Neuron[V] {
	t.Helper()
	n, err := NewNeuron(p, len(weights))
	require.NoError(t, err)
	for i, w := range weights {
		require.NoError(t, n.SetWeight(i, w))
	}
	n.SetBias(bias)
	return n
}

func TestNeuronComputeOutput(t *testing.T) {
	n := newTestNeuron[float64](t, Tanh[float64]{}, []float64{1, 1}, 1)
	require.NoError(t, n.SetValue(0, 1))
	require.NoError(t, n.SetValue(1, 1))

	out, err := n.ComputeOutput(nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Tanh(3), out, 1e-12)

	sum, err := n.RawSum()
	require.NoError(t, err)
	assert.Equal(t, 3.0, sum)

	cached, err := n.Output()
	require.NoError(t, err)
	assert.Equal(t, out, cached)

	d, err := n.Derivative()
	require.NoError(t, err)
	assert.InDelta(t, 1-out*out, d, 1e-12)
}

func TestNeuronNotComputed(t *testing.T) {
	n := newTestNeuron[float32](t, Sigmoid[float32]{}, []float32{0.5}, 0)

	_, err := n.Output()
	assert.ErrorIs(t, err, ErrNotComputed)
	_, err = n.Activate(nil)
	assert.ErrorIs(t, err, ErrNotComputed)
	_, err = n.Delta(1)
	assert.ErrorIs(t, err, ErrNotComputed)

	_, err = n.ComputeOutput(nil)
	require.NoError(t, err)
	_, err = n.Output()
	require.NoError(t, err)

	// Changing a weight invalidates the cached output.
	require.NoError(t, n.SetWeight(0, 2))
	_, err = n.Output()
	assert.ErrorIs(t, err, ErrNotComputed)
}

func TestNeuronBounds(t *testing.T) {
	n := newTestNeuron[float64](t, ReLU[float64]{}, []float64{1, 2}, 0)

	assert.ErrorIs(t, n.SetValue(2, 1), ErrOutOfRange)
	assert.ErrorIs(t, n.SetWeight(-1, 1), ErrOutOfRange)
	assert.ErrorIs(t, n.SetInput(5, Input[float64]{}), ErrOutOfRange)

	require.NoError(t, n.SetInput(1, Input[float64]{Weight: 3, Value: 4}))
	assert.Equal(t, []Input[float64]{{Weight: 1}, {Weight: 3, Value: 4}}, n.Inputs())

	_, err := NewNeuron[float64](nil, 1)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewNeuron[float64](ReLU[float64]{}, -1)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNeuronUndefinedOutput(t *testing.T) {
	n := newTestNeuron[float64](t, Softmax[float64]{}, []float64{1}, 0)
	require.NoError(t, n.SetValue(0, 1000))

	_, err := n.ComputeOutput([]float64{1000, 1000})
	assert.ErrorIs(t, err, ErrUndefinedNumeric)
	_, err = n.Output()
	assert.ErrorIs(t, err, ErrNotComputed)
}

func TestNeuronSnapshotRestore(t *testing.T) {
	n := newTestNeuron[float64](t, Sigmoid[float64]{}, []float64{0.1, 0.2, 0.3}, 0.4)
	require.NoError(t, n.SetValue(1, 9))

	m := n.Snapshot()
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, m.Weights())
	assert.Equal(t, 0.4, m.Bias())

	// Mutating the returned slice must not reach the memento.
	w := m.Weights()
	w[0] = 42
	assert.Equal(t, 0.1, m.Weights()[0])

	other := newTestNeuron[float64](t, Sigmoid[float64]{}, []float64{0, 0, 0}, 0)
	require.NoError(t, other.Restore(m))
	assert.Equal(t, m, other.Snapshot())
	assert.Equal(t, 0.0, other.Inputs()[1].Value, "input values are not part of a memento")

	short := newTestNeuron[float64](t, Sigmoid[float64]{}, []float64{0, 0}, 0)
	assert.ErrorIs(t, short.Restore(m), ErrShapeMismatch)
	assert.Equal(t, []float64{0, 0}, short.Snapshot().Weights())
}

func TestAdaptedUnit(t *testing.T) {
	inner := newTestNeuron[float64](t, Tanh[float64]{}, []float64{1, 1}, 1)
	u := Adapt[float32](inner)

	require.NoError(t, u.SetValue(0, 1))
	require.NoError(t, u.SetValue(1, 1))
	out, err := u.ComputeOutput(nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Tanh(3), float64(out), 1e-6)

	sum, err := u.RawSum()
	require.NoError(t, err)
	assert.Equal(t, float32(3), sum)

	assert.Equal(t, TypeF64, u.Describe().Numeric)
	assert.Equal(t, []float32{1, 1}, u.Snapshot().Weights())

	require.NoError(t, u.Restore(NewNeuronMemento([]float32{0.5, 0.25}, 2)))
	assert.Equal(t, []float64{0.5, 0.25}, inner.Snapshot().Weights())
	assert.Equal(t, 2.0, inner.Bias())
}

func TestNewUnit(t *testing.T) {
	u, err := NewUnit[float32](UnitDescriptor{Policy: PolicyDescriptor{Kind: KindSigmoid}, Arity: 3})
	require.NoError(t, err)
	_, native := u.(*Neuron[float32])
	assert.True(t, native)

	u, err = NewUnit[float32](UnitDescriptor{Policy: PolicyDescriptor{Kind: KindTanh}, Arity: 3, Numeric: TypeF64})
	require.NoError(t, err)
	assert.Equal(t, 3, u.Arity())
	assert.Equal(t, TypeF64, u.Describe().Numeric)

	_, err = NewUnit[float32](UnitDescriptor{Policy: PolicyDescriptor{Kind: "gelu"}, Arity: 1})
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewUnit[float32](UnitDescriptor{Policy: PolicyDescriptor{Kind: KindReLU}, Arity: 1, Numeric: "I8"})
	assert.ErrorIs(t, err, ErrConfig)
}
