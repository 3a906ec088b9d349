package nn

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain returns a network whose layers all use p and have the given widths.
func buildChain[V Float](t *testing.T, p Policy[V], inputWidth int, widths []int, opts ...Option) *Network[V] {
	t.Helper()
	n, err := NewNetwork[V](inputWidth, opts...)
	require.NoError(t, err)
	for _, w := range widths {
		require.NoError(t, n.AddLayer(LayerSpec[V]{Width: w, Policy: p}))
	}
	return n
}

// TestBackendsAgree runs the same tanh chain on both executors with
// every weight, value and bias at 1.
func TestBackendsAgree(t *testing.T) {
	ref := buildChain[float32](t, Tanh[float32]{}, 2, []int{2, 2})
	par := buildChain[float32](t, Tanh[float32]{}, 2, []int{2, 2}, WithExecutor(NewParallel(4)))

	m := ConstantMemento[float32](ref.Memento().Shape(), 1, 1)
	require.NoError(t, ref.SetMemento(m))
	require.NoError(t, par.SetMemento(m))

	a, err := ref.Forward([]float32{1, 1})
	require.NoError(t, err)
	b, err := par.Forward([]float32{1, 1})
	require.NoError(t, err)
	require.Len(t, a, 2)

	first := math.Tanh(3)
	want := math.Tanh(2*first + 1)
	for i := range a {
		assert.InDelta(t, want, float64(a[i]), 1e-6)
		assert.InDelta(t, float64(a[i]), float64(b[i]), 1e-6)
	}
	assert.Equal(t, "reference", ref.Backend())
	assert.Equal(t, "parallel", par.Backend())
}

func TestAddLayerArityMismatch(t *testing.T) {
	n := buildChain[float64](t, Sigmoid[float64]{}, 3, []int{4})

	err := n.AddLayer(LayerSpec[float64]{Width: 2, Arity: 3, Policy: Sigmoid[float64]{}})
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, 1, n.NumLayers(), "rejected layer must not be appended")

	require.NoError(t, n.AddLayer(LayerSpec[float64]{Width: 2, Arity: 4, Policy: Sigmoid[float64]{}}))
	assert.Equal(t, 2, n.OutputWidth())

	assert.ErrorIs(t, n.AddLayer(LayerSpec[float64]{Width: 2}), ErrConfig)
	assert.ErrorIs(t, n.AddLayer(LayerSpec[float64]{Width: 0, Policy: ReLU[float64]{}}), ErrConfig)

	other, err := NewDenseLayer[float64](2, 5, ReLU[float64]{})
	require.NoError(t, err)
	assert.ErrorIs(t, n.AppendLayer(other), ErrConfig)

	_, err = NewNetwork[float64](0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestForwardErrors(t *testing.T) {
	n, err := NewNetwork[float64](2)
	require.NoError(t, err)
	_, err = n.Forward([]float64{1, 2})
	assert.ErrorIs(t, err, ErrConfig)

	n = buildChain[float64](t, ReLU[float64]{}, 2, []int{1})
	_, err = n.Forward([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	assert.Len(t, n.Layers(), 1)
	_, err = n.Layer(1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	l, err := n.Layer(0)
	require.NoError(t, err)
	_, err = l.Output(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = l.Unit(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSoftmaxLayerNormalises(t *testing.T) {
	for _, ex := range []Executor{Reference, NewParallel(3)} {
		n := buildChain[float64](t, Softmax[float64]{}, 3, []int{5}, WithExecutor(ex))
		require.NoError(t, Initialize(NewInitializer(7), n))

		out, err := n.Forward([]float64{0.3, -1, 2})
		require.NoError(t, err)
		var total float64
		for _, v := range out {
			assert.Greater(t, v, 0.0)
			total += v
		}
		assert.InDelta(t, 1.0, total, 1e-12, ex.Name())
	}
}

func TestSoftmaxOverflowSurfaces(t *testing.T) {
	n := buildChain[float32](t, Softmax[float32]{}, 1, []int{2})
	require.NoError(t, n.SetMemento(ConstantMemento[float32](n.Memento().Shape(), 100, 0)))
	_, err := n.Forward([]float32{1})
	assert.ErrorIs(t, err, ErrUndefinedNumeric)

	s := buildChain[float32](t, Softmax[float32]{Stabilized: true}, 1, []int{2})
	require.NoError(t, s.SetMemento(ConstantMemento[float32](s.Memento().Shape(), 100, 0)))
	out, err := s.Forward([]float32{1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, out, 1e-6)
}

func TestMementoTransfer(t *testing.T) {
	src := buildChain[float64](t, Sigmoid[float64]{}, 3, []int{4, 2})
	dst := buildChain[float64](t, Sigmoid[float64]{}, 3, []int{4, 2}, WithExecutor(NewParallel(2)))
	require.NoError(t, Initialize(NewInitializer(42), src))

	m := Capture[float64](src)
	require.NoError(t, Apply(m, dst))
	assert.True(t, m.Equal(dst.Memento()))

	in := []float64{0.5, -0.25, 1}
	a, err := src.Forward(in)
	require.NoError(t, err)
	b, err := dst.Forward(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMementoRoundTripIdempotent(t *testing.T) {
	n := buildChain[float64](t, Tanh[float64]{}, 3, []int{4, 2})
	require.NoError(t, Initialize(NewInitializer(11), n))
	in := []float64{0.3, -1, 0.75}
	want, err := n.Forward(in)
	require.NoError(t, err)

	m := Capture[float64](n)
	for i := 0; i < 3; i++ {
		require.NoError(t, Apply(m, n))
		got, err := n.Forward(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "restore %d", i)
		assert.True(t, m.Equal(n.Memento()))
	}
}

// TestSoftmaxPermutedNeurons reorders the neurons of a softmax layer and
// expects the outputs to follow the same order with an unchanged denominator.
func TestSoftmaxPermutedNeurons(t *testing.T) {
	n := buildChain[float64](t, Softmax[float64]{}, 3, []int{4})
	require.NoError(t, Initialize(NewInitializer(5), n))
	in := []float64{1, -0.5, 0.25}
	base, err := n.Forward(in)
	require.NoError(t, err)

	lm, err := n.Memento().Layer(0)
	require.NoError(t, err)
	perm := []int{2, 0, 3, 1}
	neurons := make([]NeuronMemento[float64], len(perm))
	for i, p := range perm {
		neurons[i], err = lm.Neuron(p)
		require.NoError(t, err)
	}
	require.NoError(t, n.SetMemento(NewMemento(NewLayerMemento(neurons...))))

	got, err := n.Forward(in)
	require.NoError(t, err)
	var sum float64
	for i, p := range perm {
		assert.InDelta(t, base[p], got[i], 1e-12, "output %d", i)
		sum += got[i]
	}
	assert.InDelta(t, 1, sum, 1e-12)
}

func TestSetMementoShapeMismatch(t *testing.T) {
	n := buildChain[float64](t, ReLU[float64]{}, 2, []int{3, 1})
	require.NoError(t, Initialize(NewInitializer(1), n))
	before := n.Memento()

	wrong := []Memento[float64]{
		ConstantMemento[float64]([][]int{{2, 2, 2}}, 1, 0),
		ConstantMemento[float64]([][]int{{2, 2}, {3}}, 1, 0),
		// Only the last layer is off, so a partial restore would be visible.
		ConstantMemento[float64]([][]int{{2, 2, 2}, {4}}, 1, 0),
	}
	for i, m := range wrong {
		assert.ErrorIs(t, n.SetMemento(m), ErrShapeMismatch, "memento %d", i)
		assert.True(t, before.Equal(n.Memento()), "memento %d changed the network", i)
	}

	l, err := n.Layer(0)
	require.NoError(t, err)
	bad, err := wrong[1].Layer(0)
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetMemento(bad), ErrShapeMismatch)
}

func TestForwardWithRestores(t *testing.T) {
	n := buildChain[float64](t, ReLU[float64]{}, 1, []int{1})
	require.NoError(t, n.SetMemento(ConstantMemento[float64](n.Memento().Shape(), 1, 0)))
	live := n.Memento()

	out, err := n.ForwardWith(ConstantMemento[float64](live.Shape(), 3, 1), []float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, out)
	assert.True(t, live.Equal(n.Memento()))

	out, err = n.Forward([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, out)
}

// stickyLayer accepts its first memento and rejects every later one.
type stickyLayer struct {
	Layer[float64]
	sets int
}

func (l *stickyLayer) SetMemento(m LayerMemento[float64]) error {
	l.sets++
	if l.sets > 1 {
		return errors.New("layer refuses restore")
	}
	return l.Layer.SetMemento(m)
}

func TestForwardWithReportsRestoreFailure(t *testing.T) {
	dense, err := NewDenseLayer[float64](1, 1, ReLU[float64]{})
	require.NoError(t, err)
	n, err := NewNetwork[float64](1)
	require.NoError(t, err)
	require.NoError(t, n.AppendLayer(&stickyLayer{Layer: dense}))

	out, err := n.ForwardWith(ConstantMemento[float64](n.Memento().Shape(), 3, 1), []float64{2})
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "restore layer 0")
}

func TestUpdate(t *testing.T) {
	n := buildChain[float64](t, ReLU[float64]{}, 1, []int{1})
	require.NoError(t, n.Update(func(layers []Layer[float64]) error {
		u, err := layers[0].Unit(0)
		if err != nil {
			return err
		}
		return u.Restore(NewNeuronMemento([]float64{2}, 0.5))
	}))
	out, err := n.Forward([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{6.5}, out)
}

// TestConcurrentForward hammers one network from several goroutines while a
// trainer swaps weights in between passes.
func TestConcurrentForward(t *testing.T) {
	n := buildChain[float64](t, Tanh[float64]{}, 4, []int{8, 8, 2}, WithExecutor(NewParallel(0)))
	require.NoError(t, Initialize(NewInitializer(3), n))
	shape := n.Memento().Shape()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				out, err := n.Forward([]float64{1, 0, -1, 0.5})
				assert.NoError(t, err)
				assert.Len(t, out, 2)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, n.SetMemento(ConstantMemento[float64](shape, float64(i)/20, 0)))
	}
	wg.Wait()
}

type recordingObserver struct {
	mu       sync.Mutex
	layers   []LayerEvent
	forwards []ForwardEvent
}

func (o *recordingObserver) OnLayer(e LayerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.layers = append(o.layers, e)
}

func (o *recordingObserver) OnForward(e ForwardEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forwards = append(o.forwards, e)
}

func TestObserverEvents(t *testing.T) {
	obs := &recordingObserver{}
	n := buildChain[float64](t, ReLU[float64]{}, 2, []int{3, 2}, WithObserver(obs), WithID("observed"))
	require.NoError(t, n.SetMemento(ConstantMemento[float64](n.Memento().Shape(), 1, 0)))

	_, err := n.Forward([]float64{1, -3})
	require.NoError(t, err)

	require.Len(t, obs.layers, 2)
	require.Len(t, obs.forwards, 1)
	assert.Equal(t, "observed", obs.forwards[0].Network)
	assert.Equal(t, "reference", obs.forwards[0].Backend)
	assert.Equal(t, 2, obs.forwards[0].Layers)

	// Every ReLU sees 1 - 3 + 0 and outputs 0.
	first := obs.layers[0]
	assert.Equal(t, LayerDense, first.Kind)
	assert.Equal(t, 3, first.Stats.TotalNeurons)
	assert.Equal(t, 0, first.Stats.ActiveNeurons)
	assert.Equal(t, 0.0, first.Stats.MaxActivation)
}
