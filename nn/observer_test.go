package nn

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := LogObserver{Logger: log.New(&buf, "", 0), Layers: true}
	n := buildChain[float64](t, Sigmoid[float64]{}, 2, []int{3, 1}, WithObserver(obs), WithID("log"))

	_, err := n.Forward([]float64{1, 2})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "[log] layer 0 (dense)"), lines[0])
	assert.Contains(t, lines[2], "forward on reference through 2 layers")
}

func TestComputeLayerStats(t *testing.T) {
	s := computeLayerStats([]float32{-1, 0, 2, 3}, 0)
	assert.Equal(t, LayerStats{AvgActivation: 1, MaxActivation: 3, MinActivation: -1, ActiveNeurons: 2, TotalNeurons: 4}, s)
	assert.Equal(t, LayerStats{}, computeLayerStats[float64](nil, 0))
}

func TestTimed(t *testing.T) {
	var ops []string
	var gotErr error
	h := HookFuncs{
		BeforeFunc: func(op string) { ops = append(ops, "before "+op) },
		AfterFunc: func(op string, elapsed time.Duration, err error) {
			ops = append(ops, "after "+op)
			gotErr = err
			assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		},
	}
	n := buildChain[float64](t, ReLU[float64]{}, 1, []int{1})

	out, err := Timed(h, "forward", func() ([]float64, error) { return n.Forward([]float64{1}) })
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, out)

	_, err = Timed(h, "bad", func() ([]float64, error) { return n.Forward(nil) })
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.True(t, errors.Is(gotErr, ErrShapeMismatch))
	assert.Equal(t, []string{"before forward", "after forward", "before bad", "after bad"}, ops)

	v, err := Timed[int](nil, "noop", func() (int, error) { return 4, nil })
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}
