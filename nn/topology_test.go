package nn

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `{
  "id": "xor",
  "numeric": "F32",
  "input_width": 2,
  "layers": [
    {"width": 3, "arity": 2, "policy": {"kind": "tanh"}},
    {"arity": 3, "units": [
      {"policy": {"kind": "softmax", "stabilized": true}},
      {"policy": {"kind": "threshold", "percent": 50, "inner": {"kind": "sigmoid"}}, "numeric": "F64"}
    ]}
  ]
}`

func TestTopologyRoundTrip(t *testing.T) {
	topo, err := ParseTopology([]byte(sampleTopology))
	require.NoError(t, err)

	n, err := BuildNetwork[float32](topo)
	require.NoError(t, err)
	assert.Equal(t, "xor", n.ID)
	assert.Equal(t, 2, n.NumLayers())
	assert.Equal(t, 2, n.OutputWidth())

	if diff := cmp.Diff(topo, DescribeNetwork(n)); diff != "" {
		t.Errorf("DescribeNetwork mismatch (-want +got):\n%s", diff)
	}

	l, err := n.Layer(1)
	require.NoError(t, err)
	u, err := l.Unit(1)
	require.NoError(t, err)
	assert.Equal(t, TypeF64, u.Describe().Numeric)

	path := filepath.Join(t.TempDir(), "topology.json")
	require.NoError(t, topo.Save(path))
	loaded, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(topo, loaded))
}

func TestTopologyValidate(t *testing.T) {
	cases := map[string]string{
		"arity chain":      `{"input_width":2,"layers":[{"width":3,"policy":{"kind":"relu"}},{"width":1,"arity":2,"policy":{"kind":"relu"}}]}`,
		"unknown policy":   `{"input_width":2,"layers":[{"width":1,"policy":{"kind":"gelu"}}]}`,
		"threshold range":  `{"input_width":2,"layers":[{"width":1,"policy":{"kind":"threshold","percent":150,"inner":{"kind":"sigmoid"}}}]}`,
		"threshold inner":  `{"input_width":2,"layers":[{"width":1,"policy":{"kind":"threshold","percent":10}}]}`,
		"no policy":        `{"input_width":2,"layers":[{"width":1}]}`,
		"no layers":        `{"input_width":2,"layers":[]}`,
		"zero input":       `{"input_width":0,"layers":[{"width":1,"policy":{"kind":"relu"}}]}`,
		"unit count":       `{"input_width":2,"layers":[{"width":3,"units":[{"policy":{"kind":"relu"}}]}]}`,
		"numeric":          `{"input_width":2,"numeric":"BF16","layers":[{"width":1,"policy":{"kind":"relu"}}]}`,
		"malformed":        `{"input_width":`,
		"unit numeric tag": `{"input_width":2,"layers":[{"units":[{"policy":{"kind":"relu"},"numeric":"I4"}]}]}`,
	}
	for name, doc := range cases {
		_, err := ParseTopology([]byte(doc))
		assert.ErrorIs(t, err, ErrConfig, name)
	}
}

func TestBlueprint(t *testing.T) {
	topo, err := ParseTopology([]byte(sampleTopology))
	require.NoError(t, err)
	n, err := BuildNetwork[float32](topo)
	require.NoError(t, err)

	bp := ExtractBlueprint(n)
	assert.Equal(t, "xor", bp.ID)
	assert.Equal(t, TypeF32, bp.Numeric)
	assert.Equal(t, 2, bp.TotalLayers)
	assert.Equal(t, 3*(2+1)+2*(3+1), bp.TotalParams)

	require.Len(t, bp.Layers, 2)
	assert.False(t, bp.Layers[0].LayerWide)
	assert.Nil(t, bp.Layers[0].Numeric)
	assert.Equal(t, []string{"tanh"}, bp.Layers[0].Policies)

	assert.True(t, bp.Layers[1].LayerWide)
	assert.Equal(t, []string{"F32", "F64"}, bp.Layers[1].Numeric)
	assert.Equal(t, []string{"softmax+stable", "threshold(sigmoid)"}, bp.Layers[1].Policies)
}
