package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/openfluke/perceptra/nn"
)

// BackendName identifies this backend in reports.
const BackendName = "webgpu"

// Network evaluates a feed-forward network on the GPU in float32. It is
// built from an assembled CPU network and accepts the same mementos.
type Network struct {
	ID     string
	Layers []*Layer

	inputWidth int
	ctx        *Context

	mu sync.Mutex
}

var _ nn.Model[float32] = (*Network)(nil)

// FromNetwork compiles n for the device. Weights are converted to float32;
// units stored as F64 are evaluated in float32 as well.
func FromNetwork[V nn.Float](n *nn.Network[V]) (*Network, error) {
	descs := n.Describe()
	m := nn.ConvertMemento[float32](n.Memento())

	specs := make([]LayerSpec, len(descs))
	for i, d := range descs {
		lm, err := m.Layer(i)
		if err != nil {
			return nil, err
		}
		if specs[i], err = newLayerSpec(d, lm); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
	}
	if len(specs) == 0 {
		return nil, errors.Wrap(nn.ErrConfig, "network has no layers")
	}

	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	limits := c.Adapter.GetLimits().Limits
	lim := Limits{
		MaxComputeWorkgroupsPerDimension: limits.MaxComputeWorkgroupsPerDimension,
		MaxStorageBufferBindingSize:      limits.MaxStorageBufferBindingSize,
	}
	for i, s := range specs {
		if err := lim.fits(s.OutputSize, s.InputSize, c.Workgroup); err != nil {
			return nil, errors.Wrapf(nn.ErrUnsupported, "layer %d: %v", i, err)
		}
	}

	g := &Network{ID: n.ID, inputWidth: n.InputWidth(), ctx: c}
	if err := g.build(specs); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

func (g *Network) build(specs []LayerSpec) error {
	for i, s := range specs {
		l := &Layer{Spec: s}
		g.Layers = append(g.Layers, l)
		label := fmt.Sprintf("L%d", i)
		if err := l.AllocateBuffers(g.ctx, label, i == len(specs)-1); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		if err := l.Compile(g.ctx, label); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		if err := l.CreateBindGroup(g.ctx, label); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
	}
	return nil
}

// Backend names the backend.
func (g *Network) Backend() string { return BackendName }

func (g *Network) InputWidth() int { return g.inputWidth }

// OutputWidth is 0 once the network has been released.
func (g *Network) OutputWidth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Layers) == 0 {
		return 0
	}
	return g.Layers[len(g.Layers)-1].Spec.OutputSize
}

var errReleased = errors.Wrap(nn.ErrConfig, "network released")

// Forward runs input through every layer in a single submission. Each layer
// copies its output buffer into the next layer's input buffer.
func (g *Network) Forward(input []float32) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.Layers) == 0 {
		return nil, errReleased
	}
	if len(input) != g.inputWidth {
		return nil, errors.Wrapf(nn.ErrShapeMismatch, "input has %d values, network expects %d", len(input), g.inputWidth)
	}

	g.ctx.Queue.WriteBuffer(g.Layers[0].InputBuffer, 0, wgpu.ToBytes(input))
	enc, err := g.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	for i, l := range g.Layers {
		l.Dispatch(enc)
		if i < len(g.Layers)-1 {
			enc.CopyBufferToBuffer(l.OutputBuffer, 0, g.Layers[i+1].InputBuffer, 0, l.OutputBuffer.GetSize())
		} else {
			enc.CopyBufferToBuffer(l.OutputBuffer, 0, l.StagingBuffer, 0, l.OutputBuffer.GetSize())
		}
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, errors.Wrap(err, "finish command")
	}
	g.ctx.Queue.Submit(cmd)

	last := g.Layers[len(g.Layers)-1]
	out, err := readStaging(g.ctx, last.StagingBuffer, last.Spec.OutputSize)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		if nn.Undefined(v) {
			return nil, errors.Wrapf(nn.ErrUndefinedNumeric, "output %d is %v", i, v)
		}
	}
	return out, nil
}

// Memento returns the weights last uploaded to the device.
func (g *Network) Memento() nn.Memento[float32] {
	g.mu.Lock()
	defer g.mu.Unlock()
	layers := make([]nn.LayerMemento[float32], len(g.Layers))
	for i, l := range g.Layers {
		layers[i] = l.Spec.memento()
	}
	return nn.NewMemento(layers...)
}

// SetMemento validates the shape of m against every layer, then uploads the
// new weights. A mismatch leaves the device weights untouched.
func (g *Network) SetMemento(m nn.Memento[float32]) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.Layers) == 0 {
		return errReleased
	}
	if m.Len() != len(g.Layers) {
		return errors.Wrapf(nn.ErrShapeMismatch, "network has %d layers, memento has %d", len(g.Layers), m.Len())
	}
	specs := make([]LayerSpec, len(g.Layers))
	for i, l := range g.Layers {
		lm, _ := m.Layer(i)
		specs[i] = l.Spec
		if err := specs[i].load(lm); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
	}
	for i, l := range g.Layers {
		l.Spec = specs[i]
		l.UploadWeights(g.ctx)
	}
	return nil
}

// Release frees every device resource. The network is unusable afterwards.
func (g *Network) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range g.Layers {
		l.Cleanup()
	}
	g.Layers = nil
}
