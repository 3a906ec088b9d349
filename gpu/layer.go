package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/openfluke/perceptra/nn"
)

// Policy codes understood by the activation shader.
const (
	codeSigmoid = 0
	codeTanh    = 1
	codeReLU    = 2
	codeSoftmax = 3
)

// paramStride is the number of float32 parameters stored per neuron:
// policy code, threshold cut (negative when absent), stabilized flag.
const paramStride = 3

// NeuronParams is the device encoding of one neuron's policy.
type NeuronParams struct {
	Code       uint32
	Cut        float32 // threshold percent / 100, or -1
	Stabilized bool
}

// encodePolicy maps a policy descriptor onto shader parameters. A single
// threshold wrapping a built-in policy is supported.
func encodePolicy(d nn.PolicyDescriptor) (NeuronParams, error) {
	p := NeuronParams{Cut: -1}
	if d.Kind == nn.KindThreshold {
		if d.Inner == nil {
			return p, errors.Wrap(nn.ErrConfig, "threshold without inner policy")
		}
		p.Cut = float32(d.Percent) / 100
		d = *d.Inner
	}
	switch d.Kind {
	case nn.KindSigmoid:
		p.Code = codeSigmoid
	case nn.KindTanh:
		p.Code = codeTanh
	case nn.KindReLU:
		p.Code = codeReLU
	case nn.KindSoftmax:
		p.Code = codeSoftmax
		p.Stabilized = d.Stabilized
	default:
		return p, errors.Wrapf(nn.ErrUnsupported, "policy %s on webgpu", d)
	}
	return p, nil
}

// LayerSpec is the device layout of one layer. Weights are row-major,
// neuron by input.
type LayerSpec struct {
	InputSize  int
	OutputSize int
	Weights    []float32
	Biases     []float32
	Params     []NeuronParams
}

func (s LayerSpec) paramData() []float32 {
	out := make([]float32, 0, len(s.Params)*paramStride)
	for _, p := range s.Params {
		stab := float32(0)
		if p.Stabilized {
			stab = 1
		}
		out = append(out, float32(p.Code), p.Cut, stab)
	}
	return out
}

// newLayerSpec encodes a CPU layer descriptor and its weights.
func newLayerSpec(d nn.LayerDescriptor, m nn.LayerMemento[float32]) (LayerSpec, error) {
	s := LayerSpec{
		InputSize:  d.Arity,
		OutputSize: d.Width,
		Params:     make([]NeuronParams, d.Width),
	}
	for i, u := range d.Units {
		p, err := encodePolicy(u.Policy)
		if err != nil {
			return s, errors.WithMessagef(err, "unit %d", i)
		}
		s.Params[i] = p
	}
	if err := s.load(m); err != nil {
		return s, err
	}
	return s, nil
}

// load copies the weights of m into s after checking the shape.
func (s *LayerSpec) load(m nn.LayerMemento[float32]) error {
	if m.Len() != s.OutputSize {
		return errors.Wrapf(nn.ErrShapeMismatch, "layer has width %d, memento has %d", s.OutputSize, m.Len())
	}
	weights := make([]float32, 0, s.OutputSize*s.InputSize)
	biases := make([]float32, s.OutputSize)
	for i := 0; i < m.Len(); i++ {
		nm, _ := m.Neuron(i)
		if nm.Len() != s.InputSize {
			return errors.Wrapf(nn.ErrShapeMismatch, "neuron %d has %d inputs, memento has %d weights", i, s.InputSize, nm.Len())
		}
		weights = append(weights, nm.Weights()...)
		biases[i] = nm.Bias()
	}
	s.Weights, s.Biases = weights, biases
	return nil
}

func (s LayerSpec) memento() nn.LayerMemento[float32] {
	neurons := make([]nn.NeuronMemento[float32], s.OutputSize)
	for i := range neurons {
		neurons[i] = nn.NewNeuronMemento(s.Weights[i*s.InputSize:(i+1)*s.InputSize], s.Biases[i])
	}
	return nn.NewLayerMemento(neurons...)
}

// Layer holds the device resources of one layer: a sum pipeline writing raw
// sums and an activation pipeline reading all of them.
type Layer struct {
	Spec LayerSpec

	bindGroupLayout *wgpu.BindGroupLayout
	sumPipeline     *wgpu.ComputePipeline
	actPipeline     *wgpu.ComputePipeline
	bindGroup       *wgpu.BindGroup

	InputBuffer   *wgpu.Buffer
	SumBuffer     *wgpu.Buffer
	OutputBuffer  *wgpu.Buffer
	WeightBuffer  *wgpu.Buffer
	BiasBuffer    *wgpu.Buffer
	ParamBuffer   *wgpu.Buffer
	StagingBuffer *wgpu.Buffer // last layer only

	WorkgroupsX uint32
}

// GenerateShader returns the WGSL for this layer. sum_main is phase one,
// act_main is phase two; the caller separates them into two passes.
func (l *Layer) GenerateShader(workgroup uint32) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read_write> sums : array<f32>;
		@group(0) @binding(2) var<storage, read_write> output : array<f32>;
		@group(0) @binding(3) var<storage, read> weights : array<f32>;
		@group(0) @binding(4) var<storage, read> biases : array<f32>;
		@group(0) @binding(5) var<storage, read> params : array<f32>;

		const n_out = %du;
		const n_in = %du;

		@compute @workgroup_size(%d)
		fn sum_main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= n_out) {
				return;
			}
			var sum: f32 = biases[idx];
			let offset = idx * n_in;
			for (var i: u32 = 0u; i < n_in; i++) {
				sum += weights[offset + i] * input[i];
			}
			sums[idx] = sum;
		}

		fn softmax(x: f32, stabilized: bool) -> f32 {
			var shift: f32 = 0.0;
			if (stabilized) {
				shift = x;
				for (var i: u32 = 0u; i < n_out; i++) {
					shift = max(shift, sums[i]);
				}
			}
			var denom: f32 = 0.0;
			for (var i: u32 = 0u; i < n_out; i++) {
				denom += exp(sums[i] - shift);
			}
			return exp(x - shift) / denom;
		}

		@compute @workgroup_size(%d)
		fn act_main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= n_out) {
				return;
			}
			let x = sums[idx];
			let code = u32(params[idx * 3u]);
			let cut = params[idx * 3u + 1u];
			let stabilized = params[idx * 3u + 2u] > 0.5;

			var res: f32;
			switch code {
				case 0u: { res = 1.0 / (1.0 + exp(-x)); }
				case 1u: { res = 2.0 / (1.0 + exp(-2.0 * x)) - 1.0; }
				case 2u: { res = max(x, 0.0); }
				default: { res = softmax(x, stabilized); }
			}
			if (cut >= 0.0) {
				res = select(0.0, 1.0, res > cut);
			}
			output[idx] = res;
		}
	`, l.Spec.OutputSize, l.Spec.InputSize, workgroup, workgroup)
}

func (l *Layer) AllocateBuffers(c *Context, label string, last bool) error {
	if Debug {
		Log("allocating buffers for %s (%d x %d)", label, l.Spec.OutputSize, l.Spec.InputSize)
	}
	var err error
	if l.InputBuffer, err = newEmptyBuffer(c, label+"_In", l.Spec.InputSize, storageUsage); err != nil {
		return err
	}
	if l.SumBuffer, err = newEmptyBuffer(c, label+"_Sum", l.Spec.OutputSize, storageUsage); err != nil {
		return err
	}
	if l.OutputBuffer, err = newEmptyBuffer(c, label+"_Out", l.Spec.OutputSize, storageUsage); err != nil {
		return err
	}
	if l.WeightBuffer, err = NewFloatBuffer(c, label+"_W", l.Spec.Weights, storageUsage); err != nil {
		return err
	}
	if l.BiasBuffer, err = NewFloatBuffer(c, label+"_B", l.Spec.Biases, storageUsage); err != nil {
		return err
	}
	if l.ParamBuffer, err = NewFloatBuffer(c, label+"_P", l.Spec.paramData(), storageUsage); err != nil {
		return err
	}
	if last {
		l.StagingBuffer, err = newEmptyBuffer(c, label+"_Staging", l.Spec.OutputSize, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) Compile(c *Context, label string) error {
	if Debug {
		Log("compiling layer %s", label)
	}
	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: l.GenerateShader(c.Workgroup)},
	})
	if err != nil {
		return errors.Wrap(err, "shader compile")
	}
	defer module.Release()

	ro := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	rw := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	l.bindGroupLayout, err = c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: label + "_BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: ro}, // input
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: rw}, // sums
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: rw}, // output
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: ro}, // weights
			{Binding: 4, Visibility: wgpu.ShaderStageCompute, Buffer: ro}, // biases
			{Binding: 5, Visibility: wgpu.ShaderStageCompute, Buffer: ro}, // params
		},
	})
	if err != nil {
		return errors.Wrap(err, "create bind group layout")
	}

	pipelineLayout, err := c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{l.bindGroupLayout},
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	pipeline := func(entry string) (*wgpu.ComputePipeline, error) {
		p, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  label + "_" + entry,
			Layout: pipelineLayout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: entry,
			},
		})
		return p, errors.Wrapf(err, "create pipeline %s", entry)
	}
	if l.sumPipeline, err = pipeline("sum_main"); err != nil {
		return err
	}
	if l.actPipeline, err = pipeline("act_main"); err != nil {
		return err
	}

	l.WorkgroupsX = (uint32(l.Spec.OutputSize) + c.Workgroup - 1) / c.Workgroup
	return nil
}

func (l *Layer) CreateBindGroup(c *Context, label string) error {
	var err error
	l.bindGroup, err = c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label + "_Bind",
		Layout: l.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: l.InputBuffer, Size: l.InputBuffer.GetSize()},
			{Binding: 1, Buffer: l.SumBuffer, Size: l.SumBuffer.GetSize()},
			{Binding: 2, Buffer: l.OutputBuffer, Size: l.OutputBuffer.GetSize()},
			{Binding: 3, Buffer: l.WeightBuffer, Size: l.WeightBuffer.GetSize()},
			{Binding: 4, Buffer: l.BiasBuffer, Size: l.BiasBuffer.GetSize()},
			{Binding: 5, Buffer: l.ParamBuffer, Size: l.ParamBuffer.GetSize()},
		},
	})
	return errors.Wrap(err, "create bind group")
}

// Dispatch records both phases. End-of-pass is the barrier that makes every
// raw sum visible before any activation reads them.
func (l *Layer) Dispatch(enc *wgpu.CommandEncoder) {
	if Debug {
		Log("dispatching layer with %d workgroups", l.WorkgroupsX)
	}
	for _, p := range []*wgpu.ComputePipeline{l.sumPipeline, l.actPipeline} {
		pass := enc.BeginComputePass(nil)
		pass.SetPipeline(p)
		pass.SetBindGroup(0, l.bindGroup, nil)
		pass.DispatchWorkgroups(l.WorkgroupsX, 1, 1)
		pass.End()
	}
}

// UploadWeights writes the current spec weights and biases to the device.
func (l *Layer) UploadWeights(c *Context) {
	c.Queue.WriteBuffer(l.WeightBuffer, 0, wgpu.ToBytes(l.Spec.Weights))
	c.Queue.WriteBuffer(l.BiasBuffer, 0, wgpu.ToBytes(l.Spec.Biases))
}

func (l *Layer) Cleanup() {
	for _, b := range []*wgpu.Buffer{l.InputBuffer, l.SumBuffer, l.OutputBuffer, l.WeightBuffer, l.BiasBuffer, l.ParamBuffer, l.StagingBuffer} {
		if b != nil {
			b.Destroy()
		}
	}
	if l.sumPipeline != nil {
		l.sumPipeline.Release()
	}
	if l.actPipeline != nil {
		l.actPipeline.Release()
	}
	if l.bindGroup != nil {
		l.bindGroup.Release()
	}
}
