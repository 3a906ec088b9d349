package nn

import (
	"github.com/pkg/errors"
)

// Policy is a stateless activation strategy. Implementations carry no mutable
// fields, so a neuron can be copied to another backend by value.
type Policy[V Float] interface {
	// Sum reduces the weighted inputs onto bias and returns the raw
	// pre-activation sum.
	Sum(inputs []Input[V], bias V) V

	// Calculate maps a raw sum to the neuron output. peers holds the raw sums
	// of every neuron in the layer (this one included) and is only consulted
	// by layer-wide policies.
	Calculate(sum V, peers []V) V

	// Delta is the error signal handed to an external trainer.
	Delta(output, expected V) V

	// Derivative of the activation expressed in terms of its output.
	Derivative(output V) (V, error)

	// LayerWide reports whether Calculate depends on peers.
	LayerWide() bool

	// Descriptor describes the policy independently of V.
	Descriptor() PolicyDescriptor
}

// Policy kinds as they appear in topology files and the factory.
const (
	KindSigmoid   = "sigmoid"
	KindTanh      = "tanh"
	KindReLU      = "relu"
	KindSoftmax   = "softmax"
	KindThreshold = "threshold"
)

// PolicyDescriptor is the numeric-type-free description of a policy.
type PolicyDescriptor struct {
	Kind       string            `json:"kind"`
	Percent    int               `json:"percent,omitempty"`
	Stabilized bool              `json:"stabilized,omitempty"`
	Inner      *PolicyDescriptor `json:"inner,omitempty"`
}

func (d PolicyDescriptor) String() string {
	switch {
	case d.Inner != nil:
		return d.Kind + "(" + d.Inner.String() + ")"
	case d.Stabilized:
		return d.Kind + "+stable"
	}
	return d.Kind
}

// WeightedSum returns bias + Σ weight·value in input order.
func WeightedSum[V Float](inputs []Input[V], bias V) V {
	sum := bias
	for _, in := range inputs {
		sum += in.Weight * in.Value
	}
	return sum
}

// Sigmoid is the logistic function 1/(1+exp(-x)).
type Sigmoid[V Float] struct{}

func (Sigmoid[V]) Sum(inputs []Input[V], bias V) V { return WeightedSum(inputs, bias) }

func (Sigmoid[V]) Calculate(sum V, _ []V) V {
	return 1 / (1 + Exp(-sum))
}

func (p Sigmoid[V]) Delta(output, expected V) V {
	d, _ := p.Derivative(output)
	return (output - expected) * d
}

func (Sigmoid[V]) Derivative(output V) (V, error) {
	return output * (1 - output), nil
}

func (Sigmoid[V]) LayerWide() bool              { return false }
func (Sigmoid[V]) Descriptor() PolicyDescriptor { return PolicyDescriptor{Kind: KindSigmoid} }

// Tanh is the bipolar sigmoid 2/(1+exp(-2x)) - 1.
type Tanh[V Float] struct{}

func (Tanh[V]) Sum(inputs []Input[V], bias V) V { return WeightedSum(inputs, bias) }

func (Tanh[V]) Calculate(sum V, _ []V) V {
	return 2/(1+Exp(-2*sum)) - 1
}

func (p Tanh[V]) Delta(output, expected V) V {
	d, _ := p.Derivative(output)
	return (output - expected) * d
}

func (Tanh[V]) Derivative(output V) (V, error) {
	return 1 - output*output, nil
}

func (Tanh[V]) LayerWide() bool              { return false }
func (Tanh[V]) Descriptor() PolicyDescriptor { return PolicyDescriptor{Kind: KindTanh} }

// ReLU is max(0, x).
type ReLU[V Float] struct{}

func (ReLU[V]) Sum(inputs []Input[V], bias V) V { return WeightedSum(inputs, bias) }

func (ReLU[V]) Calculate(sum V, _ []V) V {
	if sum > 0 {
		return sum
	}
	return 0
}

func (p ReLU[V]) Delta(output, expected V) V {
	d, _ := p.Derivative(output)
	return (output - expected) * d
}

func (ReLU[V]) Derivative(output V) (V, error) {
	if output > 0 {
		return 1, nil
	}
	return 0, nil
}

func (ReLU[V]) LayerWide() bool              { return false }
func (ReLU[V]) Descriptor() PolicyDescriptor { return PolicyDescriptor{Kind: KindReLU} }

// Softmax normalises exp(sum) over the raw sums of the whole layer.
//
// With Stabilized set the maximum peer sum is subtracted before
// exponentiation. The result is mathematically the same but large sums no
// longer overflow; without it an overflow surfaces as ErrUndefinedNumeric.
type Softmax[V Float] struct {
	Stabilized bool
}

func (Softmax[V]) Sum(inputs []Input[V], bias V) V { return WeightedSum(inputs, bias) }

func (p Softmax[V]) Calculate(sum V, peers []V) V {
	if len(peers) == 0 {
		peers = []V{sum}
	}
	var shift V
	if p.Stabilized {
		shift = sum
		for _, s := range peers {
			if s > shift {
				shift = s
			}
		}
	}
	var denom V
	for _, s := range peers {
		denom += Exp(s - shift)
	}
	return Exp(sum-shift) / denom
}

// Delta is output minus expected. Softmax is meant to be paired with a loss
// whose combined derivative is computed by the trainer.
func (Softmax[V]) Delta(output, expected V) V {
	return output - expected
}

func (Softmax[V]) Derivative(V) (V, error) {
	return 0, errors.Wrap(ErrUnsupported, "softmax has no standalone derivative")
}

func (Softmax[V]) LayerWide() bool { return true }

func (p Softmax[V]) Descriptor() PolicyDescriptor {
	return PolicyDescriptor{Kind: KindSoftmax, Stabilized: p.Stabilized}
}

// Threshold binarises the output of another policy: 1 when the wrapped output
// exceeds Percent/100, otherwise 0. Everything but Calculate is delegated.
type Threshold[V Float] struct {
	inner   Policy[V]
	percent int
}

// NewThreshold wraps p. percent must lie in [0,100].
func NewThreshold[V Float](p Policy[V], percent int) (Threshold[V], error) {
	if p == nil {
		return Threshold[V]{}, configErrorf("threshold needs a wrapped policy")
	}
	if percent < 0 || percent > 100 {
		return Threshold[V]{}, configErrorf("threshold percentage %d outside [0,100]", percent)
	}
	return Threshold[V]{inner: p, percent: percent}, nil
}

// Inner returns the wrapped policy.
func (p Threshold[V]) Inner() Policy[V] { return p.inner }

// Percent returns the threshold percentage.
func (p Threshold[V]) Percent() int { return p.percent }

func (p Threshold[V]) Sum(inputs []Input[V], bias V) V { return p.inner.Sum(inputs, bias) }

func (p Threshold[V]) Calculate(sum V, peers []V) V {
	out := p.inner.Calculate(sum, peers)
	if Undefined(out) {
		return out
	}
	if out > V(p.percent)/100 {
		return 1
	}
	return 0
}

func (p Threshold[V]) Delta(output, expected V) V { return p.inner.Delta(output, expected) }

func (p Threshold[V]) Derivative(output V) (V, error) { return p.inner.Derivative(output) }

func (p Threshold[V]) LayerWide() bool { return p.inner.LayerWide() }

func (p Threshold[V]) Descriptor() PolicyDescriptor {
	inner := p.inner.Descriptor()
	return PolicyDescriptor{Kind: KindThreshold, Percent: p.percent, Inner: &inner}
}
