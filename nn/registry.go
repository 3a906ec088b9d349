package nn

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// PolicyConstructor builds a policy for one numeric type from a descriptor.
// Go has no generic function values, so each constructor carries one closure
// per supported type.
type PolicyConstructor struct {
	F32 func(d PolicyDescriptor) (Policy[float32], error)
	F64 func(d PolicyDescriptor) (Policy[float64], error)
}

var (
	registryMu     sync.RWMutex
	policyRegistry = map[string]PolicyConstructor{}
)

func init() {
	list := map[string]PolicyConstructor{
		KindSigmoid:   constructorOf(sigmoidFrom[float32], sigmoidFrom[float64]),
		KindTanh:      constructorOf(tanhFrom[float32], tanhFrom[float64]),
		KindReLU:      constructorOf(reluFrom[float32], reluFrom[float64]),
		KindSoftmax:   constructorOf(softmaxFrom[float32], softmaxFrom[float64]),
		KindThreshold: constructorOf(thresholdFrom[float32], thresholdFrom[float64]),
	}
	for name, c := range list {
		if err := RegisterPolicy(name, c); err != nil {
			panic(err)
		}
	}
}

func constructorOf(f32 func(PolicyDescriptor) (Policy[float32], error), f64 func(PolicyDescriptor) (Policy[float64], error)) PolicyConstructor {
	return PolicyConstructor{F32: f32, F64: f64}
}

func sigmoidFrom[V Float](PolicyDescriptor) (Policy[V], error) { return Sigmoid[V]{}, nil }
func tanhFrom[V Float](PolicyDescriptor) (Policy[V], error)    { return Tanh[V]{}, nil }
func reluFrom[V Float](PolicyDescriptor) (Policy[V], error)    { return ReLU[V]{}, nil }

func softmaxFrom[V Float](d PolicyDescriptor) (Policy[V], error) {
	return Softmax[V]{Stabilized: d.Stabilized}, nil
}

func thresholdFrom[V Float](d PolicyDescriptor) (Policy[V], error) {
	if d.Inner == nil {
		return nil, configErrorf("threshold descriptor has no inner policy")
	}
	inner, err := NewPolicy[V](*d.Inner)
	if err != nil {
		return nil, errors.WithMessage(err, "threshold inner policy")
	}
	t, err := NewThreshold(inner, d.Percent)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// RegisterPolicy adds a constructor under name. Names are unique.
func RegisterPolicy(name string, c PolicyConstructor) error {
	if name == "" {
		return configErrorf("empty policy name")
	}
	if c.F32 == nil || c.F64 == nil {
		return configErrorf("policy %q needs both float32 and float64 constructors", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := policyRegistry[name]; ok {
		return configErrorf("policy %q already registered", name)
	}
	policyRegistry[name] = c
	return nil
}

// ListPolicies returns the registered names in sorted order.
func ListPolicies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(policyRegistry))
	for name := range policyRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPolicy builds the policy described by d over V.
func NewPolicy[V Float](d PolicyDescriptor) (Policy[V], error) {
	registryMu.RLock()
	c, ok := policyRegistry[d.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, configErrorf("unknown policy %q", d.Kind)
	}

	var (
		p   any
		err error
	)
	if NumericTypeOf[V]() == TypeF32 {
		p, err = c.F32(d)
	} else {
		p, err = c.F64(d)
	}
	if err != nil {
		return nil, err
	}
	if v, ok := p.(Policy[V]); ok {
		return v, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "policy %q is not available for %T", d.Kind, *new(V))
}
