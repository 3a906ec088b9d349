package nn

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Topology is the static description of a network, consumed once at assembly.
type Topology struct {
	ID         string        `json:"id,omitempty"`
	Numeric    string        `json:"numeric,omitempty"`
	InputWidth int           `json:"input_width"`
	Seed       int64         `json:"seed,omitempty"`
	Layers     []LayerConfig `json:"layers"`
}

// LayerConfig describes one layer. A layer with Units is heterogeneous;
// otherwise Width neurons share Policy. Arity is optional and, when given,
// must match the previous layer's width.
type LayerConfig struct {
	Width  int               `json:"width,omitempty"`
	Arity  int               `json:"arity,omitempty"`
	Policy *PolicyDescriptor `json:"policy,omitempty"`
	Units  []UnitConfig      `json:"units,omitempty"`
}

// UnitConfig describes one element of a heterogeneous layer.
type UnitConfig struct {
	Policy  PolicyDescriptor `json:"policy"`
	Numeric string           `json:"numeric,omitempty"`
}

// ParseTopology decodes a JSON topology and validates it.
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(ErrConfig, "decode topology: %v", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTopology reads and validates a JSON topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read topology")
	}
	return ParseTopology(data)
}

// Save writes t as indented JSON.
func (t *Topology) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode topology")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write topology")
}

// Validate checks the arity chain and every policy without building anything.
func (t *Topology) Validate() error {
	if t.InputWidth <= 0 {
		return configErrorf("input width %d", t.InputWidth)
	}
	if _, err := ParseNumericType(t.Numeric); err != nil {
		return err
	}
	if len(t.Layers) == 0 {
		return configErrorf("topology has no layers")
	}
	prev := t.InputWidth
	for i, l := range t.Layers {
		width := l.Width
		if len(l.Units) > 0 {
			if width != 0 && width != len(l.Units) {
				return configErrorf("layer %d declares width %d but lists %d units", i, width, len(l.Units))
			}
			width = len(l.Units)
			for j, u := range l.Units {
				if _, err := ParseNumericType(u.Numeric); err != nil {
					return errors.WithMessagef(err, "layer %d unit %d", i, j)
				}
				if _, err := NewPolicy[float64](u.Policy); err != nil {
					return errors.WithMessagef(err, "layer %d unit %d", i, j)
				}
			}
		} else {
			if l.Policy == nil {
				return configErrorf("layer %d has neither policy nor units", i)
			}
			if _, err := NewPolicy[float64](*l.Policy); err != nil {
				return errors.WithMessagef(err, "layer %d", i)
			}
		}
		if width <= 0 {
			return configErrorf("layer %d width %d", i, width)
		}
		if l.Arity != 0 && l.Arity != prev {
			return configErrorf("layer %d declares arity %d, previous width is %d", i, l.Arity, prev)
		}
		prev = width
	}
	return nil
}

// BuildNetwork assembles the network described by t over V. Weights start at
// zero; use an Initializer or a memento to fill them.
func BuildNetwork[V Float](t *Topology, opts ...Option) (*Network[V], error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID != "" {
		opts = append([]Option{WithID(t.ID)}, opts...)
	}
	n, err := NewNetwork[V](t.InputWidth, opts...)
	if err != nil {
		return nil, err
	}

	for i, lc := range t.Layers {
		if len(lc.Units) == 0 {
			p, err := NewPolicy[V](*lc.Policy)
			if err != nil {
				return nil, errors.WithMessagef(err, "layer %d", i)
			}
			if err := n.AddLayer(LayerSpec[V]{Width: lc.Width, Arity: lc.Arity, Policy: p}); err != nil {
				return nil, err
			}
			continue
		}

		arity := n.nextArity()
		units := make([]Unit[V], len(lc.Units))
		for j, uc := range lc.Units {
			nt, _ := ParseNumericType(uc.Numeric)
			u, err := NewUnit[V](UnitDescriptor{Policy: uc.Policy, Arity: arity, Numeric: nt})
			if err != nil {
				return nil, errors.WithMessagef(err, "layer %d unit %d", i, j)
			}
			units[j] = u
		}
		if err := n.AddComplexLayer(units...); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
	}
	return n, nil
}

// DescribeNetwork produces the topology of an assembled network.
func DescribeNetwork[V Float](n *Network[V]) *Topology {
	t := &Topology{
		ID:         n.ID,
		Numeric:    string(NumericTypeOf[V]()),
		InputWidth: n.InputWidth(),
	}
	for _, ld := range n.Describe() {
		lc := LayerConfig{Width: ld.Width, Arity: ld.Arity}
		if ld.Kind == LayerDense && len(ld.Units) > 0 {
			p := ld.Units[0].Policy
			lc.Policy = &p
		} else {
			lc.Width = 0
			lc.Units = make([]UnitConfig, len(ld.Units))
			for j, ud := range ld.Units {
				uc := UnitConfig{Policy: ud.Policy}
				if ud.Numeric != NumericTypeOf[V]() {
					uc.Numeric = string(ud.Numeric)
				}
				lc.Units[j] = uc
			}
		}
		t.Layers = append(t.Layers, lc)
	}
	return t
}
