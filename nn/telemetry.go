package nn

// Blueprint is the structural summary of a network.
type Blueprint struct {
	ID          string           `json:"id"`
	Numeric     NumericType      `json:"numeric"`
	InputWidth  int              `json:"input_width"`
	TotalLayers int              `json:"total_layers"`
	TotalParams int              `json:"total_parameters"`
	Layers      []LayerTelemetry `json:"layers"`
}

// LayerTelemetry describes one layer.
type LayerTelemetry struct {
	Index      int      `json:"index"`
	Kind       string   `json:"kind"`
	Width      int      `json:"width"`
	Arity      int      `json:"arity"`
	Parameters int      `json:"parameters"`
	LayerWide  bool     `json:"layer_wide"`
	Policies   []string `json:"policies"`
	Numeric    []string `json:"numeric,omitempty"`
}

// ExtractBlueprint summarises n. Each neuron contributes arity weights plus
// one bias.
func ExtractBlueprint[V Float](n *Network[V]) Blueprint {
	descs := n.Describe()
	bp := Blueprint{
		ID:          n.ID,
		Numeric:     NumericTypeOf[V](),
		InputWidth:  n.InputWidth(),
		TotalLayers: len(descs),
		Layers:      make([]LayerTelemetry, 0, len(descs)),
	}
	for i, d := range descs {
		lt := LayerTelemetry{
			Index:      i,
			Kind:       d.Kind,
			Width:      d.Width,
			Arity:      d.Arity,
			Parameters: d.Width * (d.Arity + 1),
		}
		seen := map[string]bool{}
		mixed := false
		for _, u := range d.Units {
			name := u.Policy.String()
			if !seen[name] {
				seen[name] = true
				lt.Policies = append(lt.Policies, name)
			}
			if u.Numeric != bp.Numeric {
				mixed = true
			}
			if isLayerWide(u.Policy) {
				lt.LayerWide = true
			}
		}
		if mixed {
			for _, u := range d.Units {
				lt.Numeric = append(lt.Numeric, string(u.Numeric))
			}
		}
		bp.TotalParams += lt.Parameters
		bp.Layers = append(bp.Layers, lt)
	}
	return bp
}

func isLayerWide(d PolicyDescriptor) bool {
	p, err := NewPolicy[float64](d)
	return err == nil && p.LayerWide()
}
