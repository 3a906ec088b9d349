package nn

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const (
	mementoType    = "perceptra/memento"
	mementoVersion = 1
)

// mementoFile is the on-disk form. Values are written as float64 regardless
// of the memento's numeric type; DType records the type they came from.
type mementoFile struct {
	Type    string        `json:"type"`
	Version int           `json:"version"`
	DType   NumericType   `json:"dtype"`
	Layers  []layerRecord `json:"layers"`
}

type layerRecord struct {
	Neurons []neuronRecord `json:"neurons"`
}

type neuronRecord struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// MarshalJSON encodes the memento in the versioned wire format.
func (m Memento[V]) MarshalJSON() ([]byte, error) {
	f := mementoFile{
		Type:    mementoType,
		Version: mementoVersion,
		DType:   NumericTypeOf[V](),
		Layers:  make([]layerRecord, len(m.layers)),
	}
	for i, l := range m.layers {
		f.Layers[i].Neurons = make([]neuronRecord, len(l.neurons))
		for j, n := range l.neurons {
			f.Layers[i].Neurons[j] = neuronRecord{
				Weights: ConvertSlice[float64](n.weights),
				Bias:    float64(n.bias),
			}
		}
	}
	return json.Marshal(f)
}

// UnmarshalJSON decodes the wire format, converting values to V.
func (m *Memento[V]) UnmarshalJSON(data []byte) error {
	var f mementoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "decode memento")
	}
	if f.Type != mementoType {
		return errors.Wrapf(ErrConfig, "not a memento: type %q", f.Type)
	}
	if f.Version != mementoVersion {
		return errors.Wrapf(ErrConfig, "memento version %d not supported", f.Version)
	}
	if _, err := ParseNumericType(string(f.DType)); err != nil {
		return err
	}

	layers := make([]LayerMemento[V], len(f.Layers))
	for i, l := range f.Layers {
		layers[i].neurons = make([]NeuronMemento[V], len(l.Neurons))
		for j, n := range l.Neurons {
			layers[i].neurons[j] = NeuronMemento[V]{
				weights: ConvertSlice[V](n.Weights),
				bias:    V(n.Bias),
			}
		}
	}
	m.layers = layers
	return nil
}

// SaveMemento writes m to path as JSON.
func SaveMemento[V Float](path string, m Memento[V]) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode memento")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write memento")
}

// LoadMemento reads a memento file, converting it to V.
func LoadMemento[V Float](path string) (Memento[V], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Memento[V]{}, errors.Wrap(err, "read memento")
	}
	var m Memento[V]
	if err := json.Unmarshal(data, &m); err != nil {
		return Memento[V]{}, err
	}
	return m, nil
}
