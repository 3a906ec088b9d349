package nn

import (
	"github.com/pkg/errors"
)

// Float is the set of numeric representations a network can be built over.
type Float interface {
	~float32 | ~float64
}

// NumericType names a numeric representation in configuration files and mementos.
type NumericType string

const (
	TypeF32 NumericType = "F32"
	TypeF64 NumericType = "F64"
)

// NumericTypeOf reports the tag for V.
func NumericTypeOf[V Float]() NumericType {
	var v V
	switch any(v).(type) {
	case float32:
		return TypeF32
	case float64:
		return TypeF64
	}
	// Named types over float32/float64 fall back on their width.
	if isSingle[V]() {
		return TypeF32
	}
	return TypeF64
}

// ParseNumericType accepts the tags used in topology files. An empty string
// means the caller's default.
func ParseNumericType(s string) (NumericType, error) {
	switch NumericType(s) {
	case TypeF32, "float32", "f32":
		return TypeF32, nil
	case TypeF64, "float64", "f64":
		return TypeF64, nil
	case "":
		return "", nil
	}
	return "", errors.Wrapf(ErrConfig, "unknown numeric type %q", s)
}

// isSingle reports whether V rounds like float32.
func isSingle[V Float]() bool {
	// 1 + 2^-30 is representable in float64 but not float32.
	x := V(1) + V(1.0/(1<<30))
	return x == V(1)
}

// ConvertSlice converts every element of src to To.
func ConvertSlice[To, From Float](src []From) []To {
	out := make([]To, len(src))
	for i, v := range src {
		out[i] = To(v)
	}
	return out
}
