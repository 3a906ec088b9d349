package nn

import (
	"github.com/pkg/errors"
)

// Error kinds returned by the engine. Every error produced by this package
// wraps exactly one of these, so callers can classify failures with errors.Is.
var (
	// ErrConfig reports an invalid topology or policy configuration:
	// arity mismatches, threshold percentages outside [0,100], unknown
	// policy keys. Always raised at assembly time.
	ErrConfig = errors.New("invalid configuration")

	// ErrOutOfRange reports an input, neuron or layer index outside its bounds.
	ErrOutOfRange = errors.New("index out of range")

	// ErrUnsupported reports an operation a policy does not define,
	// such as the standalone derivative of softmax.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrUndefinedNumeric reports a NaN or infinite result.
	ErrUndefinedNumeric = errors.New("undefined numeric result")

	// ErrShapeMismatch reports a memento whose layer count, widths or
	// per-neuron input counts disagree with the target.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotComputed reports a read of an output that was never calculated.
	ErrNotComputed = errors.New("output not computed")
)

func outOfRange(what string, idx, n int) error {
	return errors.Wrapf(ErrOutOfRange, "%s %d (len %d)", what, idx, n)
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}
