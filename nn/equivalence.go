package nn

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultTolerance bounds the relative (or, near zero, absolute) difference
// allowed between two backends.
const DefaultTolerance = 1e-5

// ErrDiverged reports backends whose outputs differ beyond the tolerance.
var ErrDiverged = errors.New("backends diverged")

// EquivalenceReport summarises one equivalence run.
type EquivalenceReport struct {
	Reference   string
	Accelerated string
	Samples     int
	Tolerance   float64
	MaxAbsDiff  float64
	WorstSample int
	Mismatches  int
}

func (r *EquivalenceReport) String() string {
	return fmt.Sprintf("%s vs %s: %d samples, max |diff| %.3g (sample %d), %d beyond %.1g",
		r.Reference, r.Accelerated, r.Samples, r.MaxAbsDiff, r.WorstSample, r.Mismatches, r.Tolerance)
}

// backendNamer is implemented by models that can name their backend.
type backendNamer interface {
	Backend() string
}

func backendName(m any) string {
	if b, ok := m.(backendNamer); ok {
		return b.Backend()
	}
	return fmt.Sprintf("%T", m)
}

// CheckEquivalence applies m to both models, runs every input through each
// and compares the outputs element-wise. tol <= 0 selects DefaultTolerance.
// The report is returned even when the models diverge.
func CheckEquivalence[V Float](ref, acc Model[V], m Memento[V], inputs [][]V, tol float64) (*EquivalenceReport, error) {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	rep := &EquivalenceReport{
		Reference:   backendName(ref),
		Accelerated: backendName(acc),
		Tolerance:   tol,
	}
	if err := ref.SetMemento(m); err != nil {
		return rep, errors.WithMessage(err, rep.Reference)
	}
	if err := acc.SetMemento(m); err != nil {
		return rep, errors.WithMessage(err, rep.Accelerated)
	}

	for s, in := range inputs {
		a, err := ref.Forward(in)
		if err != nil {
			return rep, errors.WithMessagef(err, "%s sample %d", rep.Reference, s)
		}
		b, err := acc.Forward(in)
		if err != nil {
			return rep, errors.WithMessagef(err, "%s sample %d", rep.Accelerated, s)
		}
		if len(a) != len(b) {
			return rep, shapeErrorf("sample %d: %d outputs vs %d", s, len(a), len(b))
		}
		rep.Samples++

		af, bf := ConvertSlice[float64](a), ConvertSlice[float64](b)
		if d := floats.Distance(af, bf, math.Inf(1)); d > rep.MaxAbsDiff || s == 0 {
			rep.MaxAbsDiff = d
			rep.WorstSample = s
		}
		for i := range af {
			if !scalar.EqualWithinAbsOrRel(af[i], bf[i], tol, tol) {
				rep.Mismatches++
			}
		}
	}

	if rep.Mismatches > 0 {
		return rep, errors.Wrap(ErrDiverged, rep.String())
	}
	return rep, nil
}

// MaxAbsDiff returns the largest element-wise absolute difference over the
// common prefix of a and b.
func MaxAbsDiff[V Float](a, b []V) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	return floats.Distance(ConvertSlice[float64](a[:n]), ConvertSlice[float64](b[:n]), math.Inf(1))
}
