package nn

import (
	"math"

	"github.com/chewxy/math32"
)

// The math shim evaluates in the native precision of V: float32 goes through
// math32 so the reference backend rounds the same way single-precision
// device code does, float64 goes through math.

// Exp returns e**x.
func Exp[V Float](x V) V {
	if isSingle[V]() {
		return V(math32.Exp(float32(x)))
	}
	return V(math.Exp(float64(x)))
}

// Log returns the natural logarithm of x.
func Log[V Float](x V) V {
	if isSingle[V]() {
		return V(math32.Log(float32(x)))
	}
	return V(math.Log(float64(x)))
}

// Pow returns x**y.
func Pow[V Float](x, y V) V {
	if isSingle[V]() {
		return V(math32.Pow(float32(x), float32(y)))
	}
	return V(math.Pow(float64(x), float64(y)))
}

// Sqrt returns the square root of x.
func Sqrt[V Float](x V) V {
	if isSingle[V]() {
		return V(math32.Sqrt(float32(x)))
	}
	return V(math.Sqrt(float64(x)))
}

// Undefined reports whether x is NaN or infinite.
func Undefined[V Float](x V) bool {
	f := float64(x)
	return math.IsNaN(f) || math.IsInf(f, 0)
}
