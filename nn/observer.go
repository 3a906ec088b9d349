package nn

import (
	"log"
	"time"
)

// LayerStats summarises one layer's outputs.
type LayerStats struct {
	AvgActivation float64 `json:"avg"`
	MaxActivation float64 `json:"max"`
	MinActivation float64 `json:"min"`
	ActiveNeurons int     `json:"active"`
	TotalNeurons  int     `json:"total"`
}

// LayerEvent is emitted after a layer finished CalculateOutputs.
type LayerEvent struct {
	Network  string
	LayerIdx int
	Kind     string
	Stats    LayerStats
	Duration time.Duration
}

// ForwardEvent is emitted after a complete forward pass.
type ForwardEvent struct {
	Network  string
	Backend  string
	Layers   int
	Duration time.Duration
}

// Observer receives events from forward passes. Calls happen on the goroutine
// running Forward while the network lock is held, so implementations must not
// call back into the network.
type Observer interface {
	OnLayer(e LayerEvent)
	OnForward(e ForwardEvent)
}

func computeLayerStats[V Float](data []V, threshold V) LayerStats {
	if len(data) == 0 {
		return LayerStats{}
	}
	var sum V
	max, min := data[0], data[0]
	active := 0
	for _, v := range data {
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
		if v > threshold {
			active++
		}
	}
	return LayerStats{
		AvgActivation: float64(sum) / float64(len(data)),
		MaxActivation: float64(max),
		MinActivation: float64(min),
		ActiveNeurons: active,
		TotalNeurons:  len(data),
	}
}

// LogObserver writes one line per event.
type LogObserver struct {
	Logger *log.Logger
	Layers bool // also log per-layer events
}

func (o LogObserver) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o LogObserver) OnLayer(e LayerEvent) {
	if !o.Layers {
		return
	}
	o.logger().Printf("[%s] layer %d (%s): avg=%.4f min=%.4f max=%.4f active=%d/%d in %v",
		e.Network, e.LayerIdx, e.Kind, e.Stats.AvgActivation, e.Stats.MinActivation,
		e.Stats.MaxActivation, e.Stats.ActiveNeurons, e.Stats.TotalNeurons, e.Duration)
}

func (o LogObserver) OnForward(e ForwardEvent) {
	o.logger().Printf("[%s] forward on %s through %d layers in %v", e.Network, e.Backend, e.Layers, e.Duration)
}

// Hook instruments an operation before and after it runs.
type Hook interface {
	Before(op string)
	After(op string, elapsed time.Duration, err error)
}

// HookFuncs adapts plain functions to Hook. Nil fields are skipped.
type HookFuncs struct {
	BeforeFunc func(op string)
	AfterFunc  func(op string, elapsed time.Duration, err error)
}

func (h HookFuncs) Before(op string) {
	if h.BeforeFunc != nil {
		h.BeforeFunc(op)
	}
}

func (h HookFuncs) After(op string, elapsed time.Duration, err error) {
	if h.AfterFunc != nil {
		h.AfterFunc(op, elapsed, err)
	}
}

// Timed runs fn between the hook's Before and After calls.
func Timed[T any](h Hook, op string, fn func() (T, error)) (T, error) {
	if h == nil {
		return fn()
	}
	h.Before(op)
	start := time.Now()
	out, err := fn()
	h.After(op, time.Since(start), err)
	return out, err
}
