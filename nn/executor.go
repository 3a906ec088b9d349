package nn

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Executor evaluates the independent elements of one layer phase. Run must not
// return before every call to fn has finished; layers rely on that return as
// the barrier between phases and between layers.
type Executor interface {
	Name() string
	Run(n int, fn func(i int) error) error
}

// Reference evaluates elements one after another on the calling goroutine.
var Reference Executor = sequential{}

type sequential struct{}

func (sequential) Name() string { return "reference" }

func (sequential) Run(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

// Parallel fans the elements of a phase out over a bounded group of
// goroutines, one chunk of consecutive indices per goroutine.
type Parallel struct {
	workers int
	chunk   int
}

// NewParallel returns a parallel executor. workers <= 0 means one per CPU.
func NewParallel(workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parallel{workers: workers, chunk: 1}
}

// WithChunk sets how many consecutive indices a goroutine evaluates.
func (p *Parallel) WithChunk(n int) *Parallel {
	if n > 0 {
		p.chunk = n
	}
	return p
}

func (p *Parallel) Name() string { return "parallel" }

// Workers returns the goroutine limit.
func (p *Parallel) Workers() int { return p.workers }

// Run returns the first error reported by fn. Chunks not yet started are
// skipped once an error is seen; chunks already running finish before Run
// returns.
func (p *Parallel) Run(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if p.workers <= 1 || n == 1 {
		return Reference.Run(n, fn)
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(p.workers)
	for start := 0; start < n; start += p.chunk {
		if ctx.Err() != nil {
			break
		}
		end := min(start+p.chunk, n)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
