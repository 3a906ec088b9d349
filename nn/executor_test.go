package nn

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParallelVisitsEveryIndexOnce(t *testing.T) {
	for _, p := range []*Parallel{NewParallel(1), NewParallel(3), NewParallel(16).WithChunk(4), NewParallel(0)} {
		const n = 257
		var hits [n]int32
		err := p.Run(n, func(i int) error {
			atomic.AddInt32(&hits[i], 1)
			return nil
		})
		assert.NoError(t, err)
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "index %d with %d workers", i, p.Workers())
		}
	}
	assert.Equal(t, runtime.NumCPU(), NewParallel(0).Workers())
	assert.NoError(t, NewParallel(4).Run(0, func(int) error { return errors.New("not called") }))
}

func TestExecutorsReportFirstError(t *testing.T) {
	boom := errors.New("boom")
	for _, ex := range []Executor{Reference, NewParallel(4)} {
		var calls int32
		err := ex.Run(100, func(i int) error {
			atomic.AddInt32(&calls, 1)
			if i == 10 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom, ex.Name())
		assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(100))
	}
}

func TestParallelWaitsForRunningChunks(t *testing.T) {
	boom := errors.New("boom")
	var started, finished int32
	err := NewParallel(4).WithChunk(2).Run(64, func(i int) error {
		atomic.AddInt32(&started, 1)
		defer atomic.AddInt32(&finished, 1)
		if i == 0 {
			return boom
		}
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, atomic.LoadInt32(&started), atomic.LoadInt32(&finished))
}
