package gpu

import (
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// ReadTimeout bounds how long a readback waits for the device.
var ReadTimeout = 2 * time.Second

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// NewFloatBuffer creates a storage buffer initialised with data.
func NewFloatBuffer(c *Context, label string, data []float32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer %s", label)
	}
	return buf, nil
}

// newEmptyBuffer creates a zeroed buffer holding n float32 values.
func newEmptyBuffer(c *Context, label string, n int, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(n * 4),
		Usage: usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer %s", label)
	}
	return buf, nil
}

// ReadBuffer copies the first n values of buffer back to the host through a
// temporary staging buffer.
func ReadBuffer(c *Context, buffer *wgpu.Buffer, n int) ([]float32, error) {
	staging, err := newEmptyBuffer(c, "ReadStaging", n, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	enc.CopyBufferToBuffer(buffer, 0, staging, 0, uint64(n*4))
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, errors.Wrap(err, "finish command")
	}
	c.Queue.Submit(cmd)

	return readStaging(c, staging, n)
}

// readStaging maps a MapRead buffer that already holds the result of a
// submitted copy and returns its first n values.
func readStaging(c *Context, buf *wgpu.Buffer, n int) ([]float32, error) {
	done := make(chan struct{})
	var mapErr error

	size := buf.GetSize()
	err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = errors.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, errors.Wrap(err, "map async")
	}

	timeout := time.After(ReadTimeout)
Loop:
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-timeout:
			return nil, errors.Errorf("readback timed out after %v", ReadTimeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := buf.GetMappedRange(0, uint(size))
	if data == nil {
		return nil, errors.New("mapped range is nil")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data))
	buf.Unmap()
	return out, nil
}
