package gpu

import (
	"os"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// Context holds the single WebGPU context for the process.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	// Workgroup is the 1D workgroup size every shader is generated with.
	Workgroup uint32

	once sync.Once
	err  error
}

var ctx Context

// GetContext returns the singleton GPU context, initialising it on first use.
// A failed initialisation is remembered; later calls return the same error.
func GetContext() (*Context, error) {
	ctx.once.Do(func() {
		ctx.err = ctx.init()
	})
	if ctx.err != nil {
		return nil, ctx.err
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, errors.New("webgpu device or queue not initialised")
	}
	return &ctx, nil
}

// Available reports whether a usable adapter was found.
func Available() bool {
	_, err := GetContext()
	return err == nil
}

func (c *Context) init() error {
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return errors.New("failed to create webgpu instance")
	}

	// PERCEPTRA_ADAPTER picks an adapter by name or vendor substring.
	if want := strings.ToLower(os.Getenv("PERCEPTRA_ADAPTER")); want != "" {
		for _, a := range c.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			if Debug {
				Log("adapter %s (vendor %s, device 0x%X, type %d)", info.Name, info.VendorName, info.DeviceId, info.AdapterType)
			}
			if strings.Contains(strings.ToLower(info.Name), want) || strings.Contains(strings.ToLower(info.VendorName), want) {
				c.Adapter = a
				break
			}
		}
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err != nil && Debug {
			Log("adapter request failed: %v, falling back", err)
		}
	}
	if c.Adapter == nil {
		if err == nil {
			return errors.New("no webgpu adapter found")
		}
		return errors.Wrap(err, "all adapter requests failed")
	}

	info := c.Adapter.GetInfo()
	if Debug {
		Log("using adapter %s (vendor %s)", info.Name, info.VendorName)
	}

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		return errors.Wrap(err, "request device")
	}
	c.Queue = c.Device.GetQueue()
	c.Workgroup = chooseWorkgroup(c.Adapter.GetLimits())
	return nil
}

// chooseWorkgroup returns the largest conservative 1D workgroup the adapter
// supports.
func chooseWorkgroup(l wgpu.SupportedLimits) uint32 {
	return pickWorkgroup(l.Limits.MaxComputeWorkgroupSizeX, l.Limits.MaxComputeInvocationsPerWorkgroup)
}

func pickWorkgroup(maxX, maxTotal uint32) uint32 {
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if c <= maxX && c <= maxTotal {
			return c
		}
	}
	return 1
}
