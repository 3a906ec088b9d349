package gpu

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Report is a portable summary of the adapter the accelerated backend runs on.
type Report struct {
	WhenISO     string `json:"when_iso"`
	Runtime     string `json:"runtime"` // "native" or "wasm"
	Backend     string `json:"backend"`
	AdapterType string `json:"adapter_type"`
	VendorID    string `json:"vendor_id_hex"`
	DeviceID    string `json:"device_id_hex"`
	Name        string `json:"name"`
	Driver      string `json:"driver"`
	Workgroup   uint32 `json:"workgroup_x"`
	Limits      Limits `json:"limits"`
}

// Limits are the adapter limits that bound layer sizes.
type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

// Probe describes the adapter held by the shared context.
func Probe() (*Report, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	info := c.Adapter.GetInfo()
	limits := c.Adapter.GetLimits()

	return &Report{
		WhenISO:     time.Now().UTC().Format(time.RFC3339),
		Runtime:     detectRuntime(),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Workgroup:   c.Workgroup,
		Limits: Limits{
			MaxComputeInvocationsPerWorkgroup: limits.Limits.MaxComputeInvocationsPerWorkgroup,
			MaxComputeWorkgroupSizeX:          limits.Limits.MaxComputeWorkgroupSizeX,
			MaxComputeWorkgroupsPerDimension:  limits.Limits.MaxComputeWorkgroupsPerDimension,
			MaxStorageBufferBindingSize:       limits.Limits.MaxStorageBufferBindingSize,
			MaxBufferSize:                     limits.Limits.MaxBufferSize,
		},
	}, nil
}

// ProbeJSON runs Probe and returns the report as indented JSON.
func ProbeJSON() (string, error) {
	rep, err := Probe()
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode probe report")
	}
	return string(b), nil
}

// fits reports whether a layer of width neurons with arity inputs stays
// within the adapter's buffer and dispatch limits.
func (l Limits) fits(width, arity int, workgroup uint32) error {
	if l.MaxStorageBufferBindingSize > 0 && uint64(width*arity*4) > l.MaxStorageBufferBindingSize {
		return errors.Errorf("weight buffer of %d bytes exceeds binding limit %d", width*arity*4, l.MaxStorageBufferBindingSize)
	}
	if l.MaxComputeWorkgroupsPerDimension > 0 && uint64(width) > uint64(l.MaxComputeWorkgroupsPerDimension)*uint64(workgroup) {
		return errors.Errorf("layer width %d exceeds dispatch limit", width)
	}
	return nil
}

func detectRuntime() string {
	if runtime.GOOS == "js" {
		return "wasm"
	}
	return "native"
}
