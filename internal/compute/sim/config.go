// Package sim is an in-process accelerator that implements the compute driver
// interfaces on the host CPU. Kernels are Go functions registered by name; a
// program "compiles" when every __kernel it declares has an implementation
// with a matching argument count.
package sim

import "github.com/cwbudde/clcore/internal/compute"

// DeviceSpec describes one simulated device. The length of MaxWorkItemSizes is
// the dimensionality the device reports and may exceed three.
type DeviceSpec struct {
	Name             string
	Vendor           string
	Version          string
	Type             compute.DeviceType
	GlobalMemSize    uint64
	MaxWorkGroupSize int
	MaxWorkItemSizes []int
}

// PlatformSpec describes one simulated platform and its devices.
type PlatformSpec struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceSpec
}

// Config is the simulated machine.
type Config struct {
	Platforms []PlatformSpec
	Kernels   []KernelDef

	// FailCreateContext and FailCreateQueue, when non-zero, are returned by
	// the corresponding create call. FailReleaseMem is returned by every
	// buffer release, which then leaves the buffer allocated.
	FailCreateContext compute.Status
	FailCreateQueue   compute.Status
	FailReleaseMem    compute.Status
}

// DefaultGPU is the device of DefaultConfig.
func DefaultGPU() DeviceSpec {
	return DeviceSpec{
		Name:             "Simulated GPU",
		Vendor:           "clcore",
		Version:          "OpenCL 1.2 sim",
		Type:             compute.DeviceTypeGPU,
		GlobalMemSize:    1 << 30,
		MaxWorkGroupSize: 256,
		MaxWorkItemSizes: []int{256, 256, 64},
	}
}

// DefaultConfig is one platform with one GPU and the built-in kernels.
func DefaultConfig() Config {
	return Config{
		Platforms: []PlatformSpec{{
			Name:    "Simulated Platform",
			Vendor:  "clcore",
			Version: "OpenCL 1.2 sim",
			Devices: []DeviceSpec{DefaultGPU()},
		}},
		Kernels: Builtins(),
	}
}
