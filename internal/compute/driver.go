package compute

// Driver is implemented by compute backends (OpenCL, the simulator). It is
// responsible for platform discovery; everything else hangs off the objects it
// returns. Failures are reported as *Error values built with StatusError.
type Driver interface {
	Name() string
	Platforms() ([]Platform, error)
}

// Platform is a driver platform (an OpenCL ICD vendor implementation).
type Platform interface {
	Info() (PlatformInfo, error)
	// Devices returns the platform's devices of type t. An empty result is not
	// an error.
	Devices(t DeviceType) ([]Device, error)
	CreateContext(devices []Device) (Context, error)
}

// Device answers capability queries.
type Device interface {
	Identity() (DeviceIdentity, error)
	GlobalMemSize() (uint64, error)
	MaxWorkGroupSize() (int, error)
	MaxWorkItemDimensions() (int, error)
	// MaxWorkItemSizes returns the first dims per-dimension maxima.
	MaxWorkItemSizes(dims int) ([]int, error)
}

// Context owns every resource created through it.
type Context interface {
	CreateQueue(device Device) (Queue, error)
	// CreateBuffer allocates size bytes. A non-nil host slice seeds the
	// allocation and must hold at least size bytes.
	CreateBuffer(mode AccessMode, size int, host []byte) (Mem, error)
	CreateProgram(source string) (Program, error)
	// CreateProgramWithBinary loads one binary per device, in device order.
	CreateProgramWithBinary(devices []Device, binaries [][]byte) (Program, error)
	Release() error
}

// Queue is an in-order command queue.
type Queue interface {
	// Write copies src into m at offset and returns once the copy completed.
	Write(m Mem, offset int, src []byte) error
	// Read copies from m at offset into dst and returns once the copy completed.
	Read(m Mem, offset int, dst []byte) error
	// EnqueueKernel submits one NDRange launch and returns without waiting.
	// local may be nil to let the driver pick the work-group shape.
	EnqueueKernel(k Kernel, dims int, global, local []int) error
	Finish() error
	Release() error
}

// Program is compiled (or loaded) device code.
type Program interface {
	Build(devices []Device, options string) error
	BuildLog(device Device) (string, error)
	// Binaries returns the executable for each device the program was built for.
	Binaries() ([][]byte, error)
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel is one entry point of a built program.
type Kernel interface {
	NumArgs() (int, error)
	SetArg(index int, arg KernelArg) error
	Release() error
}

// KernelArg is a bound kernel argument: exactly one of Mem or Value is set.
type KernelArg struct {
	Mem   Mem
	Value []byte
}

// Mem is a device allocation.
type Mem interface {
	Size() int
	Release() error
}
