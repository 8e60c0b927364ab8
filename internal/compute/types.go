package compute

// MaxDimensions caps the index-space dimensionality exposed by a DeviceProfile,
// whatever the device itself reports.
const MaxDimensions = 3

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"

	// DeviceTypeAll selects every device when enumerating.
	DeviceTypeAll DeviceType = "All"
)

// DeviceIdentity names a device as reported by the driver.
type DeviceIdentity struct {
	Name    string
	Vendor  string
	Version string
	Type    DeviceType
}

// DeviceProfile is the capability profile captured for a device at discovery.
// It is immutable once built.
type DeviceProfile struct {
	DeviceIdentity
	GlobalMemSize    uint64
	MaxWorkGroupSize int
	MaxDimensions    int
	MaxWorkItemSizes [MaxDimensions]int
}

// PlatformInfo captures metadata about a platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// PlatformListing is a platform together with the profiles of all its devices.
type PlatformListing struct {
	Info    PlatformInfo
	Devices []DeviceProfile
}

// AccessMode is the declared kernel access of a device buffer.
type AccessMode int

const (
	ReadOnly AccessMode = iota + 1
	WriteOnly
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return "invalid"
	}
}

// Valid reports whether m is one of the defined access modes.
func (m AccessMode) Valid() bool {
	return m >= ReadOnly && m <= ReadWrite
}

// BufferInfo describes a live entry of the buffer table.
type BufferInfo struct {
	Handle int
	Size   int
	Mode   AccessMode
}

// ProgramInfo describes a registered program entry.
type ProgramInfo struct {
	Index      int
	Name       string
	EntryPoint string
	NumArgs    int
	Cached     bool
}
