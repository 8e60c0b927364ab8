package compute

import "fmt"

// selection is the outcome of discovery: the first platform and its GPUs.
type selection struct {
	platform Platform
	info     PlatformInfo
	devices  []Device
	profiles []DeviceProfile
}

// Discover selects the first platform and profiles every GPU device under it.
// It fails with a Discovery error when there is no platform or no GPU; there is
// no fallback to other device classes.
func Discover(d Driver) (PlatformInfo, []DeviceProfile, error) {
	sel, err := discover(d)
	if err != nil {
		return PlatformInfo{}, nil, err
	}
	return sel.info, sel.profiles, nil
}

func discover(d Driver) (*selection, error) {
	platforms, err := d.Platforms()
	if err != nil {
		return nil, fromDriver("discover platforms", KindDiscovery, err)
	}
	if len(platforms) == 0 {
		return nil, &Error{Kind: KindDiscovery, Op: "discover platforms", Status: StatusPlatformNotFound, Msg: "no platforms found"}
	}

	platform := platforms[0]
	info, err := platform.Info()
	if err != nil {
		return nil, fromDriver("query platform", KindUnknown, err)
	}

	devices, err := platform.Devices(DeviceTypeGPU)
	if err != nil {
		return nil, fromDriver("discover devices", KindDiscovery, err)
	}
	if len(devices) == 0 {
		return nil, &Error{
			Kind:   KindDiscovery,
			Op:     "discover devices",
			Status: StatusDeviceNotFound,
			Msg:    fmt.Sprintf("no GPU devices found on platform %q", info.Name),
		}
	}

	profiles := make([]DeviceProfile, 0, len(devices))
	for _, dev := range devices {
		p, err := profileDevice(dev)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	return &selection{
		platform: platform,
		info:     info,
		devices:  devices,
		profiles: profiles,
	}, nil
}

// ListPlatforms enumerates every platform and every device of any type. It
// creates no context and is meant for capability reports.
func ListPlatforms(d Driver) ([]PlatformListing, error) {
	platforms, err := d.Platforms()
	if err != nil {
		return nil, fromDriver("list platforms", KindUnknown, err)
	}

	out := make([]PlatformListing, 0, len(platforms))
	for _, platform := range platforms {
		info, err := platform.Info()
		if err != nil {
			return nil, fromDriver("query platform", KindUnknown, err)
		}
		devices, err := platform.Devices(DeviceTypeAll)
		if err != nil {
			return nil, fromDriver("list devices", KindUnknown, err)
		}
		listing := PlatformListing{Info: info, Devices: make([]DeviceProfile, 0, len(devices))}
		for _, dev := range devices {
			p, err := profileDevice(dev)
			if err != nil {
				return nil, err
			}
			listing.Devices = append(listing.Devices, p)
		}
		out = append(out, listing)
	}
	return out, nil
}

func profileDevice(dev Device) (DeviceProfile, error) {
	var p DeviceProfile
	var err error

	if p.DeviceIdentity, err = dev.Identity(); err != nil {
		return DeviceProfile{}, fromDriver("query device identity", KindUnknown, err)
	}
	if p.GlobalMemSize, err = dev.GlobalMemSize(); err != nil {
		return DeviceProfile{}, fromDriver("query global memory", KindUnknown, err)
	}
	if p.MaxWorkGroupSize, err = dev.MaxWorkGroupSize(); err != nil {
		return DeviceProfile{}, fromDriver("query max work-group size", KindUnknown, err)
	}

	dims, err := dev.MaxWorkItemDimensions()
	if err != nil {
		return DeviceProfile{}, fromDriver("query max dimensions", KindUnknown, err)
	}
	p.MaxDimensions = min(dims, MaxDimensions)

	sizes, err := dev.MaxWorkItemSizes(p.MaxDimensions)
	if err != nil {
		return DeviceProfile{}, fromDriver("query max work-item sizes", KindUnknown, err)
	}
	copy(p.MaxWorkItemSizes[:], sizes[:min(len(sizes), p.MaxDimensions)])

	return p, nil
}
