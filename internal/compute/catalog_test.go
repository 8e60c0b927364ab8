package compute_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clcore/internal/compute"
	"github.com/cwbudde/clcore/internal/compute/sim"
)

func TestDiscoverSelectsGPUsOfFirstPlatform(t *testing.T) {
	drv := sim.New(configWith(
		sim.PlatformSpec{Name: "first", Devices: []sim.DeviceSpec{cpu("host"), gpu("gpu0"), gpu("gpu1")}},
		sim.PlatformSpec{Name: "second", Devices: []sim.DeviceSpec{gpu("other")}},
	))

	info, profiles, err := compute.Discover(drv)
	require.NoError(t, err)
	assert.Equal(t, "first", info.Name)
	require.Len(t, profiles, 2)
	assert.Equal(t, "gpu0", profiles[0].Name)
	assert.Equal(t, "gpu1", profiles[1].Name)
	for _, p := range profiles {
		assert.Equal(t, compute.DeviceTypeGPU, p.Type)
		assert.Equal(t, 256, p.MaxWorkGroupSize)
		assert.Equal(t, uint64(1<<30), p.GlobalMemSize)
	}
}

func TestDiscoverClampsDimensions(t *testing.T) {
	drv := sim.New(configWith(sim.PlatformSpec{
		Name:    "wide",
		Devices: []sim.DeviceSpec{gpu("five-d", 1024, 512, 64, 16, 8)},
	}))

	_, profiles, err := compute.Discover(drv)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, 3, p.MaxDimensions)
	assert.Equal(t, [compute.MaxDimensions]int{1024, 512, 64}, p.MaxWorkItemSizes)
	// The sizes query is bounded by the clamped count, never the reported one.
	assert.Equal(t, []int{3}, drv.WorkItemSizeQueries())
}

func TestDiscoverFewerDimensions(t *testing.T) {
	drv := sim.New(configWith(sim.PlatformSpec{
		Name:    "flat",
		Devices: []sim.DeviceSpec{gpu("two-d", 128, 64)},
	}))

	_, profiles, err := compute.Discover(drv)
	require.NoError(t, err)
	assert.Equal(t, 2, profiles[0].MaxDimensions)
	assert.Equal(t, [compute.MaxDimensions]int{128, 64, 0}, profiles[0].MaxWorkItemSizes)
}

func TestDiscoverNoPlatforms(t *testing.T) {
	drv := sim.New(sim.Config{})

	_, _, err := compute.Discover(drv)
	requireStatus(t, err, compute.ErrDiscovery, compute.StatusPlatformNotFound)

	_, err = compute.New(drv)
	require.ErrorIs(t, err, compute.ErrDiscovery)
	assert.Zero(t, drv.LiveTotal())
}

func TestDiscoverNoGPU(t *testing.T) {
	drv := sim.New(configWith(
		sim.PlatformSpec{Name: "cpu only", Devices: []sim.DeviceSpec{cpu("host")}},
		sim.PlatformSpec{Name: "has gpu", Devices: []sim.DeviceSpec{gpu("gpu0")}},
	))

	_, _, err := compute.Discover(drv)
	requireStatus(t, err, compute.ErrDiscovery, compute.StatusDeviceNotFound)
	assert.Contains(t, err.Error(), `"cpu only"`)

	_, err = compute.New(drv)
	require.ErrorIs(t, err, compute.ErrDiscovery)
	assert.Zero(t, drv.LiveTotal())
	assert.Empty(t, drv.Events())
}

func TestListPlatformsIncludesEveryDevice(t *testing.T) {
	drv := sim.New(configWith(
		sim.PlatformSpec{Name: "first", Devices: []sim.DeviceSpec{cpu("host"), gpu("gpu0")}},
		sim.PlatformSpec{Name: "second"},
	))

	listings, err := compute.ListPlatforms(drv)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "first", listings[0].Info.Name)
	require.Len(t, listings[0].Devices, 2)
	assert.Equal(t, compute.DeviceTypeCPU, listings[0].Devices[0].Type)
	assert.Equal(t, compute.DeviceTypeGPU, listings[0].Devices[1].Type)
	assert.Empty(t, listings[1].Devices)
	assert.Zero(t, drv.LiveTotal())
}
