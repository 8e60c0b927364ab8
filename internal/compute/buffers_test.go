package compute_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clcore/internal/compute"
	"github.com/cwbudde/clcore/internal/compute/sim"
)

func TestCreateBufferHandlesAreDistinct(t *testing.T) {
	core, drv := newDefaultCore(t)

	seen := make(map[int]bool)
	for i := range 5 {
		h, err := core.CreateBuffer(64, compute.ReadWrite, nil)
		require.NoError(t, err)
		assert.Equal(t, i, h)
		assert.False(t, seen[h], "handle %d issued twice", h)
		seen[h] = true

		p, err := core.ResolveParameter(h)
		require.NoError(t, err)
		assert.Equal(t, compute.ParamBuffer, p.Kind())
		assert.Equal(t, h, p.Handle())
	}
	assert.Equal(t, 5, drv.Live("mem"))
	assert.Len(t, core.LiveBuffers(), 5)
}

func TestReleasedHandleIsReused(t *testing.T) {
	core, drv := newDefaultCore(t)
	for range 5 {
		_, err := core.CreateBuffer(16, compute.ReadWrite, nil)
		require.NoError(t, err)
	}

	require.NoError(t, core.ReleaseBuffer(3))
	require.NoError(t, core.ReleaseBuffer(1))
	assert.Equal(t, 3, drv.Live("mem"))

	for _, want := range []int{1, 3, 5} {
		h, err := core.CreateBuffer(16, compute.ReadWrite, nil)
		require.NoError(t, err)
		assert.Equal(t, want, h)
	}
}

func TestBufferInfo(t *testing.T) {
	core, _ := newDefaultCore(t)
	h, err := core.CreateBuffer(128, compute.WriteOnly, nil)
	require.NoError(t, err)

	info, err := core.Buffer(h)
	require.NoError(t, err)
	assert.Equal(t, compute.BufferInfo{Handle: h, Size: 128, Mode: compute.WriteOnly}, info)

	_, err = core.Buffer(h + 1)
	assert.ErrorIs(t, err, compute.ErrHandleNotFound)
}

func TestCopyRoundTrip(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	src := make([]byte, 4096)
	rng.Read(src)

	h, err := core.CreateBuffer(len(src), compute.ReadWrite, nil)
	require.NoError(t, err)
	require.NoError(t, core.CopyHostToDevice(ctx, h, len(src), src))

	dst := make([]byte, len(src))
	require.NoError(t, core.CopyDeviceToHost(ctx, h, len(dst), dst))
	assert.True(t, bytes.Equal(src, dst))
}

func TestCreateBufferSeeded(t *testing.T) {
	core, _ := newDefaultCore(t)
	values := []float32{1.5, -2, 3.25, 0}
	h := createFloats(t, core, compute.ReadOnly, values)
	assert.Equal(t, values, readFloats(t, core, h, len(values)))
}

func TestPartialCopy(t *testing.T) {
	core, _ := newDefaultCore(t)
	h := createFloats(t, core, compute.ReadWrite, filled(8, 1))

	require.NoError(t, core.CopyHostToDevice(context.Background(), h, 8, compute.AsBytes([]float32{9, 9, 9, 9})))
	assert.Equal(t, []float32{9, 9, 1, 1, 1, 1, 1, 1}, readFloats(t, core, h, 8))
}

func TestUnknownHandle(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()

	live := createFloats(t, core, compute.ReadWrite, filled(4, 5))
	released := createFloats(t, core, compute.ReadWrite, filled(4, 6))
	require.NoError(t, core.ReleaseBuffer(released))

	for _, h := range []int{released, 42, -1} {
		dst := []byte{1, 2, 3, 4}
		err := core.CopyDeviceToHost(ctx, h, 4, dst)
		assert.ErrorIs(t, err, compute.ErrHandleNotFound, "handle %d", h)
		assert.Equal(t, []byte{1, 2, 3, 4}, dst, "no partial transfer for handle %d", h)

		assert.ErrorIs(t, core.CopyHostToDevice(ctx, h, 4, dst), compute.ErrHandleNotFound)
		_, err = core.ResolveParameter(h)
		assert.ErrorIs(t, err, compute.ErrHandleNotFound)
		assert.ErrorIs(t, core.ReleaseBuffer(h), compute.ErrHandleNotFound)
	}

	// Other buffers are unaffected.
	assert.Equal(t, filled(4, 5), readFloats(t, core, live, 4))
}

func TestCreateBufferValidation(t *testing.T) {
	core, drv := newDefaultCore(t)

	tests := []struct {
		name    string
		size    int
		mode    compute.AccessMode
		initial []byte
		status  compute.Status
	}{
		{"zero size", 0, compute.ReadWrite, nil, compute.StatusInvalidBufferSize},
		{"negative size", -4, compute.ReadWrite, nil, compute.StatusInvalidBufferSize},
		{"invalid mode", 16, compute.AccessMode(0), nil, compute.StatusInvalidValue},
		{"short initial data", 16, compute.ReadOnly, make([]byte, 8), compute.StatusInvalidHostPtr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := core.CreateBuffer(tt.size, tt.mode, tt.initial)
			assert.Equal(t, -1, h)
			requireStatus(t, err, compute.ErrBackendRejection, tt.status)
		})
	}
	assert.Zero(t, drv.Live("mem"))
}

func TestCreateBufferAllocationFailure(t *testing.T) {
	dev := gpu("small")
	dev.GlobalMemSize = 1024
	core := newCore(t, sim.New(configWith(sim.PlatformSpec{Name: "p", Devices: []sim.DeviceSpec{dev}})))

	_, err := core.CreateBuffer(1000, compute.ReadWrite, nil)
	require.NoError(t, err)

	_, err = core.CreateBuffer(100, compute.ReadWrite, nil)
	requireStatus(t, err, compute.ErrBackendRejection, compute.StatusMemObjectAllocationFailed)

	// The failed allocation consumed no handle.
	require.NoError(t, core.ReleaseBuffer(0))
	h, err := core.CreateBuffer(100, compute.ReadWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, h)
}

func TestCopyBounds(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()
	h := createFloats(t, core, compute.ReadWrite, filled(4, 0))

	err := core.CopyHostToDevice(ctx, h, 32, make([]byte, 32))
	requireStatus(t, err, compute.ErrBackendRejection, compute.StatusInvalidValue)

	err = core.CopyDeviceToHost(ctx, h, 16, make([]byte, 8))
	requireStatus(t, err, compute.ErrBackendRejection, compute.StatusInvalidValue)

	require.NoError(t, core.CopyDeviceToHost(ctx, h, 0, nil))
}

func TestCopyCancelledContext(t *testing.T) {
	core, _ := newDefaultCore(t)
	h := createFloats(t, core, compute.ReadWrite, filled(4, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := core.CopyDeviceToHost(ctx, h, 16, make([]byte, 16))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseBufferFailureKeepsHandle(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.FailReleaseMem = compute.StatusOutOfResources
	drv := sim.New(cfg)
	core := newCore(t, drv)

	h := createFloats(t, core, compute.ReadWrite, filled(4, 7))
	err := core.ReleaseBuffer(h)
	requireStatus(t, err, compute.ErrBackendRejection, compute.StatusOutOfResources)

	// The allocation is still live, so its handle stays bound and is not reissued.
	assert.Equal(t, 1, drv.Live("mem"))
	info, err := core.Buffer(h)
	require.NoError(t, err)
	assert.Equal(t, 16, info.Size)
	assert.Equal(t, filled(4, 7), readFloats(t, core, h, 4))

	next, err := core.CreateBuffer(16, compute.ReadWrite, nil)
	require.NoError(t, err)
	assert.NotEqual(t, h, next)
}
