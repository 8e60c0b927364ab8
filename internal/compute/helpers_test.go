package compute_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clcore/internal/compute"
	"github.com/cwbudde/clcore/internal/compute/sim"
)

const (
	vaddSource = `
// c = a + b
__kernel void vadd(__global const float *a, __global const float *b, __global float *c)
{
    const int i = get_global_id(0) + get_global_size(0) * get_global_id(1);
    c[i] = a[i] + b[i];
}
`
	fillSource = `
__kernel void fill(__global float *dst, const float value)
{
    dst[get_global_id(0) + get_global_size(0) * get_global_id(1)] = value;
}
`
	dMultSource = `
__kernel void dMult(__global const float *a, __global const float *b, __global float *c)
{
    const int col = get_global_id(0);
    const int row = get_global_id(1);
    const int n = get_global_size(0);
    float sum = 0.0f;
    for (int k = 0; k < n; k++) {
        sum += a[row * n + k] * b[k * n + col];
    }
    c[row * n + col] = sum;
}
`
)

func newCore(t *testing.T, drv *sim.Driver, opts ...compute.Option) *compute.Core {
	t.Helper()
	core, err := compute.New(drv, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func newDefaultCore(t *testing.T, opts ...compute.Option) (*compute.Core, *sim.Driver) {
	t.Helper()
	drv := sim.NewDefault()
	return newCore(t, drv, opts...), drv
}

func gpu(name string, sizes ...int) sim.DeviceSpec {
	d := sim.DefaultGPU()
	d.Name = name
	if len(sizes) > 0 {
		d.MaxWorkItemSizes = sizes
	}
	return d
}

func cpu(name string) sim.DeviceSpec {
	d := sim.DefaultGPU()
	d.Name = name
	d.Type = compute.DeviceTypeCPU
	return d
}

func configWith(platforms ...sim.PlatformSpec) sim.Config {
	return sim.Config{Platforms: platforms, Kernels: sim.Builtins()}
}

func addProgram(t *testing.T, core *compute.Core, source, entry string) int {
	t.Helper()
	idx, err := core.AddProgramSource(context.Background(), entry+".cl", source, entry)
	require.NoError(t, err)
	return idx
}

func createFloats(t *testing.T, core *compute.Core, mode compute.AccessMode, values []float32) int {
	t.Helper()
	h, err := core.CreateBuffer(len(values)*4, mode, compute.AsBytes(values))
	require.NoError(t, err)
	return h
}

func readFloats(t *testing.T, core *compute.Core, h, n int) []float32 {
	t.Helper()
	out := make([]float32, n)
	require.NoError(t, core.CopyDeviceToHost(context.Background(), h, n*4, compute.AsBytes(out)))
	return out
}

func params(t *testing.T, core *compute.Core, handles ...int) []compute.Param {
	t.Helper()
	out := make([]compute.Param, len(handles))
	for i, h := range handles {
		p, err := core.ResolveParameter(h)
		require.NoError(t, err)
		out[i] = p
	}
	return out
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// requireStatus asserts err is a compute error of the given kind and status.
func requireStatus(t *testing.T, err error, kind error, status compute.Status) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	require.Equal(t, status, compute.StatusOf(err), "error: %v", err)
}
