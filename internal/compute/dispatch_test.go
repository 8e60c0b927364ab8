package compute_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/clcore/internal/compute"
)

func TestVectorAdd(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()
	const n = 16

	idx := addProgram(t, core, vaddSource, "vadd")
	a := createFloats(t, core, compute.ReadOnly, filled(n, 1))
	b := createFloats(t, core, compute.ReadOnly, filled(n, 2))
	c, err := core.CreateBuffer(n*4, compute.WriteOnly, nil)
	require.NoError(t, err)

	require.NoError(t, core.Execute(ctx, idx, params(t, core, a, b, c), 1, []int{n}, []int{4}))
	require.NoError(t, core.Finish(ctx))
	assert.Equal(t, filled(n, 3), readFloats(t, core, c, n))
}

func TestVectorAddDriverChosenLocalSize(t *testing.T) {
	core, _ := newDefaultCore(t)
	const n = 100

	idx := addProgram(t, core, vaddSource, "vadd")
	a := createFloats(t, core, compute.ReadOnly, filled(n, 4))
	b := createFloats(t, core, compute.ReadOnly, filled(n, -1))
	c := createFloats(t, core, compute.WriteOnly, filled(n, 0))

	require.NoError(t, core.Execute(context.Background(), idx, params(t, core, a, b, c), 2, []int{10, 10}, nil))
	assert.Equal(t, filled(n, 3), readFloats(t, core, c, n))
}

func TestMatrixMultiply(t *testing.T) {
	core, _ := newDefaultCore(t)
	const n = 32

	rng := rand.New(rand.NewSource(1337))
	hostA := make([]float32, n*n)
	hostB := make([]float32, n*n)
	for i := range hostA {
		hostA[i] = float32(rng.Intn(100)) / 100
		hostB[i] = float32(rng.Intn(100)) / 100
	}

	idx := addProgram(t, core, dMultSource, "dMult")
	a := createFloats(t, core, compute.ReadOnly, hostA)
	b := createFloats(t, core, compute.ReadOnly, hostB)
	c, err := core.CreateBuffer(n*n*4, compute.WriteOnly, nil)
	require.NoError(t, err)

	require.NoError(t, core.Execute(context.Background(), idx, params(t, core, a, b, c), 2, []int{n, n}, []int{8, 8}))
	got := readFloats(t, core, c, n*n)

	toDense := func(v []float32) *mat.Dense {
		d := make([]float64, len(v))
		for i, x := range v {
			d[i] = float64(x)
		}
		return mat.NewDense(n, n, d)
	}
	var want mat.Dense
	want.Mul(toDense(hostA), toDense(hostB))
	for r := range n {
		for col := range n {
			assert.InDelta(t, want.At(r, col), float64(got[r*n+col]), 1e-3, "c[%d][%d]", r, col)
		}
	}
}

func TestExecuteThenReadSeesKernelOutput(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()
	const n = 64

	idx := addProgram(t, core, fillSource, "fill")
	h := createFloats(t, core, compute.ReadWrite, filled(n, 0))
	dst, err := core.ResolveParameter(h)
	require.NoError(t, err)

	for i := range 20 {
		v := float32(i + 1)
		require.NoError(t, core.Execute(ctx, idx, []compute.Param{dst, compute.ScalarParam(v)}, 1, []int{n}, []int{16}))
		assert.Equal(t, filled(n, v), readFloats(t, core, h, n), "iteration %d", i)
	}
}

func TestExecuteShapeMismatch(t *testing.T) {
	core, drv := newDefaultCore(t)
	ctx := context.Background()
	const n = 1024

	idx := addProgram(t, core, vaddSource, "vadd")
	a := createFloats(t, core, compute.ReadOnly, filled(n, 1))
	b := createFloats(t, core, compute.ReadOnly, filled(n, 2))
	c := createFloats(t, core, compute.WriteOnly, filled(n, 0))
	ps := params(t, core, a, b, c)

	// Default device: work-group limit 256, per-dimension limits (256, 256, 64).
	tests := []struct {
		name   string
		dims   int
		global []int
		local  []int
		status compute.Status
	}{
		{"indivisible", 2, []int{10, 10}, []int{3, 3}, compute.StatusInvalidWorkGroupSize},
		{"zero dimensions", 0, []int{16}, nil, compute.StatusInvalidWorkDimension},
		{"too many dimensions", 4, []int{2, 2, 2, 2}, nil, compute.StatusInvalidWorkDimension},
		{"short global", 2, []int{16}, nil, compute.StatusInvalidGlobalWorkSize},
		{"zero global", 1, []int{0}, nil, compute.StatusInvalidGlobalWorkSize},
		{"short local", 2, []int{16, 16}, []int{4}, compute.StatusInvalidWorkGroupSize},
		{"zero local", 1, []int{16}, []int{0}, compute.StatusInvalidWorkGroupSize},
		{"item size", 3, []int{2, 2, 128}, []int{1, 1, 128}, compute.StatusInvalidWorkItemSize},
		{"group too large", 2, []int{32, 32}, []int{32, 16}, compute.StatusInvalidWorkGroupSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.Execute(ctx, idx, ps, tt.dims, tt.global, tt.local)
			requireStatus(t, err, compute.ErrShapeMismatch, tt.status)
		})
	}

	// Nothing ran.
	assert.Equal(t, filled(n, 0), readFloats(t, core, c, n))
	assert.Equal(t, 3, drv.Live("mem"))
}

func TestExecuteArgumentCountMismatch(t *testing.T) {
	core, _ := newDefaultCore(t)
	idx := addProgram(t, core, vaddSource, "vadd")
	a := createFloats(t, core, compute.ReadOnly, filled(4, 1))
	b := createFloats(t, core, compute.ReadOnly, filled(4, 1))

	err := core.Execute(context.Background(), idx, params(t, core, a, b), 1, []int{4}, nil)
	requireStatus(t, err, compute.ErrShapeMismatch, compute.StatusInvalidKernelArgs)
}

func TestExecuteArgumentTypeMismatch(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()
	idx := addProgram(t, core, fillSource, "fill")
	h := createFloats(t, core, compute.ReadWrite, filled(4, 0))
	p := params(t, core, h)[0]

	tests := []struct {
		name   string
		params []compute.Param
		status compute.Status
	}{
		{"scalar of wrong size", []compute.Param{p, compute.ScalarParam(float64(1))}, compute.StatusInvalidArgSize},
		{"scalar for buffer", []compute.Param{compute.ScalarParam(int32(0)), compute.ScalarParam(float32(1))}, compute.StatusInvalidArgSize},
		{"buffer for scalar", []compute.Param{p, p}, compute.StatusInvalidArgValue},
		{"unset parameter", []compute.Param{p, {}}, compute.StatusInvalidArgValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.Execute(ctx, idx, tt.params, 1, []int{4}, nil)
			requireStatus(t, err, compute.ErrShapeMismatch, tt.status)
		})
	}
}

func TestExecuteStaleParameter(t *testing.T) {
	core, _ := newDefaultCore(t)
	ctx := context.Background()
	idx := addProgram(t, core, fillSource, "fill")

	h := createFloats(t, core, compute.ReadWrite, filled(4, 0))
	stale, err := core.ResolveParameter(h)
	require.NoError(t, err)
	require.NoError(t, core.ReleaseBuffer(h))

	err = core.Execute(ctx, idx, []compute.Param{stale, compute.ScalarParam(float32(1))}, 1, []int{4}, nil)
	assert.ErrorIs(t, err, compute.ErrHandleNotFound)

	// The handle is reissued to a new allocation; the old parameter still
	// does not resolve to it.
	again := createFloats(t, core, compute.ReadWrite, filled(4, 0))
	require.Equal(t, h, again)
	err = core.Execute(ctx, idx, []compute.Param{stale, compute.ScalarParam(float32(1))}, 1, []int{4}, nil)
	assert.ErrorIs(t, err, compute.ErrHandleNotFound)
	assert.Equal(t, filled(4, 0), readFloats(t, core, again, 4))
}

func TestExecuteUnknownProgram(t *testing.T) {
	core, _ := newDefaultCore(t)
	err := core.Execute(context.Background(), 0, nil, 1, []int{1}, nil)
	assert.ErrorIs(t, err, compute.ErrHandleNotFound)
}

func TestExecuteCancelledContext(t *testing.T) {
	core, _ := newDefaultCore(t)
	idx := addProgram(t, core, fillSource, "fill")
	h := createFloats(t, core, compute.ReadWrite, filled(4, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := core.Execute(ctx, idx, []compute.Param{params(t, core, h)[0], compute.ScalarParam(float32(1))}, 1, []int{4}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, filled(4, 0), readFloats(t, core, h, 4))
}
