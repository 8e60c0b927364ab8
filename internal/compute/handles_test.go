package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleAllocatorReusesSmallest(t *testing.T) {
	var a handleAllocator
	for want := range 4 {
		assert.Equal(t, want, a.acquire())
	}

	a.release(2)
	a.release(0)
	a.release(3)
	assert.Equal(t, 0, a.acquire())
	assert.Equal(t, 2, a.acquire())
	assert.Equal(t, 3, a.acquire())
	assert.Equal(t, 4, a.acquire())

	a.reset()
	assert.Equal(t, 0, a.acquire())
}

func TestCheckShape(t *testing.T) {
	dev := DeviceProfile{
		MaxWorkGroupSize: 64,
		MaxDimensions:    2,
		MaxWorkItemSizes: [MaxDimensions]int{64, 16},
	}

	tests := []struct {
		name   string
		dims   int
		global []int
		local  []int
		status Status
	}{
		{"ok", 2, []int{64, 64}, []int{8, 8}, StatusSuccess},
		{"driver chooses local", 1, []int{7}, nil, StatusSuccess},
		{"extra trailing sizes ignored", 1, []int{64, 0}, []int{8, 0}, StatusSuccess},
		{"beyond device dimensions", 3, []int{4, 4, 4}, nil, StatusInvalidWorkDimension},
		{"negative global", 1, []int{-8}, nil, StatusInvalidGlobalWorkSize},
		{"indivisible", 1, []int{10}, []int{3}, StatusInvalidWorkGroupSize},
		{"item limit", 2, []int{64, 32}, []int{1, 32}, StatusInvalidWorkItemSize},
		{"group limit", 2, []int{64, 64}, []int{16, 8}, StatusInvalidWorkGroupSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkShape(dev, tt.dims, tt.global, tt.local)
			if tt.status == StatusSuccess {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrShapeMismatch)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}
