//go:build !gpu

package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenOpenCLWithoutGPUTag(t *testing.T) {
	_, err := Open("opencl")
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
