//go:build !gpu

package opencl

import (
	"errors"

	"github.com/cwbudde/clcore/internal/compute"
)

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

// Driver is a placeholder when OpenCL support is not compiled.
type Driver struct{}

// New returns ErrNotBuilt when OpenCL support is not compiled in.
func New() (*Driver, error) {
	return nil, ErrNotBuilt
}

func (d *Driver) Name() string { return "opencl" }

// Platforms returns ErrNotBuilt when OpenCL support is not compiled in.
func (d *Driver) Platforms() ([]compute.Platform, error) {
	return nil, ErrNotBuilt
}
