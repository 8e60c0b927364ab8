// Package backend maps backend names from flags and config files to compute
// drivers.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/clcore/internal/compute"
	"github.com/cwbudde/clcore/internal/compute/opencl"
	"github.com/cwbudde/clcore/internal/compute/sim"
)

// Backend identifies a compute driver implementation.
type Backend string

const (
	BackendSim    Backend = "sim"
	BackendOpenCL Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// Normalize maps arbitrary user input to a canonical backend identifier.
func Normalize(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sim", "simulator", "cpu":
		return BackendSim
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// Supported returns the list of backends understood by Open.
func Supported() []Backend {
	return []Backend{BackendSim, BackendOpenCL}
}

// Valid reports whether name normalizes to a supported backend.
func Valid(name string) bool {
	b := Normalize(name)
	for _, s := range Supported() {
		if b == s {
			return true
		}
	}
	return false
}

// Open constructs the driver for the named backend.
func Open(name string) (compute.Driver, error) {
	switch Normalize(name) {
	case BackendSim:
		return sim.NewDefault(), nil
	case BackendOpenCL:
		drv, err := opencl.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
