package sim

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cwbudde/clcore/internal/compute"
)

// Driver is the simulated backend. It also records what it was asked to do so
// tests can inspect resource lifetimes.
type Driver struct {
	cfg       Config
	kernels   map[string]KernelDef
	platforms []*platform

	mu          sync.Mutex
	live        map[string]int
	events      []string
	sizeQueries []int
	builds      int
	binaryLoads int
}

// New returns a driver simulating cfg.
func New(cfg Config) *Driver {
	d := &Driver{
		cfg:     cfg,
		kernels: make(map[string]KernelDef, len(cfg.Kernels)),
		live:    make(map[string]int),
	}
	for _, k := range cfg.Kernels {
		d.kernels[k.Name] = k
	}
	for _, ps := range cfg.Platforms {
		p := &platform{drv: d, spec: ps}
		for _, ds := range ps.Devices {
			p.devices = append(p.devices, &device{drv: d, platform: p, spec: ds})
		}
		d.platforms = append(d.platforms, p)
	}
	return d
}

// NewDefault returns a driver simulating DefaultConfig.
func NewDefault() *Driver { return New(DefaultConfig()) }

func (d *Driver) Name() string { return "sim" }

func (d *Driver) Platforms() ([]compute.Platform, error) {
	out := make([]compute.Platform, len(d.platforms))
	for i, p := range d.platforms {
		out[i] = p
	}
	return out, nil
}

// Live returns the number of live objects of a kind: "context", "queue",
// "program", "kernel" or "mem".
func (d *Driver) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveTotal returns the number of live objects of every kind.
func (d *Driver) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, v := range d.live {
		n += v
	}
	return n
}

// Events returns the create/release log, e.g. "create mem" or "release queue".
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// WorkItemSizeQueries returns the dims argument of every MaxWorkItemSizes call.
func (d *Driver) WorkItemSizeQueries() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.sizeQueries)
}

// SourceBuilds counts successful builds of programs created from source.
func (d *Driver) SourceBuilds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.builds
}

// BinaryLoads counts successful builds of programs created from binaries.
func (d *Driver) BinaryLoads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.binaryLoads
}

// created and released are called with d.mu held.
func (d *Driver) created(kind string) {
	d.live[kind]++
	d.events = append(d.events, "create "+kind)
}

func (d *Driver) released(kind string) {
	d.live[kind]--
	d.events = append(d.events, "release "+kind)
}

type platform struct {
	drv     *Driver
	spec    PlatformSpec
	devices []*device
}

func (p *platform) Info() (compute.PlatformInfo, error) {
	return compute.PlatformInfo{Name: p.spec.Name, Vendor: p.spec.Vendor, Version: p.spec.Version}, nil
}

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	var out []compute.Device
	for _, dev := range p.devices {
		if t == compute.DeviceTypeAll || dev.spec.Type == t {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (p *platform) CreateContext(devices []compute.Device) (compute.Context, error) {
	const op = "clCreateContext"

	if s := p.drv.cfg.FailCreateContext; s != compute.StatusSuccess {
		return nil, compute.StatusError(op, s)
	}
	if len(devices) == 0 {
		return nil, compute.StatusErrorf(op, compute.StatusInvalidValue, "no devices")
	}

	ctx := &simContext{drv: p.drv, capacity: ^uint64(0)}
	for _, d := range devices {
		dev, ok := d.(*device)
		if !ok || dev.platform != p {
			return nil, compute.StatusError(op, compute.StatusInvalidDevice)
		}
		ctx.devices = append(ctx.devices, dev)
		ctx.capacity = min(ctx.capacity, dev.spec.GlobalMemSize)
	}

	p.drv.mu.Lock()
	p.drv.created("context")
	p.drv.mu.Unlock()
	return ctx, nil
}

type device struct {
	drv      *Driver
	platform *platform
	spec     DeviceSpec
}

func (d *device) Identity() (compute.DeviceIdentity, error) {
	return compute.DeviceIdentity{
		Name:    d.spec.Name,
		Vendor:  d.spec.Vendor,
		Version: d.spec.Version,
		Type:    d.spec.Type,
	}, nil
}

func (d *device) GlobalMemSize() (uint64, error) { return d.spec.GlobalMemSize, nil }

func (d *device) MaxWorkGroupSize() (int, error) { return d.spec.MaxWorkGroupSize, nil }

func (d *device) MaxWorkItemDimensions() (int, error) { return len(d.spec.MaxWorkItemSizes), nil }

func (d *device) MaxWorkItemSizes(dims int) ([]int, error) {
	d.drv.mu.Lock()
	d.drv.sizeQueries = append(d.drv.sizeQueries, dims)
	d.drv.mu.Unlock()

	if dims < 0 || dims > len(d.spec.MaxWorkItemSizes) {
		return nil, compute.StatusErrorf("clGetDeviceInfo", compute.StatusInvalidValue,
			fmt.Sprintf("%d work-item sizes requested, device reports %d", dims, len(d.spec.MaxWorkItemSizes)))
	}
	return slices.Clone(d.spec.MaxWorkItemSizes[:dims]), nil
}

// dims is the dimensionality the simulator executes, at most three.
func (d *device) dims() int {
	return min(len(d.spec.MaxWorkItemSizes), compute.MaxDimensions)
}

type simContext struct {
	drv      *Driver
	devices  []*device
	capacity uint64

	// guarded by drv.mu
	used     uint64
	released bool
}

func (c *simContext) has(d compute.Device) (*device, bool) {
	dev, ok := d.(*device)
	if !ok {
		return nil, false
	}
	return dev, slices.Contains(c.devices, dev)
}

func (c *simContext) CreateQueue(d compute.Device) (compute.Queue, error) {
	const op = "clCreateCommandQueue"

	if s := c.drv.cfg.FailCreateQueue; s != compute.StatusSuccess {
		return nil, compute.StatusError(op, s)
	}
	dev, ok := c.has(d)
	if !ok {
		return nil, compute.StatusError(op, compute.StatusInvalidDevice)
	}

	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.released {
		return nil, compute.StatusError(op, compute.StatusInvalidContext)
	}
	c.drv.created("queue")
	return newQueue(c, dev), nil
}

func (c *simContext) CreateBuffer(mode compute.AccessMode, size int, host []byte) (compute.Mem, error) {
	const op = "clCreateBuffer"

	if !mode.Valid() {
		return nil, compute.StatusError(op, compute.StatusInvalidValue)
	}
	if size <= 0 {
		return nil, compute.StatusError(op, compute.StatusInvalidBufferSize)
	}
	if host != nil && len(host) < size {
		return nil, compute.StatusError(op, compute.StatusInvalidHostPtr)
	}

	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.released {
		return nil, compute.StatusError(op, compute.StatusInvalidContext)
	}
	if c.used+uint64(size) > c.capacity {
		return nil, compute.StatusErrorf(op, compute.StatusMemObjectAllocationFailed,
			fmt.Sprintf("%d bytes requested, %d of %d in use", size, c.used, c.capacity))
	}

	m := &mem{ctx: c, mode: mode, data: make([]byte, size)}
	if host != nil {
		copy(m.data, host[:size])
	}
	c.used += uint64(size)
	c.drv.created("mem")
	return m, nil
}

func (c *simContext) CreateProgram(source string) (compute.Program, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.released {
		return nil, compute.StatusError("clCreateProgramWithSource", compute.StatusInvalidContext)
	}
	c.drv.created("program")
	return &program{ctx: c, source: source}, nil
}

func (c *simContext) CreateProgramWithBinary(devices []compute.Device, binaries [][]byte) (compute.Program, error) {
	const op = "clCreateProgramWithBinary"

	if len(devices) == 0 || len(devices) != len(binaries) {
		return nil, compute.StatusErrorf(op, compute.StatusInvalidValue,
			fmt.Sprintf("%d devices, %d binaries", len(devices), len(binaries)))
	}
	var source string
	for i, d := range devices {
		if _, ok := c.has(d); !ok {
			return nil, compute.StatusError(op, compute.StatusInvalidDevice)
		}
		src, err := decodeBinary(binaries[i])
		if err != nil {
			return nil, compute.StatusErrorf(op, compute.StatusInvalidBinary, err.Error())
		}
		if i > 0 && src != source {
			return nil, compute.StatusErrorf(op, compute.StatusInvalidBinary, "binaries disagree")
		}
		source = src
	}

	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.released {
		return nil, compute.StatusError(op, compute.StatusInvalidContext)
	}
	c.drv.created("program")
	return &program{ctx: c, source: source, fromBinary: true}, nil
}

func (c *simContext) Release() error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.released {
		return compute.StatusError("clReleaseContext", compute.StatusInvalidContext)
	}
	c.released = true
	c.drv.released("context")
	return nil
}

type mem struct {
	ctx  *simContext
	mode compute.AccessMode
	data []byte

	// guarded by ctx.drv.mu
	released bool
}

func (m *mem) Size() int { return len(m.data) }

func (m *mem) Release() error {
	m.ctx.drv.mu.Lock()
	defer m.ctx.drv.mu.Unlock()
	if m.released {
		return compute.StatusError("clReleaseMemObject", compute.StatusInvalidMemObject)
	}
	if s := m.ctx.drv.cfg.FailReleaseMem; s != compute.StatusSuccess {
		return compute.StatusError("clReleaseMemObject", s)
	}
	m.released = true
	m.ctx.used -= uint64(len(m.data))
	m.ctx.drv.released("mem")
	return nil
}

// liveMem resolves a Mem of context c that has not been released.
func (c *simContext) liveMem(m compute.Mem) (*mem, bool) {
	sm, ok := m.(*mem)
	if !ok || sm.ctx != c {
		return nil, false
	}
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return sm, !sm.released
}
