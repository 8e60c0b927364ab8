//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static cl_command_queue clcore_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
	return clCreateCommandQueue(ctx, device, 0, status);
}

static cl_context clcore_create_context(cl_platform_id platform, cl_uint n, const cl_device_id *devices, cl_int *status) {
	cl_context_properties props[] = {CL_CONTEXT_PLATFORM, (cl_context_properties)platform, 0};
	return clCreateContext(props, n, devices, NULL, NULL, status);
}

static unsigned char **clcore_alloc_binaries(const size_t *sizes, size_t n) {
	unsigned char **bins = calloc(n, sizeof(unsigned char *));
	for (size_t i = 0; i < n; i++) {
		bins[i] = malloc(sizes[i] > 0 ? sizes[i] : 1);
	}
	return bins;
}

static void clcore_free_binaries(unsigned char **bins, size_t n) {
	for (size_t i = 0; i < n; i++) {
		free(bins[i]);
	}
	free(bins);
}

static unsigned char *clcore_binary_at(unsigned char **bins, size_t i) {
	return bins[i];
}

static void clcore_set_binary(unsigned char **bins, size_t i, unsigned char *b) {
	bins[i] = b;
}

static cl_program clcore_program_with_binary(cl_context ctx, cl_uint n, const cl_device_id *devices,
		const size_t *lengths, unsigned char **bins, cl_int *status) {
	return clCreateProgramWithBinary(ctx, n, devices, lengths, (const unsigned char **)bins, NULL, status);
}
*/
import "C"

import (
	"strings"
	"unsafe"

	"github.com/cwbudde/clcore/internal/compute"
)

// Driver talks to the OpenCL ICD loader.
type Driver struct{}

// New returns the OpenCL driver.
func New() (*Driver, error) {
	return &Driver{}, nil
}

func (d *Driver) Name() string { return "opencl" }

func (d *Driver) Platforms() ([]compute.Platform, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status == C.cl_int(compute.StatusPlatformNotFound) || (status == C.CL_SUCCESS && count == 0) {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]compute.Platform, len(ids))
	for i, id := range ids {
		out[i] = &platform{id: id}
	}
	return out, nil
}

type platform struct {
	id C.cl_platform_id
}

func (p *platform) Info() (compute.PlatformInfo, error) {
	var info compute.PlatformInfo
	for param, dst := range map[C.cl_platform_info]*string{
		C.CL_PLATFORM_NAME:    &info.Name,
		C.CL_PLATFORM_VENDOR:  &info.Vendor,
		C.CL_PLATFORM_VERSION: &info.Version,
	} {
		v, err := platformString(p.id, param)
		if err != nil {
			return compute.PlatformInfo{}, err
		}
		*dst = v
	}
	return info, nil
}

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	clType := deviceTypeFlags(t)

	var count C.cl_uint
	status := C.clGetDeviceIDs(p.id, clType, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND || (status == C.CL_SUCCESS && count == 0) {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(p.id, clType, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]compute.Device, len(ids))
	for i, id := range ids {
		out[i] = &device{id: id}
	}
	return out, nil
}

func (p *platform) CreateContext(devices []compute.Device) (compute.Context, error) {
	ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}

	var status C.cl_int
	ctx := C.clcore_create_context(p.id, C.cl_uint(len(ids)), &ids[0], &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}
	return &clContext{id: ctx}, nil
}

type device struct {
	id C.cl_device_id
}

func (d *device) Identity() (compute.DeviceIdentity, error) {
	var id compute.DeviceIdentity
	for param, dst := range map[C.cl_device_info]*string{
		C.CL_DEVICE_NAME:    &id.Name,
		C.CL_DEVICE_VENDOR:  &id.Vendor,
		C.CL_DEVICE_VERSION: &id.Version,
	} {
		v, err := deviceString(d.id, param)
		if err != nil {
			return compute.DeviceIdentity{}, err
		}
		*dst = v
	}

	var rawType C.cl_device_type
	status := C.clGetDeviceInfo(d.id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if status != C.CL_SUCCESS {
		return compute.DeviceIdentity{}, statusError("clGetDeviceInfo(type)", status)
	}

	id.Type = deviceType(rawType)
	return id, nil
}

func (d *device) GlobalMemSize() (uint64, error) {
	var v C.cl_ulong
	status := C.clGetDeviceInfo(d.id, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetDeviceInfo(globalMemSize)", status)
	}
	return uint64(v), nil
}

func (d *device) MaxWorkGroupSize() (int, error) {
	var v C.size_t
	status := C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetDeviceInfo(maxWorkGroupSize)", status)
	}
	return int(v), nil
}

func (d *device) MaxWorkItemDimensions() (int, error) {
	var v C.cl_uint
	status := C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetDeviceInfo(maxWorkItemDimensions)", status)
	}
	return int(v), nil
}

// MaxWorkItemSizes reads the full per-dimension array, which the runtime
// requires, and returns its first dims entries.
func (d *device) MaxWorkItemSizes(dims int) ([]int, error) {
	reported, err := d.MaxWorkItemDimensions()
	if err != nil {
		return nil, err
	}
	if dims < 0 || dims > reported {
		return nil, compute.StatusError("clGetDeviceInfo(maxWorkItemSizes)", compute.StatusInvalidValue)
	}
	if reported == 0 {
		return nil, nil
	}

	raw := make([]C.size_t, reported)
	size := C.size_t(uintptr(reported) * unsafe.Sizeof(raw[0]))
	status := C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_ITEM_SIZES, size, unsafe.Pointer(&raw[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceInfo(maxWorkItemSizes)", status)
	}

	out := make([]int, dims)
	for i := range out {
		out[i] = int(raw[i])
	}
	return out, nil
}

type clContext struct {
	id C.cl_context
}

func (c *clContext) CreateQueue(dev compute.Device) (compute.Queue, error) {
	d, ok := dev.(*device)
	if !ok {
		return nil, compute.StatusError("clCreateCommandQueue", compute.StatusInvalidDevice)
	}

	var status C.cl_int
	q := C.clcore_create_queue(c.id, d.id, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateCommandQueue", status)
	}
	return &queue{id: q}, nil
}

func (c *clContext) CreateBuffer(mode compute.AccessMode, size int, host []byte) (compute.Mem, error) {
	flags := memFlags(mode)
	var ptr unsafe.Pointer
	if host != nil {
		flags |= C.CL_MEM_COPY_HOST_PTR
		ptr = unsafe.Pointer(&host[0])
	}

	var status C.cl_int
	m := C.clCreateBuffer(c.id, flags, C.size_t(size), ptr, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateBuffer", status)
	}
	return &mem{id: m, size: size}, nil
}

func (c *clContext) CreateProgram(source string) (compute.Program, error) {
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	var status C.cl_int
	p := C.clCreateProgramWithSource(c.id, 1, &src, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}
	return &program{id: p}, nil
}

func (c *clContext) CreateProgramWithBinary(devices []compute.Device, binaries [][]byte) (compute.Program, error) {
	ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}
	if len(binaries) != len(ids) {
		return nil, compute.StatusError("clCreateProgramWithBinary", compute.StatusInvalidValue)
	}

	n := C.size_t(len(binaries))
	lengths := make([]C.size_t, len(binaries))
	bins := C.clcore_alloc_binaries(&lengths[0], n)
	defer C.clcore_free_binaries(bins, n)
	for i, b := range binaries {
		if len(b) == 0 {
			return nil, compute.StatusError("clCreateProgramWithBinary", compute.StatusInvalidBinary)
		}
		lengths[i] = C.size_t(len(b))
		C.free(unsafe.Pointer(C.clcore_binary_at(bins, C.size_t(i))))
		C.clcore_set_binary(bins, C.size_t(i), (*C.uchar)(C.CBytes(b)))
	}

	var status C.cl_int
	p := C.clcore_program_with_binary(c.id, C.cl_uint(len(ids)), &ids[0], &lengths[0], bins, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithBinary", status)
	}
	return &program{id: p}, nil
}

func (c *clContext) Release() error {
	if status := C.clReleaseContext(c.id); status != C.CL_SUCCESS {
		return statusError("clReleaseContext", status)
	}
	return nil
}

type queue struct {
	id C.cl_command_queue
}

func (q *queue) Write(m compute.Mem, offset int, src []byte) error {
	cm, ok := m.(*mem)
	if !ok {
		return compute.StatusError("clEnqueueWriteBuffer", compute.StatusInvalidMemObject)
	}
	if len(src) == 0 {
		return nil
	}
	status := C.clEnqueueWriteBuffer(q.id, cm.id, C.CL_TRUE, C.size_t(offset), C.size_t(len(src)), unsafe.Pointer(&src[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueWriteBuffer", status)
	}
	return nil
}

func (q *queue) Read(m compute.Mem, offset int, dst []byte) error {
	cm, ok := m.(*mem)
	if !ok {
		return compute.StatusError("clEnqueueReadBuffer", compute.StatusInvalidMemObject)
	}
	if len(dst) == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(q.id, cm.id, C.CL_TRUE, C.size_t(offset), C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

func (q *queue) EnqueueKernel(k compute.Kernel, dims int, global, local []int) error {
	ck, ok := k.(*kernel)
	if !ok {
		return compute.StatusError("clEnqueueNDRangeKernel", compute.StatusInvalidKernel)
	}

	var gs, ls [compute.MaxDimensions]C.size_t
	for d := 0; d < dims && d < compute.MaxDimensions; d++ {
		gs[d] = C.size_t(global[d])
	}
	var localPtr *C.size_t
	if local != nil {
		for d := 0; d < dims && d < compute.MaxDimensions; d++ {
			ls[d] = C.size_t(local[d])
		}
		localPtr = &ls[0]
	}

	status := C.clEnqueueNDRangeKernel(q.id, ck.id, C.cl_uint(dims), nil, &gs[0], localPtr, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

func (q *queue) Finish() error {
	if status := C.clFinish(q.id); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (q *queue) Release() error {
	if status := C.clReleaseCommandQueue(q.id); status != C.CL_SUCCESS {
		return statusError("clReleaseCommandQueue", status)
	}
	return nil
}

type program struct {
	id C.cl_program
}

func (p *program) Build(devices []compute.Device, options string) error {
	var ids []C.cl_device_id
	if len(devices) > 0 {
		var err error
		if ids, err = deviceIDs(devices); err != nil {
			return err
		}
	}

	var opts *C.char
	if options != "" {
		opts = C.CString(options)
		defer C.free(unsafe.Pointer(opts))
	}

	var idPtr *C.cl_device_id
	if len(ids) > 0 {
		idPtr = &ids[0]
	}
	status := C.clBuildProgram(p.id, C.cl_uint(len(ids)), idPtr, opts, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clBuildProgram", status)
	}
	return nil
}

func (p *program) BuildLog(dev compute.Device) (string, error) {
	d, ok := dev.(*device)
	if !ok {
		return "", compute.StatusError("clGetProgramBuildInfo", compute.StatusInvalidDevice)
	}

	return queryString("clGetProgramBuildInfo", func(size C.size_t, value unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetProgramBuildInfo(p.id, d.id, C.CL_PROGRAM_BUILD_LOG, size, value, sizeRet)
	})
}

func (p *program) Binaries() ([][]byte, error) {
	var n C.cl_uint
	status := C.clGetProgramInfo(p.id, C.CL_PROGRAM_NUM_DEVICES, C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramInfo(numDevices)", status)
	}
	if n == 0 {
		return nil, nil
	}

	sizes := make([]C.size_t, int(n))
	status = C.clGetProgramInfo(p.id, C.CL_PROGRAM_BINARY_SIZES, C.size_t(uintptr(n)*unsafe.Sizeof(sizes[0])), unsafe.Pointer(&sizes[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramInfo(binarySizes)", status)
	}

	bins := C.clcore_alloc_binaries(&sizes[0], C.size_t(n))
	defer C.clcore_free_binaries(bins, C.size_t(n))

	ptrSize := C.size_t(uintptr(n) * unsafe.Sizeof(uintptr(0)))
	status = C.clGetProgramInfo(p.id, C.CL_PROGRAM_BINARIES, ptrSize, unsafe.Pointer(bins), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramInfo(binaries)", status)
	}

	out := make([][]byte, int(n))
	for i := range out {
		out[i] = C.GoBytes(unsafe.Pointer(C.clcore_binary_at(bins, C.size_t(i))), C.int(sizes[i]))
	}
	return out, nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	k := C.clCreateKernel(p.id, cname, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateKernel", status)
	}
	return &kernel{id: k}, nil
}

func (p *program) Release() error {
	if status := C.clReleaseProgram(p.id); status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

type kernel struct {
	id C.cl_kernel
}

func (k *kernel) NumArgs() (int, error) {
	var v C.cl_uint
	status := C.clGetKernelInfo(k.id, C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetKernelInfo(numArgs)", status)
	}
	return int(v), nil
}

func (k *kernel) SetArg(index int, arg compute.KernelArg) error {
	var status C.cl_int
	switch {
	case arg.Mem != nil:
		cm, ok := arg.Mem.(*mem)
		if !ok {
			return compute.StatusError("clSetKernelArg", compute.StatusInvalidMemObject)
		}
		id := cm.id
		status = C.clSetKernelArg(k.id, C.cl_uint(index), C.size_t(unsafe.Sizeof(id)), unsafe.Pointer(&id))
	case len(arg.Value) > 0:
		status = C.clSetKernelArg(k.id, C.cl_uint(index), C.size_t(len(arg.Value)), unsafe.Pointer(&arg.Value[0]))
	default:
		return compute.StatusError("clSetKernelArg", compute.StatusInvalidArgValue)
	}
	if status != C.CL_SUCCESS {
		return statusError("clSetKernelArg", status)
	}
	return nil
}

func (k *kernel) Release() error {
	if status := C.clReleaseKernel(k.id); status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

type mem struct {
	id   C.cl_mem
	size int
}

func (m *mem) Size() int { return m.size }

func (m *mem) Release() error {
	if status := C.clReleaseMemObject(m.id); status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

func deviceIDs(devices []compute.Device) ([]C.cl_device_id, error) {
	if len(devices) == 0 {
		return nil, compute.StatusError("device list", compute.StatusInvalidValue)
	}
	ids := make([]C.cl_device_id, len(devices))
	for i, dev := range devices {
		d, ok := dev.(*device)
		if !ok {
			return nil, compute.StatusError("device list", compute.StatusInvalidDevice)
		}
		ids[i] = d.id
	}
	return ids, nil
}

func memFlags(mode compute.AccessMode) C.cl_mem_flags {
	switch mode {
	case compute.ReadOnly:
		return C.CL_MEM_READ_ONLY
	case compute.WriteOnly:
		return C.CL_MEM_WRITE_ONLY
	default:
		return C.CL_MEM_READ_WRITE
	}
}

func deviceTypeFlags(t compute.DeviceType) C.cl_device_type {
	switch t {
	case compute.DeviceTypeGPU:
		return C.CL_DEVICE_TYPE_GPU
	case compute.DeviceTypeCPU:
		return C.CL_DEVICE_TYPE_CPU
	case compute.DeviceTypeAccelerator:
		return C.CL_DEVICE_TYPE_ACCELERATOR
	case compute.DeviceTypeDefault:
		return C.CL_DEVICE_TYPE_DEFAULT
	default:
		return C.CL_DEVICE_TYPE_ALL
	}
}

func deviceType(dt C.cl_device_type) compute.DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return compute.DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return compute.DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return compute.DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return compute.DeviceTypeDefault
	default:
		return compute.DeviceTypeUnknown
	}
}

// infoQuery is one clGet*Info call with the object and parameter bound.
type infoQuery func(size C.size_t, value unsafe.Pointer, sizeRet *C.size_t) C.cl_int

// queryString runs q twice, once for the length and once for the value, and
// returns the value without its NUL terminator.
func queryString(op string, q infoQuery) (string, error) {
	var size C.size_t
	if status := q(0, nil, &size); status != C.CL_SUCCESS {
		return "", statusError(op+"(size)", status)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if status := q(size, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return "", statusError(op+"(value)", status)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

func platformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	return queryString("clGetPlatformInfo", func(size C.size_t, value unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetPlatformInfo(id, param, size, value, sizeRet)
	})
}

func deviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	return queryString("clGetDeviceInfo", func(size C.size_t, value unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetDeviceInfo(id, param, size, value, sizeRet)
	})
}

func statusError(op string, status C.cl_int) error {
	return compute.StatusError(op, compute.Status(status))
}
