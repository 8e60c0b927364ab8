package compute

import "fmt"

// Status is a numeric status code reported by a compute backend. Values follow
// the OpenCL cl_int error codes so that every driver reports failures in the
// same vocabulary.
type Status int32

const (
	StatusSuccess                   Status = 0
	StatusDeviceNotFound            Status = -1
	StatusDeviceNotAvailable        Status = -2
	StatusCompilerNotAvailable      Status = -3
	StatusMemObjectAllocationFailed Status = -4
	StatusOutOfResources            Status = -5
	StatusOutOfHostMemory           Status = -6
	StatusBuildProgramFailure       Status = -11
	StatusInvalidValue              Status = -30
	StatusInvalidDeviceType         Status = -31
	StatusInvalidPlatform           Status = -32
	StatusInvalidDevice             Status = -33
	StatusInvalidContext            Status = -34
	StatusInvalidQueueProperties    Status = -35
	StatusInvalidCommandQueue       Status = -36
	StatusInvalidHostPtr            Status = -37
	StatusInvalidMemObject          Status = -38
	StatusInvalidBinary             Status = -42
	StatusInvalidBuildOptions       Status = -43
	StatusInvalidProgram            Status = -44
	StatusInvalidProgramExecutable  Status = -45
	StatusInvalidKernelName         Status = -46
	StatusInvalidKernelDefinition   Status = -47
	StatusInvalidKernel             Status = -48
	StatusInvalidArgIndex           Status = -49
	StatusInvalidArgValue           Status = -50
	StatusInvalidArgSize            Status = -51
	StatusInvalidKernelArgs         Status = -52
	StatusInvalidWorkDimension      Status = -53
	StatusInvalidWorkGroupSize      Status = -54
	StatusInvalidWorkItemSize       Status = -55
	StatusInvalidGlobalOffset       Status = -56
	StatusInvalidOperation          Status = -59
	StatusInvalidBufferSize         Status = -61
	StatusInvalidGlobalWorkSize     Status = -63
	StatusPlatformNotFound          Status = -1001
)

var statusNames = map[Status]string{
	StatusSuccess:                   "CL_SUCCESS",
	StatusDeviceNotFound:            "CL_DEVICE_NOT_FOUND",
	StatusDeviceNotAvailable:        "CL_DEVICE_NOT_AVAILABLE",
	StatusCompilerNotAvailable:      "CL_COMPILER_NOT_AVAILABLE",
	StatusMemObjectAllocationFailed: "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	StatusOutOfResources:            "CL_OUT_OF_RESOURCES",
	StatusOutOfHostMemory:           "CL_OUT_OF_HOST_MEMORY",
	-7:                              "CL_PROFILING_INFO_NOT_AVAILABLE",
	-8:                              "CL_MEM_COPY_OVERLAP",
	-9:                              "CL_IMAGE_FORMAT_MISMATCH",
	-10:                             "CL_IMAGE_FORMAT_NOT_SUPPORTED",
	StatusBuildProgramFailure:       "CL_BUILD_PROGRAM_FAILURE",
	-12:                             "CL_MAP_FAILURE",
	StatusInvalidValue:              "CL_INVALID_VALUE",
	StatusInvalidDeviceType:         "CL_INVALID_DEVICE_TYPE",
	StatusInvalidPlatform:           "CL_INVALID_PLATFORM",
	StatusInvalidDevice:             "CL_INVALID_DEVICE",
	StatusInvalidContext:            "CL_INVALID_CONTEXT",
	StatusInvalidQueueProperties:    "CL_INVALID_QUEUE_PROPERTIES",
	StatusInvalidCommandQueue:       "CL_INVALID_COMMAND_QUEUE",
	StatusInvalidHostPtr:            "CL_INVALID_HOST_PTR",
	StatusInvalidMemObject:          "CL_INVALID_MEM_OBJECT",
	-39:                             "CL_INVALID_IMAGE_FORMAT_DESCRIPTOR",
	-40:                             "CL_INVALID_IMAGE_SIZE",
	-41:                             "CL_INVALID_SAMPLER",
	StatusInvalidBinary:             "CL_INVALID_BINARY",
	StatusInvalidBuildOptions:       "CL_INVALID_BUILD_OPTIONS",
	StatusInvalidProgram:            "CL_INVALID_PROGRAM",
	StatusInvalidProgramExecutable:  "CL_INVALID_PROGRAM_EXECUTABLE",
	StatusInvalidKernelName:         "CL_INVALID_KERNEL_NAME",
	StatusInvalidKernelDefinition:   "CL_INVALID_KERNEL_DEFINITION",
	StatusInvalidKernel:             "CL_INVALID_KERNEL",
	StatusInvalidArgIndex:           "CL_INVALID_ARG_INDEX",
	StatusInvalidArgValue:           "CL_INVALID_ARG_VALUE",
	StatusInvalidArgSize:            "CL_INVALID_ARG_SIZE",
	StatusInvalidKernelArgs:         "CL_INVALID_KERNEL_ARGS",
	StatusInvalidWorkDimension:      "CL_INVALID_WORK_DIMENSION",
	StatusInvalidWorkGroupSize:      "CL_INVALID_WORK_GROUP_SIZE",
	StatusInvalidWorkItemSize:       "CL_INVALID_WORK_ITEM_SIZE",
	StatusInvalidGlobalOffset:       "CL_INVALID_GLOBAL_OFFSET",
	-57:                             "CL_INVALID_EVENT_WAIT_LIST",
	-58:                             "CL_INVALID_EVENT",
	StatusInvalidOperation:          "CL_INVALID_OPERATION",
	-60:                             "CL_INVALID_GL_OBJECT",
	StatusInvalidBufferSize:         "CL_INVALID_BUFFER_SIZE",
	-62:                             "CL_INVALID_MIP_LEVEL",
	StatusInvalidGlobalWorkSize:     "CL_INVALID_GLOBAL_WORK_SIZE",
	StatusPlatformNotFound:          "CL_PLATFORM_NOT_FOUND_KHR",
}

// Name returns the symbolic CL_* name of the status.
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "CL_UNKNOWN_ERROR"
}

func (s Status) String() string {
	return fmt.Sprintf("%s (%d)", s.Name(), int32(s))
}
