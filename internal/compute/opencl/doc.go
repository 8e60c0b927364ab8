// Package opencl binds the compute driver interfaces to the system OpenCL
// runtime through cgo. It targets OpenCL 1.2 and is only compiled with the gpu
// build tag; other builds get a stub whose New reports ErrNotBuilt.
package opencl
