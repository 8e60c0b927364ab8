package main

import "embed"

// kernelFS holds the OpenCL C sources of the demo kernels.
//
//go:embed kernels/*.cl
var kernelFS embed.FS

func kernelSource(name string) (string, error) {
	b, err := kernelFS.ReadFile("kernels/" + name + ".cl")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
