package main

import (
	"context"
	"fmt"

	"github.com/cwbudde/clcore/internal/backend"
	"github.com/cwbudde/clcore/internal/compute"
	"github.com/cwbudde/clcore/internal/kcache"
)

// openCore initialises a compute core from the loaded configuration.
func openCore() (*compute.Core, error) {
	drv, err := backend.Open(cfg.Backend)
	if err != nil {
		return nil, err
	}

	opts := []compute.Option{
		compute.WithLogger(logger),
		compute.WithBuildOptions(cfg.BuildOptions),
	}
	if cfg.CacheDir != "" {
		store, err := kcache.NewFSStore(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open program cache: %w", err)
		}
		opts = append(opts, compute.WithCache(store))
	}

	return compute.New(drv, opts...)
}

// addKernel registers the kernel at path, or the embedded kernel named entry
// when path is empty.
func addKernel(ctx context.Context, core *compute.Core, path, entry string) (int, error) {
	if path != "" {
		return core.AddProgram(ctx, path, entry)
	}
	source, err := kernelSource(entry)
	if err != nil {
		return -1, fmt.Errorf("embedded kernel %s: %w", entry, err)
	}
	return core.AddProgramSource(ctx, entry+".cl", source, entry)
}

// finish drains the queue, bounded by the configured timeout.
func finish(ctx context.Context, core *compute.Core) error {
	timeout, _ := cfg.Timeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return core.Finish(ctx)
}

func resolveAll(core *compute.Core, handles ...int) ([]compute.Param, error) {
	params := make([]compute.Param, 0, len(handles))
	for _, h := range handles {
		p, err := core.ResolveParameter(h)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
