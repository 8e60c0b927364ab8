package compute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwbudde/clcore/internal/kcache"
)

type programEntry struct {
	name       string
	entryPoint string
	program    Program
	kernel     Kernel
	numArgs    int
	cached     bool
}

func (p *programEntry) release() error {
	kerr := p.kernel.Release()
	perr := p.program.Release()
	return errors.Join(kerr, perr)
}

// AddProgram reads the kernel source at path, builds it for every device of
// the context and resolves entryPoint. An empty entryPoint defaults to the file
// name without its extension. The returned index is stable for the Core's
// lifetime.
func (c *Core) AddProgram(ctx context.Context, path, entryPoint string) (int, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("add program %s: %w", path, err)
	}
	if entryPoint == "" {
		base := filepath.Base(path)
		entryPoint = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return c.AddProgramSource(ctx, path, string(source), entryPoint)
}

// AddProgramSource is AddProgram for in-memory source. name identifies the
// program in diagnostics.
func (c *Core) AddProgramSource(ctx context.Context, name, source, entryPoint string) (int, error) {
	_, span := tracer.Start(ctx, "compute.AddProgram", trace.WithAttributes(
		attribute.String("core.id", c.id),
		attribute.String("program.name", name),
		attribute.String("program.entry_point", entryPoint),
	))
	defer span.End()

	idx, err := c.addProgram(name, source, entryPoint)
	if err != nil {
		programBuilds.WithLabelValues("failed").Inc()
		recordSpanError(span, err)
		return -1, err
	}
	span.SetAttributes(attribute.Int("program.index", idx))
	return idx, nil
}

func (c *Core) addProgram(name, source, entryPoint string) (int, error) {
	if entryPoint == "" {
		return -1, &Error{Kind: KindBackendRejection, Op: "add program " + name, Status: StatusInvalidKernelName, Msg: "empty entry point"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return -1, err
	}

	start := time.Now()
	program, cached, err := c.buildProgram(name, source, entryPoint)
	if err != nil {
		return -1, err
	}

	kernel, err := program.CreateKernel(entryPoint)
	if err != nil {
		_ = program.Release()
		return -1, fromDriver("create kernel "+entryPoint, KindUnknown, err)
	}

	numArgs, err := kernel.NumArgs()
	if err != nil {
		_ = kernel.Release()
		_ = program.Release()
		return -1, fromDriver("query kernel "+entryPoint, KindUnknown, err)
	}

	c.programs = append(c.programs, &programEntry{
		name:       name,
		entryPoint: entryPoint,
		program:    program,
		kernel:     kernel,
		numArgs:    numArgs,
		cached:     cached,
	})
	idx := len(c.programs) - 1

	result := "compiled"
	if cached {
		result = "cached"
	}
	programBuilds.WithLabelValues(result).Inc()
	c.log.Debug("Program registered",
		"index", idx,
		"name", name,
		"entry_point", entryPoint,
		"args", numArgs,
		"cached", cached,
		"elapsed", time.Since(start),
	)
	return idx, nil
}

// buildProgram returns a built program, loading it from the binary cache when
// possible. Cache failures only cost a recompile.
func (c *Core) buildProgram(name, source, entryPoint string) (Program, bool, error) {
	var key string
	if c.opts.cache != nil {
		key = c.cacheKey(source, entryPoint)
		if program, ok := c.loadCached(key); ok {
			return program, true, nil
		}
	}

	op := "build program " + name
	program, err := c.context.CreateProgram(source)
	if err != nil {
		return nil, false, fromDriver(op, KindUnknown, err)
	}

	if err := program.Build(c.devices, c.opts.buildOptions); err != nil {
		buildLog := c.buildLogs(program)
		out := fromDriver(op, KindUnknown, err)
		var e *Error
		if errors.As(out, &e) {
			e.Log = buildLog
		}
		c.log.Error("Program build failed", "name", name, "error", err, "log", buildLog)
		_ = program.Release()
		return nil, false, out
	}

	if c.opts.cache != nil {
		c.storeCached(key, name, entryPoint, program)
	}
	return program, false, nil
}

func (c *Core) cacheKey(source, entryPoint string) string {
	parts := make([]string, 0, len(c.profiles)+4)
	parts = append(parts, c.driver.Name())
	for _, p := range c.profiles {
		parts = append(parts, p.Name+"/"+p.Version)
	}
	return kcache.Key(append(parts, c.opts.buildOptions, entryPoint, source)...)
}

func (c *Core) loadCached(key string) (Program, bool) {
	entry, err := c.opts.cache.Load(key)
	if err != nil {
		if !errors.Is(err, kcache.ErrNotFound) {
			c.log.Warn("Program cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	if len(entry.Binaries) != len(c.devices) {
		c.log.Warn("Program cache entry does not match device set", "key", key)
		return nil, false
	}

	program, err := c.context.CreateProgramWithBinary(c.devices, entry.Binaries)
	if err != nil {
		c.log.Warn("Cached program binary rejected", "key", key, "error", err)
		return nil, false
	}
	if err := program.Build(c.devices, c.opts.buildOptions); err != nil {
		c.log.Warn("Cached program failed to build", "key", key, "error", err)
		_ = program.Release()
		return nil, false
	}
	return program, true
}

func (c *Core) storeCached(key, name, entryPoint string, program Program) {
	binaries, err := program.Binaries()
	if err != nil {
		c.log.Warn("Program binaries unavailable for cache", "name", name, "error", err)
		return
	}

	devices := make([]string, len(c.profiles))
	for i, p := range c.profiles {
		devices[i] = p.Name
	}
	entry := &kcache.Entry{
		Key:        key,
		Name:       name,
		EntryPoint: entryPoint,
		Devices:    devices,
		Options:    c.opts.buildOptions,
		Binaries:   binaries,
		Created:    time.Now(),
	}
	if err := c.opts.cache.Save(entry); err != nil {
		c.log.Warn("Program cache save failed", "key", key, "error", err)
	}
}

// buildLogs collects the non-empty build log of every context device.
func (c *Core) buildLogs(program Program) string {
	var b strings.Builder
	for i, dev := range c.devices {
		log, err := program.BuildLog(dev)
		if err != nil || strings.TrimSpace(log) == "" {
			continue
		}
		if len(c.devices) > 1 {
			fmt.Fprintf(&b, "[%s]\n", c.profiles[i].Name)
		}
		b.WriteString(strings.TrimRight(log, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// Program describes the program registered at index.
func (c *Core) Program(index int) (ProgramInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return ProgramInfo{}, err
	}

	p, err := c.programAt("program", index)
	if err != nil {
		return ProgramInfo{}, err
	}
	return ProgramInfo{
		Index:      index,
		Name:       p.name,
		EntryPoint: p.entryPoint,
		NumArgs:    p.numArgs,
		Cached:     p.cached,
	}, nil
}

// ProgramCount returns the number of registered programs.
func (c *Core) ProgramCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs)
}

func (c *Core) programAt(op string, index int) (*programEntry, error) {
	if index < 0 || index >= len(c.programs) {
		return nil, notFound(op, fmt.Sprintf("program %d not found", index))
	}
	return c.programs[index], nil
}
