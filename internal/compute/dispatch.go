package compute

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Execute binds params to the kernel of program by position and enqueues one
// launch over a dims-dimensional index space of global work-items split into
// work-groups of local items. A nil local lets the driver pick the work-group
// shape.
//
// Execute returns once the launch is queued. A later copy on the same Core
// observes the kernel's writes; Finish waits for completion.
func (c *Core) Execute(ctx context.Context, program int, params []Param, dims int, global, local []int) error {
	_, span := tracer.Start(ctx, "compute.Execute", trace.WithAttributes(
		attribute.String("core.id", c.id),
		attribute.Int("program.index", program),
		attribute.Int("dispatch.dims", dims),
		attribute.IntSlice("dispatch.global", global),
		attribute.IntSlice("dispatch.local", local),
		attribute.Int("dispatch.params", len(params)),
	))
	defer span.End()

	if err := c.execute(ctx, program, params, dims, global, local); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

func (c *Core) execute(ctx context.Context, program int, params []Param, dims int, global, local []int) error {
	const op = "execute"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	p, err := c.programAt(op, program)
	if err != nil {
		return err
	}
	if err := checkShape(c.profiles[0], dims, global, local); err != nil {
		return err
	}
	if len(params) != p.numArgs {
		return shapeMismatch(op, StatusInvalidKernelArgs,
			fmt.Sprintf("kernel %s takes %d arguments, got %d", p.entryPoint, p.numArgs, len(params)))
	}

	for i, param := range params {
		arg, err := c.bindArg(i, param)
		if err != nil {
			return err
		}
		if err := p.kernel.SetArg(i, arg); err != nil {
			return fromDriver(fmt.Sprintf("bind argument %d of %s", i, p.entryPoint), KindShapeMismatch, err)
		}
	}

	var ls []int
	if local != nil {
		ls = local[:dims]
	}
	if err := c.queue.EnqueueKernel(p.kernel, dims, global[:dims], ls); err != nil {
		kind := KindBackendRejection
		switch StatusOf(err) {
		case StatusInvalidWorkDimension, StatusInvalidWorkGroupSize, StatusInvalidWorkItemSize,
			StatusInvalidGlobalWorkSize, StatusInvalidKernelArgs:
			kind = KindShapeMismatch
		}
		return fromDriver("enqueue "+p.entryPoint, kind, err)
	}

	dispatches.WithLabelValues(p.entryPoint).Inc()
	return nil
}

func (c *Core) bindArg(index int, p Param) (KernelArg, error) {
	switch p.kind {
	case ParamBuffer:
		e, ok := c.buffers.lookup(p.handle)
		if !ok || e.mem != p.mem {
			return KernelArg{}, notFound("execute", fmt.Sprintf("argument %d: buffer %d not found", index, p.handle))
		}
		return KernelArg{Mem: e.mem}, nil
	case ParamScalar:
		return KernelArg{Value: p.value}, nil
	default:
		return KernelArg{}, shapeMismatch("execute", StatusInvalidArgValue, fmt.Sprintf("argument %d is not set", index))
	}
}

// checkShape validates an index space against the queue device's profile.
func checkShape(dev DeviceProfile, dims int, global, local []int) error {
	const op = "execute"

	if dims < 1 || dims > dev.MaxDimensions {
		return shapeMismatch(op, StatusInvalidWorkDimension,
			fmt.Sprintf("%d dimensions requested, device supports 1..%d", dims, dev.MaxDimensions))
	}
	if len(global) < dims {
		return shapeMismatch(op, StatusInvalidGlobalWorkSize,
			fmt.Sprintf("global shape %v has fewer than %d dimensions", global, dims))
	}
	for d := range dims {
		if global[d] <= 0 {
			return shapeMismatch(op, StatusInvalidGlobalWorkSize,
				fmt.Sprintf("global size %d in dimension %d", global[d], d))
		}
	}
	if local == nil {
		return nil
	}

	if len(local) < dims {
		return shapeMismatch(op, StatusInvalidWorkGroupSize,
			fmt.Sprintf("local shape %v has fewer than %d dimensions", local, dims))
	}
	items := 1
	for d := range dims {
		if local[d] <= 0 || global[d]%local[d] != 0 {
			return shapeMismatch(op, StatusInvalidWorkGroupSize,
				fmt.Sprintf("local size %d does not divide global size %d in dimension %d", local[d], global[d], d))
		}
		if local[d] > dev.MaxWorkItemSizes[d] {
			return shapeMismatch(op, StatusInvalidWorkItemSize,
				fmt.Sprintf("local size %d exceeds device maximum %d in dimension %d", local[d], dev.MaxWorkItemSizes[d], d))
		}
		items *= local[d]
	}
	if items > dev.MaxWorkGroupSize {
		return shapeMismatch(op, StatusInvalidWorkGroupSize,
			fmt.Sprintf("work-group of %d items exceeds device maximum %d", items, dev.MaxWorkGroupSize))
	}
	return nil
}
