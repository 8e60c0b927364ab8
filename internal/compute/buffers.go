package compute

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type bufferEntry struct {
	mem  Mem
	mode AccessMode
	size int
}

// bufferTable maps handles to live device allocations. Callers hold Core.mu.
type bufferTable struct {
	ids     handleAllocator
	entries map[int]*bufferEntry
}

func newBufferTable() *bufferTable {
	return &bufferTable{entries: make(map[int]*bufferEntry)}
}

func (t *bufferTable) insert(e *bufferEntry) int {
	h := t.ids.acquire()
	t.entries[h] = e
	return h
}

func (t *bufferTable) lookup(h int) (*bufferEntry, bool) {
	e, ok := t.entries[h]
	return e, ok
}

func (t *bufferTable) remove(h int) (*bufferEntry, bool) {
	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	delete(t.entries, h)
	t.ids.release(h)
	return e, true
}

func (t *bufferTable) len() int { return len(t.entries) }

func (t *bufferTable) handles() []int {
	hs := make([]int, 0, len(t.entries))
	for h := range t.entries {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	return hs
}

// releaseAll frees every allocation in handle order and empties the table.
func (t *bufferTable) releaseAll() []error {
	var errs []error
	for _, h := range t.handles() {
		e := t.entries[h]
		if err := e.mem.Release(); err != nil {
			errs = append(errs, err)
		}
		untrackBuffer(e.size)
	}
	t.entries = make(map[int]*bufferEntry)
	t.ids.reset()
	return errs
}

// CreateBuffer allocates size bytes of device memory and returns its handle.
// When initial is non-nil the allocation is seeded with its first size bytes.
func (c *Core) CreateBuffer(size int, mode AccessMode, initial []byte) (int, error) {
	const op = "create buffer"

	if !mode.Valid() {
		return -1, &Error{Kind: KindBackendRejection, Op: op, Status: StatusInvalidValue, Msg: fmt.Sprintf("invalid access mode %d", mode)}
	}
	if size <= 0 {
		return -1, &Error{Kind: KindBackendRejection, Op: op, Status: StatusInvalidBufferSize, Msg: fmt.Sprintf("size %d", size)}
	}
	if initial != nil && len(initial) < size {
		return -1, &Error{Kind: KindBackendRejection, Op: op, Status: StatusInvalidHostPtr, Msg: fmt.Sprintf("initial data holds %d of %d bytes", len(initial), size)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return -1, err
	}

	mem, err := c.context.CreateBuffer(mode, size, initial)
	if err != nil {
		return -1, fromDriver(op, KindUnknown, err)
	}

	h := c.buffers.insert(&bufferEntry{mem: mem, mode: mode, size: size})
	trackBuffer(size)
	c.log.Debug("Buffer created", "handle", h, "size", size, "mode", mode.String(), "seeded", initial != nil)
	return h, nil
}

// ReleaseBuffer frees the allocation behind h and makes h available again.
func (c *Core) ReleaseBuffer(h int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	e, ok := c.buffers.lookup(h)
	if !ok {
		return notFound("release buffer", fmt.Sprintf("buffer %d not found", h))
	}
	// The handle stays bound until the device memory is actually gone.
	if err := e.mem.Release(); err != nil {
		return fromDriver("release buffer", KindUnknown, err)
	}
	c.buffers.remove(h)
	untrackBuffer(e.size)
	c.log.Debug("Buffer released", "handle", h, "size", e.size)
	return nil
}

// Buffer describes the live buffer h.
func (c *Core) Buffer(h int) (BufferInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return BufferInfo{}, err
	}

	e, ok := c.buffers.lookup(h)
	if !ok {
		return BufferInfo{}, notFound("buffer", fmt.Sprintf("buffer %d not found", h))
	}
	return BufferInfo{Handle: h, Size: e.size, Mode: e.mode}, nil
}

// LiveBuffers lists every live buffer in handle order.
func (c *Core) LiveBuffers() []BufferInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]BufferInfo, 0, c.buffers.len())
	for _, h := range c.buffers.handles() {
		e := c.buffers.entries[h]
		out = append(out, BufferInfo{Handle: h, Size: e.size, Mode: e.mode})
	}
	return out
}

// CopyHostToDevice writes the first size bytes of src into buffer h at offset
// 0 and returns once the transfer completed.
func (c *Core) CopyHostToDevice(ctx context.Context, h, size int, src []byte) error {
	return c.copy(ctx, "copy host to device", directionToDevice, h, size, src)
}

// CopyDeviceToHost reads size bytes from buffer h at offset 0 into dst and
// returns once the transfer completed. Commands submitted earlier, kernels
// included, complete before the read.
func (c *Core) CopyDeviceToHost(ctx context.Context, h, size int, dst []byte) error {
	return c.copy(ctx, "copy device to host", directionToHost, h, size, dst)
}

func (c *Core) copy(ctx context.Context, op, direction string, h, size int, host []byte) error {
	_, span := tracer.Start(ctx, "compute.Copy", trace.WithAttributes(
		attribute.String("core.id", c.id),
		attribute.String("copy.direction", direction),
		attribute.Int("buffer.handle", h),
		attribute.Int("copy.bytes", size),
	))
	defer span.End()

	err := c.copyLocked(ctx, op, direction, h, size, host)
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (c *Core) copyLocked(ctx context.Context, op, direction string, h, size int, host []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	e, ok := c.buffers.lookup(h)
	if !ok {
		return notFound(op, fmt.Sprintf("buffer %d not found", h))
	}
	if size < 0 || size > e.size || size > len(host) {
		return &Error{
			Kind:   KindBackendRejection,
			Op:     op,
			Status: StatusInvalidValue,
			Msg:    fmt.Sprintf("%d bytes requested, buffer %d holds %d, host slice holds %d", size, h, e.size, len(host)),
		}
	}
	if size == 0 {
		return nil
	}

	var err error
	if direction == directionToDevice {
		err = c.queue.Write(e.mem, 0, host[:size])
	} else {
		err = c.queue.Read(e.mem, 0, host[:size])
	}
	if err != nil {
		return fromDriver(op, KindUnknown, err)
	}

	copyBytes.WithLabelValues(direction).Add(float64(size))
	return nil
}

// ResolveParameter returns the dispatch parameter that binds buffer h as a
// kernel argument.
func (c *Core) ResolveParameter(h int) (Param, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return Param{}, err
	}

	e, ok := c.buffers.lookup(h)
	if !ok {
		return Param{}, notFound("resolve parameter", fmt.Sprintf("buffer %d not found", h))
	}
	return Param{kind: ParamBuffer, handle: h, mem: e.mem}, nil
}
