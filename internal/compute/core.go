package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwbudde/clcore/internal/kcache"
)

var tracer = otel.Tracer("github.com/cwbudde/clcore/internal/compute")

// Core owns one compute context and one in-order command queue, together with
// the program registry and buffer table scoped to them. New is the Init step and
// Close the Shutdown step; several Cores may coexist.
//
// All methods are safe for concurrent use.
type Core struct {
	id     string
	log    *slog.Logger
	driver Driver
	opts   options

	platform PlatformInfo
	profiles []DeviceProfile
	devices  []Device

	mu       sync.Mutex
	context  Context
	queue    Queue
	programs []*programEntry
	buffers  *bufferTable
	closed   bool
}

type options struct {
	logger       *slog.Logger
	buildOptions string
	cache        kcache.Store
}

// Option configures a Core.
type Option func(*options)

// WithLogger sets the logger. By default the Core logs nothing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBuildOptions sets the compiler options passed to every program build.
func WithBuildOptions(opts string) Option {
	return func(o *options) { o.buildOptions = opts }
}

// WithCache enables the program binary cache.
func WithCache(s kcache.Store) Option {
	return func(o *options) { o.cache = s }
}

// New discovers devices and creates the context and command queue. The context
// spans every GPU device of the first platform; the queue is bound to the first
// of them. On failure nothing stays allocated.
func New(driver Driver, opts ...Option) (*Core, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.New().String()
	log := o.logger.With("core_id", id, "backend", driver.Name())

	sel, err := discover(driver)
	if err != nil {
		log.Error("Device discovery failed", "error", err)
		return nil, err
	}

	ctx, err := sel.platform.CreateContext(sel.devices)
	if err != nil {
		return nil, fromDriver("create context", KindUnknown, err)
	}

	queue, err := ctx.CreateQueue(sel.devices[0])
	if err != nil {
		if rerr := ctx.Release(); rerr != nil {
			log.Warn("Failed to release context", "error", rerr)
		}
		return nil, fromDriver("create command queue", KindUnknown, err)
	}

	c := &Core{
		id:       id,
		log:      log,
		driver:   driver,
		opts:     o,
		platform: sel.info,
		profiles: sel.profiles,
		devices:  sel.devices,
		context:  ctx,
		queue:    queue,
		buffers:  newBufferTable(),
	}

	log.Info("Compute core initialised",
		"platform", sel.info.Name,
		"devices", len(sel.devices),
		"queue_device", sel.profiles[0].Name,
		"global_mem", sel.profiles[0].GlobalMemSize,
		"max_work_group", sel.profiles[0].MaxWorkGroupSize,
	)
	return c, nil
}

// ID returns the Core's unique instance id.
func (c *Core) ID() string { return c.id }

// Platform returns the platform the context was created on.
func (c *Core) Platform() PlatformInfo { return c.platform }

// Devices returns the profiles of every device in the context. The first
// profile is the device the command queue is bound to.
func (c *Core) Devices() []DeviceProfile {
	out := make([]DeviceProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// QueueDevice returns the profile of the device that executes submitted work.
func (c *Core) QueueDevice() DeviceProfile { return c.profiles[0] }

// Finish blocks until every command submitted so far has completed or ctx is
// done. A cancelled ctx stops the wait only; work already on the device keeps
// running.
func (c *Core) Finish(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "compute.Finish", trace.WithAttributes(attribute.String("core.id", c.id)))
	defer span.End()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	queue := c.queue
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- queue.Finish() }()

	select {
	case err := <-done:
		if err != nil {
			err = fromDriver("finish", KindUnknown, err)
			recordSpanError(span, err)
		}
		return err
	case <-ctx.Done():
		err := fmt.Errorf("finish: %w", ctx.Err())
		recordSpanError(span, err)
		c.log.Warn("Queue drain abandoned", "error", ctx.Err())
		return err
	}
}

// Close releases every program, then every buffer, then the queue and the
// context. It is idempotent. The first release error is returned after all
// resources were visited.
func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error

	if err := c.queue.Finish(); err != nil {
		errs = append(errs, fromDriver("finish", KindUnknown, err))
	}

	for _, p := range c.programs {
		if err := p.release(); err != nil {
			errs = append(errs, fromDriver("release program "+p.name, KindUnknown, err))
		}
	}
	programs := len(c.programs)
	c.programs = nil

	buffers := c.buffers.len()
	for _, err := range c.buffers.releaseAll() {
		errs = append(errs, fromDriver("release buffer", KindUnknown, err))
	}

	if err := c.queue.Release(); err != nil {
		errs = append(errs, fromDriver("release command queue", KindUnknown, err))
	}
	if err := c.context.Release(); err != nil {
		errs = append(errs, fromDriver("release context", KindUnknown, err))
	}

	c.log.Info("Compute core shut down", "programs", programs, "buffers", buffers)
	return errors.Join(errs...)
}

func (c *Core) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
