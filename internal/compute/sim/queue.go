package sim

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/clcore/internal/compute"
)

const queueDepth = 64

type command struct {
	run   func() error
	reply chan error // nil for asynchronous commands
}

// queue executes commands one at a time in submission order on a dedicated
// goroutine. A failed kernel leaves a sticky fault that every later blocking
// command reports.
type queue struct {
	ctx *simContext
	dev *device

	mu       sync.Mutex
	cmds     chan command
	released bool
	done     chan struct{}

	faultMu sync.Mutex
	fault   error
}

func newQueue(ctx *simContext, dev *device) *queue {
	q := &queue{
		ctx:  ctx,
		dev:  dev,
		cmds: make(chan command, queueDepth),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.done)
	for cmd := range q.cmds {
		err := cmd.run()
		if cmd.reply != nil {
			cmd.reply <- err
			continue
		}
		if err != nil {
			q.setFault(err)
		}
	}
}

func (q *queue) setFault(err error) {
	q.faultMu.Lock()
	defer q.faultMu.Unlock()
	if q.fault == nil {
		q.fault = err
	}
}

func (q *queue) faulted() error {
	q.faultMu.Lock()
	defer q.faultMu.Unlock()
	return q.fault
}

func (q *queue) submit(op string, cmd command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.StatusError(op, compute.StatusInvalidCommandQueue)
	}
	q.cmds <- cmd
	return nil
}

// call submits fn and waits for it to run.
func (q *queue) call(op string, fn func() error) error {
	reply := make(chan error, 1)
	err := q.submit(op, command{
		run: func() error {
			if err := q.faulted(); err != nil {
				return err
			}
			return fn()
		},
		reply: reply,
	})
	if err != nil {
		return err
	}
	return <-reply
}

func (q *queue) transferTarget(op string, m compute.Mem, offset, n int) (*mem, error) {
	sm, ok := q.ctx.liveMem(m)
	if !ok {
		return nil, compute.StatusError(op, compute.StatusInvalidMemObject)
	}
	if offset < 0 || offset+n > len(sm.data) {
		return nil, compute.StatusErrorf(op, compute.StatusInvalidValue,
			fmt.Sprintf("range [%d,%d) outside %d-byte buffer", offset, offset+n, len(sm.data)))
	}
	return sm, nil
}

func (q *queue) Write(m compute.Mem, offset int, src []byte) error {
	const op = "clEnqueueWriteBuffer"
	sm, err := q.transferTarget(op, m, offset, len(src))
	if err != nil {
		return err
	}
	return q.call(op, func() error {
		copy(sm.data[offset:], src)
		return nil
	})
}

func (q *queue) Read(m compute.Mem, offset int, dst []byte) error {
	const op = "clEnqueueReadBuffer"
	sm, err := q.transferTarget(op, m, offset, len(dst))
	if err != nil {
		return err
	}
	return q.call(op, func() error {
		copy(dst, sm.data[offset:offset+len(dst)])
		return nil
	})
}

func (q *queue) Finish() error {
	return q.call("clFinish", func() error { return nil })
}

func (q *queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return compute.StatusError("clReleaseCommandQueue", compute.StatusInvalidCommandQueue)
	}
	q.released = true
	close(q.cmds)
	q.mu.Unlock()

	<-q.done

	drv := q.ctx.drv
	drv.mu.Lock()
	drv.released("queue")
	drv.mu.Unlock()
	return nil
}

func (q *queue) EnqueueKernel(k compute.Kernel, dims int, global, local []int) error {
	const op = "clEnqueueNDRangeKernel"

	sk, ok := k.(*kernel)
	if !ok || sk.prog.ctx != q.ctx {
		return compute.StatusError(op, compute.StatusInvalidKernel)
	}

	launch, err := q.prepare(op, sk, dims, global, local)
	if err != nil {
		return err
	}
	return q.submit(op, command{run: launch.run})
}

// launch is a kernel invocation with its arguments captured at enqueue time.
type launch struct {
	def    KernelDef
	args   Args
	dims   int
	global [compute.MaxDimensions]int
	local  [compute.MaxDimensions]int
}

func (q *queue) prepare(op string, k *kernel, dims int, global, local []int) (*launch, error) {
	maxDims := q.dev.dims()
	if dims < 1 || dims > maxDims {
		return nil, compute.StatusErrorf(op, compute.StatusInvalidWorkDimension, fmt.Sprintf("%d dimensions", dims))
	}
	if len(global) < dims {
		return nil, compute.StatusError(op, compute.StatusInvalidGlobalWorkSize)
	}

	l := &launch{def: k.def, dims: dims}
	for d := range compute.MaxDimensions {
		l.global[d], l.local[d] = 1, 1
	}
	for d := range dims {
		if global[d] <= 0 {
			return nil, compute.StatusError(op, compute.StatusInvalidGlobalWorkSize)
		}
		l.global[d] = global[d]
	}

	if local == nil {
		l.local = q.pickLocal(l.global, dims)
	} else {
		if len(local) < dims {
			return nil, compute.StatusError(op, compute.StatusInvalidWorkGroupSize)
		}
		items := 1
		for d := range dims {
			if local[d] <= 0 || global[d]%local[d] != 0 {
				return nil, compute.StatusError(op, compute.StatusInvalidWorkGroupSize)
			}
			if local[d] > q.dev.spec.MaxWorkItemSizes[d] {
				return nil, compute.StatusError(op, compute.StatusInvalidWorkItemSize)
			}
			l.local[d] = local[d]
			items *= local[d]
		}
		if items > q.dev.spec.MaxWorkGroupSize {
			return nil, compute.StatusError(op, compute.StatusInvalidWorkGroupSize)
		}
	}

	drv := q.ctx.drv
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if k.released {
		return nil, compute.StatusError(op, compute.StatusInvalidKernel)
	}
	l.args.vals = make([][]byte, len(k.args))
	for i, a := range k.args {
		switch {
		case !a.set:
			return nil, compute.StatusErrorf(op, compute.StatusInvalidKernelArgs, fmt.Sprintf("argument %d is not set", i))
		case a.mem != nil:
			if a.mem.released {
				return nil, compute.StatusError(op, compute.StatusInvalidMemObject)
			}
			l.args.vals[i] = a.mem.data
		default:
			l.args.vals[i] = a.value
		}
	}
	return l, nil
}

// pickLocal chooses the largest work-group that divides the global size and
// fits the device limits, filling dimension 0 first.
func (q *queue) pickLocal(global [compute.MaxDimensions]int, dims int) [compute.MaxDimensions]int {
	local := [compute.MaxDimensions]int{1, 1, 1}
	budget := q.dev.spec.MaxWorkGroupSize
	for d := range dims {
		limit := min(budget, q.dev.spec.MaxWorkItemSizes[d], global[d])
		for s := limit; s >= 1; s-- {
			if global[d]%s == 0 {
				local[d] = s
				break
			}
		}
		budget /= local[d]
	}
	return local
}

func (l *launch) run() error {
	var groups [compute.MaxDimensions]int
	total := 1
	for d := range compute.MaxDimensions {
		groups[d] = l.global[d] / l.local[d]
		total *= groups[d]
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for g := range total {
		eg.Go(func() error {
			return l.runGroup([compute.MaxDimensions]int{
				g % groups[0],
				(g / groups[0]) % groups[1],
				g / (groups[0] * groups[1]),
			})
		})
	}
	return eg.Wait()
}

func (l *launch) runGroup(group [compute.MaxDimensions]int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = compute.StatusErrorf("kernel "+l.def.Name, compute.StatusOutOfResources, fmt.Sprintf("work-group %v: %v", group[:l.dims], r))
		}
	}()

	it := Item{Dims: l.dims, Group: group, GlobalSize: l.global, LocalSize: l.local}
	for z := range l.local[2] {
		for y := range l.local[1] {
			for x := range l.local[0] {
				it.Local = [compute.MaxDimensions]int{x, y, z}
				for d := range compute.MaxDimensions {
					it.Global[d] = group[d]*l.local[d] + it.Local[d]
				}
				if err := l.def.Fn(it, l.args); err != nil {
					return compute.StatusErrorf("kernel "+l.def.Name, compute.StatusOutOfResources, err.Error())
				}
			}
		}
	}
	return nil
}
