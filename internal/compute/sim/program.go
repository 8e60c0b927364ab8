package sim

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cwbudde/clcore/internal/compute"
)

const binaryMagic = "SIMBIN1\n"

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	kernelDecl   = regexp.MustCompile(`\b(?:__)?kernel\s+void\s+(\w+)\s*\(`)
)

func encodeBinary(source string) []byte {
	return []byte(binaryMagic + source)
}

func decodeBinary(b []byte) (string, error) {
	s, ok := strings.CutPrefix(string(b), binaryMagic)
	if !ok {
		return "", errors.New("not a simulator binary")
	}
	return s, nil
}

type program struct {
	ctx        *simContext
	source     string
	fromBinary bool

	// guarded by ctx.drv.mu
	built    bool
	kernels  map[string]KernelDef
	log      string
	devices  []*device
	released bool
}

func (p *program) Build(devices []compute.Device, options string) error {
	const op = "clBuildProgram"

	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			return compute.StatusErrorf(op, compute.StatusInvalidBuildOptions, fmt.Sprintf("unrecognised option %q", opt))
		}
	}

	targets := make([]*device, 0, len(devices))
	for _, d := range devices {
		dev, ok := p.ctx.has(d)
		if !ok {
			return compute.StatusError(op, compute.StatusInvalidDevice)
		}
		targets = append(targets, dev)
	}
	if len(targets) == 0 {
		targets = p.ctx.devices
	}

	kernels, log := compile(p.source, p.ctx.drv.kernels)

	drv := p.ctx.drv
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if p.released {
		return compute.StatusError(op, compute.StatusInvalidProgram)
	}
	p.log = log
	p.devices = targets
	if kernels == nil {
		p.built = false
		return compute.StatusError(op, compute.StatusBuildProgramFailure)
	}
	p.built = true
	p.kernels = kernels
	if p.fromBinary {
		drv.binaryLoads++
	} else {
		drv.builds++
	}
	return nil
}

func (p *program) BuildLog(d compute.Device) (string, error) {
	if _, ok := p.ctx.has(d); !ok {
		return "", compute.StatusError("clGetProgramBuildInfo", compute.StatusInvalidDevice)
	}
	p.ctx.drv.mu.Lock()
	defer p.ctx.drv.mu.Unlock()
	return p.log, nil
}

func (p *program) Binaries() ([][]byte, error) {
	p.ctx.drv.mu.Lock()
	defer p.ctx.drv.mu.Unlock()
	if !p.built {
		return nil, compute.StatusError("clGetProgramInfo", compute.StatusInvalidProgramExecutable)
	}
	out := make([][]byte, len(p.devices))
	for i := range p.devices {
		out[i] = encodeBinary(p.source)
	}
	return out, nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	const op = "clCreateKernel"

	drv := p.ctx.drv
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if p.released {
		return nil, compute.StatusError(op, compute.StatusInvalidProgram)
	}
	if !p.built {
		return nil, compute.StatusError(op, compute.StatusInvalidProgramExecutable)
	}
	def, ok := p.kernels[name]
	if !ok {
		return nil, compute.StatusErrorf(op, compute.StatusInvalidKernelName, fmt.Sprintf("no kernel named %q", name))
	}
	drv.created("kernel")
	return &kernel{prog: p, def: def, args: make([]boundArg, len(def.Args))}, nil
}

func (p *program) Release() error {
	p.ctx.drv.mu.Lock()
	defer p.ctx.drv.mu.Unlock()
	if p.released {
		return compute.StatusError("clReleaseProgram", compute.StatusInvalidProgram)
	}
	p.released = true
	p.ctx.drv.released("program")
	return nil
}

// compile checks source against the registered implementations. It returns the
// kernels it declares, or nil and a compiler-style log when it does not build.
func compile(source string, registry map[string]KernelDef) (map[string]KernelDef, string) {
	code := blockComment.ReplaceAllStringFunc(source, blankOut)
	code = lineComment.ReplaceAllStringFunc(code, blankOut)

	var diags []string
	report := func(offset int, format string, args ...any) {
		line, col := position(code, offset)
		diags = append(diags, fmt.Sprintf("<source>:%d:%d: error: %s", line, col, fmt.Sprintf(format, args...)))
	}

	if offset, ok := checkBalance(code); !ok {
		report(offset, "unbalanced brackets")
	}

	kernels := make(map[string]KernelDef)
	for _, m := range kernelDecl.FindAllStringSubmatchIndex(code, -1) {
		name := code[m[2]:m[3]]
		def, ok := registry[name]
		if !ok {
			report(m[2], "kernel %q has no implementation", name)
			continue
		}
		if n, ok := countParams(code, m[1]-1); ok && n != len(def.Args) {
			report(m[2], "kernel %q declares %d parameters, implementation takes %d", name, n, len(def.Args))
			continue
		}
		kernels[name] = def
	}

	if len(diags) > 0 {
		return nil, strings.Join(diags, "\n") + "\n"
	}
	return kernels, ""
}

// blankOut replaces a comment with spaces, keeping newlines so offsets and
// line numbers survive.
func blankOut(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		return ' '
	}, s)
}

func position(code string, offset int) (line, col int) {
	before := code[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndexByte(before, '\n')
	return line, col
}

// checkBalance verifies (), [] and {} nesting. On failure it returns the offset
// of the offending bracket.
func checkBalance(code string) (int, bool) {
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []int
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case '(', '[', '{':
			stack = append(stack, i)
		case ')', ']', '}':
			if len(stack) == 0 || code[stack[len(stack)-1]] != pairs[c] {
				return i, false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return stack[len(stack)-1], false
	}
	return 0, true
}

// countParams counts the comma-separated parameters of the list opening at
// code[open].
func countParams(code string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				list := strings.TrimSpace(code[open+1 : i])
				if list == "" || list == "void" {
					return 0, true
				}
				return strings.Count(list, ",") + 1, true
			}
		}
	}
	return 0, false
}

type boundArg struct {
	set   bool
	mem   *mem
	value []byte
}

type kernel struct {
	prog *program
	def  KernelDef

	// guarded by prog.ctx.drv.mu
	args     []boundArg
	released bool
}

func (k *kernel) NumArgs() (int, error) { return len(k.def.Args), nil }

func (k *kernel) SetArg(index int, arg compute.KernelArg) error {
	const op = "clSetKernelArg"

	if index < 0 || index >= len(k.def.Args) {
		return compute.StatusErrorf(op, compute.StatusInvalidArgIndex,
			fmt.Sprintf("index %d, kernel %s takes %d", index, k.def.Name, len(k.def.Args)))
	}

	spec := k.def.Args[index]
	var bound boundArg
	switch spec.Kind {
	case ArgBuffer:
		if arg.Mem == nil {
			if arg.Value != nil {
				return compute.StatusErrorf(op, compute.StatusInvalidArgSize,
					fmt.Sprintf("argument %d (%s) is a buffer, got %d-byte value", index, spec.Name, len(arg.Value)))
			}
			return compute.StatusErrorf(op, compute.StatusInvalidArgValue, fmt.Sprintf("argument %d (%s) is a buffer", index, spec.Name))
		}
		m, ok := k.prog.ctx.liveMem(arg.Mem)
		if !ok {
			return compute.StatusError(op, compute.StatusInvalidMemObject)
		}
		bound = boundArg{set: true, mem: m}
	case ArgScalar:
		if arg.Mem != nil {
			return compute.StatusErrorf(op, compute.StatusInvalidArgValue, fmt.Sprintf("argument %d (%s) is a scalar", index, spec.Name))
		}
		if len(arg.Value) != spec.Size {
			return compute.StatusErrorf(op, compute.StatusInvalidArgSize,
				fmt.Sprintf("argument %d (%s) takes %d bytes, got %d", index, spec.Name, spec.Size, len(arg.Value)))
		}
		bound = boundArg{set: true, value: append([]byte(nil), arg.Value...)}
	}

	drv := k.prog.ctx.drv
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if k.released {
		return compute.StatusError(op, compute.StatusInvalidKernel)
	}
	k.args[index] = bound
	return nil
}

func (k *kernel) Release() error {
	drv := k.prog.ctx.drv
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if k.released {
		return compute.StatusError("clReleaseKernel", compute.StatusInvalidKernel)
	}
	k.released = true
	drv.released("kernel")
	return nil
}
