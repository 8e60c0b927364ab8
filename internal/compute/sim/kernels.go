package sim

import (
	"github.com/cwbudde/clcore/internal/compute"
)

// ArgKind is the class of a kernel parameter.
type ArgKind int

const (
	// ArgBuffer is a __global pointer parameter bound to a device buffer.
	ArgBuffer ArgKind = iota
	// ArgScalar is a by-value parameter of Size bytes.
	ArgScalar
)

// ArgSpec declares one kernel parameter.
type ArgSpec struct {
	Name string
	Kind ArgKind
	Size int
}

// KernelFunc runs one work-item.
type KernelFunc func(it Item, args Args) error

// KernelDef is the Go implementation behind a __kernel of a given name.
type KernelDef struct {
	Name string
	Args []ArgSpec
	Fn   KernelFunc
}

// Item is the position of a work-item in the index space. Dimensions at or
// above Dims have size 1 and id 0.
type Item struct {
	Dims       int
	Global     [compute.MaxDimensions]int
	Local      [compute.MaxDimensions]int
	Group      [compute.MaxDimensions]int
	GlobalSize [compute.MaxDimensions]int
	LocalSize  [compute.MaxDimensions]int
}

// Args are the bound argument values of a launch. Buffer arguments alias
// device memory.
type Args struct {
	vals [][]byte
}

func (a Args) Len() int { return len(a.vals) }

func (a Args) Bytes(i int) []byte { return a.vals[i] }

func (a Args) Float32s(i int) []float32 { return compute.FromBytes[float32](a.vals[i]) }

func (a Args) Int32s(i int) []int32 { return compute.FromBytes[int32](a.vals[i]) }

func (a Args) Float32(i int) float32 { return compute.FromBytes[float32](a.vals[i])[0] }

func (a Args) Int32(i int) int32 { return compute.FromBytes[int32](a.vals[i])[0] }

func buffer(name string) ArgSpec { return ArgSpec{Name: name, Kind: ArgBuffer} }

func scalar(name string, size int) ArgSpec { return ArgSpec{Name: name, Kind: ArgScalar, Size: size} }

// Builtins returns the kernels every default simulator knows:
//
//	dMult(a, b, c)  c = a x b for row-major N x N matrices, N = global size 0
//	vadd(a, b, c)   c[i] = a[i] + b[i] over the flattened index space
//	fill(dst, v)    dst[i] = v over the flattened index space
func Builtins() []KernelDef {
	return []KernelDef{
		{
			Name: "dMult",
			Args: []ArgSpec{buffer("a"), buffer("b"), buffer("c")},
			Fn: func(it Item, args Args) error {
				a, b, c := args.Float32s(0), args.Float32s(1), args.Float32s(2)
				n := it.GlobalSize[0]
				row, col := it.Global[1], it.Global[0]
				var sum float32
				for k := range n {
					sum += a[row*n+k] * b[k*n+col]
				}
				c[row*n+col] = sum
				return nil
			},
		},
		{
			Name: "vadd",
			Args: []ArgSpec{buffer("a"), buffer("b"), buffer("c")},
			Fn: func(it Item, args Args) error {
				i := it.Flat()
				args.Float32s(2)[i] = args.Float32s(0)[i] + args.Float32s(1)[i]
				return nil
			},
		},
		{
			Name: "fill",
			Args: []ArgSpec{buffer("dst"), scalar("value", 4)},
			Fn: func(it Item, args Args) error {
				args.Float32s(0)[it.Flat()] = args.Float32(1)
				return nil
			},
		},
	}
}

// Flat is the row-major linear global id, dimension 0 varying fastest.
func (it Item) Flat() int {
	return it.Global[0] + it.GlobalSize[0]*(it.Global[1]+it.GlobalSize[1]*it.Global[2])
}
