package compute

import (
	"fmt"
	"unsafe"
)

// ParamKind tags a dispatch parameter.
type ParamKind uint8

const (
	ParamInvalid ParamKind = iota
	ParamBuffer
	ParamScalar
)

// Param is one positional kernel argument: a reference to a live buffer (from
// ResolveParameter) or an inline scalar value.
type Param struct {
	kind   ParamKind
	handle int
	mem    Mem
	value  []byte
}

// Scalar lists the fixed-size element types accepted as kernel scalars and
// buffer elements.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// ScalarParam encodes v in host byte order as an inline kernel argument.
func ScalarParam[T Scalar](v T) Param {
	size := int(unsafe.Sizeof(v))
	b := make([]byte, size)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
	return Param{kind: ParamScalar, value: b}
}

// RawParam passes b verbatim as an inline argument, for vector types and
// structs laid out by the caller.
func RawParam(b []byte) Param {
	v := make([]byte, len(b))
	copy(v, b)
	return Param{kind: ParamScalar, value: v}
}

// Kind returns the parameter tag.
func (p Param) Kind() ParamKind { return p.kind }

// Handle returns the buffer handle of a buffer parameter, or -1.
func (p Param) Handle() int {
	if p.kind != ParamBuffer {
		return -1
	}
	return p.handle
}

// Size is the argument size in bytes: a device pointer for buffers, the value
// length for scalars.
func (p Param) Size() int {
	switch p.kind {
	case ParamBuffer:
		return int(unsafe.Sizeof(uintptr(0)))
	case ParamScalar:
		return len(p.value)
	default:
		return 0
	}
}

// Bytes returns the inline value of a scalar parameter.
func (p Param) Bytes() []byte { return p.value }

func (p Param) String() string {
	switch p.kind {
	case ParamBuffer:
		return fmt.Sprintf("buffer(%d)", p.handle)
	case ParamScalar:
		return fmt.Sprintf("scalar(%d bytes)", len(p.value))
	default:
		return "invalid"
	}
}

// AsBytes reinterprets s as its underlying bytes without copying.
func AsBytes[T Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// FromBytes reinterprets b as a slice of T without copying. Trailing bytes that
// do not fill a whole element are ignored. b must be suitably aligned for T.
func FromBytes[T Scalar](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}
