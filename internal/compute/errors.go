package compute

import (
	"errors"
	"strings"
)

// Kind classifies a failure of the compute layer.
type Kind int

const (
	KindUnknown Kind = iota
	// KindDiscovery means no platform or no GPU device was found.
	KindDiscovery
	// KindBackendRejection means the driver rejected a create, build or submit call.
	KindBackendRejection
	// KindHandleNotFound means a buffer handle or program index does not name a live resource.
	KindHandleNotFound
	// KindShapeMismatch means an index space or argument list does not fit the kernel.
	KindShapeMismatch
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery failure"
	case KindBackendRejection:
		return "backend rejection"
	case KindHandleNotFound:
		return "handle not found"
	case KindShapeMismatch:
		return "shape mismatch"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every Core operation and by drivers.
//
// Use errors.Is with the Err* sentinels to test the kind, and errors.As to
// inspect the status code or build log.
type Error struct {
	Kind   Kind
	Op     string // failing operation, e.g. "create buffer" or "clBuildProgram"
	Status Status // backend status code, StatusSuccess when not applicable
	Msg    string
	Log    string // compiler diagnostics for build failures
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Status != StatusSuccess {
		b.WriteString(": ")
		b.WriteString(e.Status.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDiscovery        = &Error{Kind: KindDiscovery}
	ErrBackendRejection = &Error{Kind: KindBackendRejection}
	ErrHandleNotFound   = &Error{Kind: KindHandleNotFound}
	ErrShapeMismatch    = &Error{Kind: KindShapeMismatch}

	// ErrClosed is returned by operations on a Core after Close.
	ErrClosed = errors.New("compute core is closed")
)

// StatusError builds the error a driver returns when a backend call fails.
func StatusError(op string, status Status) *Error {
	return &Error{Kind: KindBackendRejection, Op: op, Status: status}
}

// StatusErrorf is StatusError with a message.
func StatusErrorf(op string, status Status, msg string) *Error {
	return &Error{Kind: KindBackendRejection, Op: op, Status: status, Msg: msg}
}

// StatusOf extracts the backend status from err, or StatusSuccess.
func StatusOf(err error) Status {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusSuccess
}

// fromDriver lifts a driver failure into the core taxonomy under op. A
// non-zero kind overrides the driver's classification.
func fromDriver(op string, kind Kind, err error) error {
	var de *Error
	if errors.As(err, &de) {
		out := *de
		out.Op = op
		if de.Msg == "" {
			out.Msg = de.Op
		} else if de.Op != "" {
			out.Msg = de.Op + ": " + de.Msg
		}
		if kind != KindUnknown {
			out.Kind = kind
		}
		return &out
	}
	if kind == KindUnknown {
		kind = KindBackendRejection
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func notFound(op, msg string) error {
	return &Error{Kind: KindHandleNotFound, Op: op, Msg: msg}
}

func shapeMismatch(op string, status Status, msg string) error {
	return &Error{Kind: KindShapeMismatch, Op: op, Status: status, Msg: msg}
}
