package compute

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "CL_INVALID_WORK_GROUP_SIZE (-54)", StatusInvalidWorkGroupSize.String())
	assert.Equal(t, "CL_SUCCESS (0)", StatusSuccess.String())
	assert.Contains(t, Status(-9999).String(), "-9999")
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindShapeMismatch, Op: "execute", Status: StatusInvalidWorkGroupSize, Msg: "local size 3 does not divide 10"}
	assert.Equal(t, "execute: local size 3 does not divide 10: CL_INVALID_WORK_GROUP_SIZE (-54)", err.Error())

	bare := &Error{Kind: KindHandleNotFound}
	assert.Equal(t, "handle not found", bare.Error())
}

func TestErrorKindMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", notFound("copy", "buffer 3 not found"))
	assert.ErrorIs(t, err, ErrHandleNotFound)
	assert.NotErrorIs(t, err, ErrShapeMismatch)
	assert.NotErrorIs(t, err, ErrBackendRejection)
}

func TestFromDriver(t *testing.T) {
	drv := StatusErrorf("clSetKernelArg", StatusInvalidArgSize, "argument 1 takes 4 bytes")

	out := fromDriver("bind argument 1", KindShapeMismatch, drv)
	var e *Error
	require.ErrorAs(t, out, &e)
	assert.Equal(t, KindShapeMismatch, e.Kind)
	assert.Equal(t, "bind argument 1", e.Op)
	assert.Equal(t, "clSetKernelArg: argument 1 takes 4 bytes", e.Msg)
	assert.Equal(t, StatusInvalidArgSize, e.Status)

	// The driver error is left untouched.
	assert.Equal(t, KindBackendRejection, drv.Kind)
	assert.Equal(t, "clSetKernelArg", drv.Op)

	kept := fromDriver("finish", KindUnknown, StatusError("clFinish", StatusOutOfResources))
	assert.ErrorIs(t, kept, ErrBackendRejection)
	assert.Equal(t, "finish: clFinish: CL_OUT_OF_RESOURCES (-5)", kept.Error())

	plain := fromDriver("read", KindUnknown, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, plain, ErrBackendRejection)
	assert.True(t, errors.Is(plain, io.ErrUnexpectedEOF))
	assert.Equal(t, StatusSuccess, StatusOf(plain))
}
