package sbd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/behrlich/go-sbd/internal/addr"
	"github.com/behrlich/go-sbd/internal/host"
	"github.com/behrlich/go-sbd/internal/queue"
	"github.com/behrlich/go-sbd/internal/store"
)

// Error is a structured device error with context and errno mapping
type Error struct {
	Op     string        // Operation that failed (e.g. "alloc_store", "add_disk")
	Device string        // Device name ("" if not applicable)
	Major  int           // Major number (0 if not assigned)
	Sector uint64        // Sector of the failing chunk (0 if not applicable)
	Code   ErrorCode     // High-level error category
	Errno  syscall.Errno // Errno a kernel driver would report (0 if none)
	Msg    string        // Human-readable message
	Inner  error         // Wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Device != "" {
		parts = append(parts, "device="+e.Device)
	}
	if e.Major != 0 {
		parts = append(parts, fmt.Sprintf("major=%d", e.Major))
	}
	if e.Sector != 0 {
		parts = append(parts, fmt.Sprintf("sector=%d", e.Sector))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("sbd: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return "sbd: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches an ErrorCode or another *Error with the same code
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// ErrorCode is a high-level error category. Codes are themselves errors so
// they can be used directly with errors.Is.
type ErrorCode string

func (c ErrorCode) Error() string {
	return "sbd: " + string(c)
}

const (
	ErrUnsupportedRequest  ErrorCode = "unsupported request"
	ErrOutOfRange          ErrorCode = "sector out of range"
	ErrAllocationFailure   ErrorCode = "allocation failure"
	ErrRegistrationFailure ErrorCode = "registration failure"
	ErrInvalidParameters   ErrorCode = "invalid parameters"
	ErrIO                  ErrorCode = "I/O error"
	ErrDeviceStopped       ErrorCode = "device stopped"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewDeviceError creates a structured error for a named device
func NewDeviceError(op, device string, code ErrorCode, inner error) *Error {
	e := WrapError(op, inner)
	if e == nil {
		e = &Error{Op: op, Msg: string(code)}
	}
	e.Device = device
	e.Code = code
	return e
}

// WrapError wraps an error returned by an internal package, mapping known
// causes onto codes and errnos
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var se *Error
	if errors.As(inner, &se) {
		wrapped := *se
		wrapped.Op = op
		return &wrapped
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	code, errno := classify(inner)
	return &Error{
		Op:    op,
		Code:  code,
		Errno: errno,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// classify maps internal sentinel errors onto codes and errnos
func classify(err error) (ErrorCode, syscall.Errno) {
	switch {
	case errors.Is(err, queue.ErrUnsupportedRequest):
		return ErrUnsupportedRequest, syscall.EIO
	case errors.Is(err, addr.ErrOutOfRange):
		return ErrOutOfRange, syscall.ERANGE
	case errors.Is(err, addr.ErrInvalidSectorSize), errors.Is(err, store.ErrZeroCapacity):
		return ErrInvalidParameters, syscall.EINVAL
	case errors.Is(err, store.ErrFreed), errors.Is(err, host.ErrQueueDead):
		return ErrDeviceStopped, syscall.EIO
	case errors.Is(err, host.ErrBusy), errors.Is(err, host.ErrNoMajor):
		return ErrRegistrationFailure, syscall.EBUSY
	case errors.Is(err, host.ErrInvalidDisk):
		return ErrRegistrationFailure, syscall.EINVAL
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrIO, syscall.EINTR
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return mapErrnoToCode(errno), errno
	}
	return ErrIO, syscall.EIO
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOMEM:
		return ErrAllocationFailure
	case syscall.EBUSY:
		return ErrRegistrationFailure
	case syscall.EINVAL:
		return ErrInvalidParameters
	case syscall.ERANGE:
		return ErrOutOfRange
	case syscall.EOPNOTSUPP:
		return ErrUnsupportedRequest
	case syscall.ENODEV:
		return ErrDeviceStopped
	default:
		return ErrIO
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsErrno checks if an error carries a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Errno == errno
	}
	return false
}
