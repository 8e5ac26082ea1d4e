package interop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
)

var (
	// ErrBackendUnsupported is returned when the active rendering backend is
	// not in the allow-list
	ErrBackendUnsupported = errors.New("rendering backend does not support CUDA interop")

	// ErrDependencyMissing is returned when an optional runtime dependency
	// cannot be loaded or is incompatible
	ErrDependencyMissing = errors.New("required dependency missing")

	// ErrInterop is returned when a native register, map or unmap call fails
	ErrInterop = errors.New("CUDA/OpenGL interop failed")

	// ErrUnsupportedArrayType is returned when a source array speaks neither
	// exchange protocol
	ErrUnsupportedArrayType = devarray.ErrUnsupportedArrayType

	// ErrShapeOrTypeMismatch is returned when a source array disagrees with
	// the expected shape or dtype
	ErrShapeOrTypeMismatch = errors.New("array shape or dtype mismatch")

	// ErrInternalSizeMismatch is returned when shape and dtype match but the
	// mapped buffer has a different byte size
	ErrInternalSizeMismatch = errors.New("mapped buffer size mismatch")

	// ErrInvalidBuffer is returned for attribute buffers that cannot be
	// tracked by identity
	ErrInvalidBuffer = errors.New("invalid attribute buffer")

	// ErrUnregistered is returned by every operation on an unregistered
	// MappedBuffer
	ErrUnregistered = errors.New("mapped buffer has been unregistered")
)

// BackendError reports an unsupported rendering backend.
type BackendError struct {
	Backend string
	Allowed []string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("CUDA interop is only supported on backends [%s], active backend is %q",
		strings.Join(e.Allowed, ", "), e.Backend)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackendUnsupported }

// DependencyError reports one missing or incompatible optional dependency.
//
// The load failure (if any) can be accessed via errors.Unwrap.
type DependencyError struct {
	Name   string
	URL    string
	Reason string // "missing" or "incompatible"
	Detail string
	cause  error
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("%s: %s is required for CUDA interop, see %s", e.Reason, e.Name, e.URL)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyMissing }
func (e *DependencyError) Unwrap() error        { return e.cause }

// InteropError carries the native status of a failed runtime call.
//
// The *cudart.Error can be accessed via errors.As.
type InteropError struct {
	Op     string
	Status cudart.Status
	cause  error
}

func (e *InteropError) Error() string {
	return fmt.Sprintf("CUDA interop %s failed: %v", e.Op, e.cause)
}

func (e *InteropError) Is(target error) bool { return target == ErrInterop }
func (e *InteropError) Unwrap() error        { return e.cause }

// check converts a runtime status into an *InteropError
func check(rt cudart.Runtime, op string, s cudart.Status) error {
	err := cudart.Check(rt, s)
	if err == nil {
		return nil
	}
	return &InteropError{Op: op, Status: s, cause: err}
}

// MismatchError reports a source array whose dtype or shape disagrees with
// the expected one.
type MismatchError struct {
	Field    string // "dtype" or "shape"
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *MismatchError) Is(target error) bool { return target == ErrShapeOrTypeMismatch }

// SizeMismatchError reports a mapped buffer whose size disagrees with a
// source array that otherwise matched.
type SizeMismatchError struct {
	MappedBytes int64
	ArrayBytes  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("mapped buffer holds %d bytes but the array has %d bytes; "+
		"shape and dtype matched, so this is probably an internal problem with the "+
		"declared buffer layout, not with the array passed in", e.MappedBytes, e.ArrayBytes)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrInternalSizeMismatch }
