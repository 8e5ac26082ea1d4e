package cudart

import (
	"errors"
	"sync"
)

// ErrNotAvailable is returned by Load when the build or the host has no
// usable CUDA runtime
var ErrNotAvailable = errors.New("cudart: CUDA runtime not available")

// Resource is an opaque cudaGraphicsResource_t handle. Zero means no resource.
type Resource uintptr

// RegisterFlags mirrors cudaGraphicsRegisterFlags
type RegisterFlags uint32

const (
	RegisterFlagsNone         RegisterFlags = 0
	RegisterFlagsReadOnly     RegisterFlags = 1
	RegisterFlagsWriteDiscard RegisterFlags = 2
)

// Runtime is the subset of the CUDA runtime used for OpenGL interop.
// Every call reports a Status; callers convert non-success values with Check.
type Runtime interface {
	// RegisterGLBuffer registers an OpenGL buffer object for access by CUDA
	RegisterGLBuffer(buffer uint32, flags RegisterFlags) (Resource, Status)

	// UnregisterResource releases a registration
	UnregisterResource(res Resource) Status

	// MapResource maps a registered resource for access by CUDA
	MapResource(res Resource) Status

	// UnmapResource hands a mapped resource back to the graphics API
	UnmapResource(res Resource) Status

	// MappedPointer returns the device pointer and size of a mapped resource
	MappedPointer(res Resource) (uintptr, int64, Status)

	// RuntimeVersion returns the runtime version as 1000*major + 10*minor
	RuntimeVersion() (int, Status)

	// ErrorName and ErrorString describe a status code
	ErrorName(s Status) string
	ErrorString(s Status) string
}

var (
	nativeOnce sync.Once
	nativeRT   Runtime
	nativeErr  error
)

// Load returns the process-wide native runtime, initializing it on first use.
// Builds without the cuda tag always return ErrNotAvailable.
func Load() (Runtime, error) {
	nativeOnce.Do(func() {
		nativeRT, nativeErr = loadNative()
	})
	return nativeRT, nativeErr
}
