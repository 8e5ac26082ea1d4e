//go:build linux && cgo && cuda

package cudart

/*
#cgo CFLAGS: -I/opt/cuda/include -I/usr/local/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -L/usr/local/cuda/lib64 -lcudart -lGL

#include <GL/gl.h>
#include <cuda_runtime.h>
#include <cuda_gl_interop.h>

static cudaError_t mapOne(cudaGraphicsResource_t res) {
    return cudaGraphicsMapResources(1, &res, 0);
}

static cudaError_t unmapOne(cudaGraphicsResource_t res) {
    return cudaGraphicsUnmapResources(1, &res, 0);
}
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// nativeRuntime calls straight into libcudart
type nativeRuntime struct{}

func loadNative() (Runtime, error) {
	var count C.int
	if err := C.cudaGetDeviceCount(&count); err != C.cudaSuccess {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, C.GoString(C.cudaGetErrorString(err)))
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no CUDA devices found", ErrNotAvailable)
	}
	return nativeRuntime{}, nil
}

func toNative(res Resource) C.cudaGraphicsResource_t {
	return C.cudaGraphicsResource_t(unsafe.Pointer(uintptr(res)))
}

func (nativeRuntime) RegisterGLBuffer(buffer uint32, flags RegisterFlags) (Resource, Status) {
	var res C.cudaGraphicsResource_t
	err := C.cudaGraphicsGLRegisterBuffer(&res, C.GLuint(buffer), C.uint(flags))
	return Resource(uintptr(unsafe.Pointer(res))), Status(err)
}

func (nativeRuntime) UnregisterResource(res Resource) Status {
	return Status(C.cudaGraphicsUnregisterResource(toNative(res)))
}

func (nativeRuntime) MapResource(res Resource) Status {
	return Status(C.mapOne(toNative(res)))
}

func (nativeRuntime) UnmapResource(res Resource) Status {
	return Status(C.unmapOne(toNative(res)))
}

func (nativeRuntime) MappedPointer(res Resource) (uintptr, int64, Status) {
	var ptr unsafe.Pointer
	var size C.size_t
	err := C.cudaGraphicsResourceGetMappedPointer(&ptr, &size, toNative(res))
	return uintptr(ptr), int64(size), Status(err)
}

func (nativeRuntime) RuntimeVersion() (int, Status) {
	var v C.int
	err := C.cudaRuntimeGetVersion(&v)
	return int(v), Status(err)
}

func (nativeRuntime) ErrorName(s Status) string {
	return C.GoString(C.cudaGetErrorName(C.cudaError_t(s)))
}

func (nativeRuntime) ErrorString(s Status) string {
	return C.GoString(C.cudaGetErrorString(C.cudaError_t(s)))
}
