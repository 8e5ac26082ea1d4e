// Package render describes the rendering backend as seen by the interop
// layer: the active backend name and addressable attribute buffers.
package render

// Backend names reported by the rendering engine
const (
	BackendOpenGL3GLFW = "openGL3_glfw"
	BackendOpenGL3EGL  = "openGL3_egl"
	BackendOpenGLMock  = "openGL_mock"
)

// Backend is the active rendering backend
type Backend interface {
	// Name returns the backend identifier, e.g. "openGL3_glfw"
	Name() string
}

// AttributeBuffer is a GPU buffer owned by the renderer. Implementations
// must be comparable, and two values compare equal only if they refer to
// the same buffer; the interop layer rejects buffers that are not.
type AttributeBuffer interface {
	// NativeBufferID returns the OpenGL buffer name
	NativeBufferID() uint32

	// Size returns the buffer capacity in bytes
	Size() int64
}

// BufferBackend is a backend that can create, read back and delete
// attribute buffers on its own. The CLI uses it to stage demo buffers.
type BufferBackend interface {
	Backend
	NewAttributeBuffer(size int64) (AttributeBuffer, error)
	ReadBuffer(buf AttributeBuffer) ([]byte, error)
	DeleteBuffer(buf AttributeBuffer) error
	Close() error
}
