//go:build !glfw

package render

import "fmt"

// NewGLFW is unavailable in builds without the glfw tag
func NewGLFW() (BufferBackend, error) {
	return nil, fmt.Errorf("%s backend not compiled in (build with: go build -tags glfw)", BackendOpenGL3GLFW)
}
