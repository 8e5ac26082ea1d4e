//go:build glfw

package render

import (
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwBackend owns a hidden GLFW window whose OpenGL 3.3 core context is
// current on the calling OS thread. Every method must run on that thread.
type glfwBackend struct {
	window *glfw.Window
}

type glBuffer struct {
	id   uint32
	size int64
}

func (b *glBuffer) NativeBufferID() uint32 { return b.id }
func (b *glBuffer) Size() int64            { return b.size }

// NewGLFW creates an offscreen OpenGL 3.3 context and locks the calling
// goroutine to its OS thread.
//
// GLFW reference: https://www.glfw.org/docs/latest/context_guide.html
func NewGLFW() (BufferBackend, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	win, err := glfw.CreateWindow(64, 64, "psinterop", nil, nil)
	if err != nil {
		glfw.Terminate()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("failed to create GLFW window: %v", err)
	}
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("failed to initialize OpenGL: %v", err)
	}

	return &glfwBackend{window: win}, nil
}

func (g *glfwBackend) Name() string { return BackendOpenGL3GLFW }

func (g *glfwBackend) NewAttributeBuffer(size int64) (AttributeBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", size)
	}
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, int(size), nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		return nil, fmt.Errorf("glBufferData failed: 0x%x", code)
	}
	return &glBuffer{id: id, size: size}, nil
}

func (g *glfwBackend) ReadBuffer(buf AttributeBuffer) ([]byte, error) {
	data := make([]byte, buf.Size())
	if len(data) == 0 {
		return data, nil
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, buf.NativeBufferID())
	gl.GetBufferSubData(gl.ARRAY_BUFFER, 0, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("glGetBufferSubData failed: 0x%x", code)
	}
	return data, nil
}

func (g *glfwBackend) DeleteBuffer(buf AttributeBuffer) error {
	id := buf.NativeBufferID()
	gl.DeleteBuffers(1, &id)
	return nil
}

func (g *glfwBackend) Close() error {
	g.window.Destroy()
	glfw.Terminate()
	runtime.UnlockOSThread()
	return nil
}
