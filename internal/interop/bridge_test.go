package interop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/render"
)

func newEmulatedBridge(t *testing.T, backendName string) (*Bridge, *render.Emulated, *cudart.Emulator) {
	t.Helper()
	dev := gpu.NewCPUDevice()
	backend := render.NewEmulated(backendName, dev)
	opts, emu := Emulated(backend, 1<<20)
	opts.MinRuntimeVersion = ">= 11.0"

	b, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		backend.Close()
		dev.Free()
	})
	return b, backend, emu
}

func TestBridgeSetBufferFromArray(t *testing.T) {
	b, backend, emu := newEmulatedBridge(t, render.BackendOpenGL3GLFW)
	require.NoError(t, b.CheckAvailability())

	buf, err := backend.NewAttributeBuffer(48)
	require.NoError(t, err)

	arr, err := devarray.FromFloat32(backend.Device(), []int{4, 3}, seq(12))
	require.NoError(t, err)
	defer arr.Free()

	require.NoError(t, b.SetBufferFromArray("positions", buf, arr, []int{4, 3}, devarray.Float32))
	require.NoError(t, b.SetBufferFromArray("positions", buf, arr.AsDLPack(), []int{4, 3}, devarray.Float32))

	data, err := backend.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, seq(12), devarray.BytesFloat32(data))
	assert.Equal(t, 1, emu.Calls(cudart.OpRegister), "the registry reuses the mapping")

	reg, err := b.Registry()
	require.NoError(t, err)
	mb, ok := reg.Get("positions")
	require.True(t, ok)
	assert.Equal(t, StateRegistered, mb.State())

	require.NoError(t, b.Remove("positions"))
	assert.Equal(t, 0, emu.Registered())
}

func TestBridgeGateRunsFirst(t *testing.T) {
	b, backend, emu := newEmulatedBridge(t, render.BackendOpenGLMock)

	buf, err := backend.NewAttributeBuffer(16)
	require.NoError(t, err)
	arr, err := devarray.FromFloat32(backend.Device(), []int{4}, seq(4))
	require.NoError(t, err)
	defer arr.Free()

	err = b.SetBufferFromArray("positions", buf, arr, []int{4}, devarray.Float32)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnsupported)
	assert.Zero(t, emu.Calls(cudart.OpRegister))

	_, err = b.Adapter()
	assert.ErrorIs(t, err, ErrBackendUnsupported)
}

func TestBridgeRejectsOldRuntime(t *testing.T) {
	b, backend, emu := newEmulatedBridge(t, render.BackendOpenGL3GLFW)
	emu.SetVersion(10020)

	buf, err := backend.NewAttributeBuffer(16)
	require.NoError(t, err)
	err = b.SetBufferFromArray("positions", buf, nil, []int{4}, devarray.Float32)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyMissing)
	assert.Contains(t, err.Error(), "10.2")
}

func TestBridgeErrorsAreWrappedWithKey(t *testing.T) {
	b, backend, _ := newEmulatedBridge(t, render.BackendOpenGL3GLFW)

	buf, err := backend.NewAttributeBuffer(16)
	require.NoError(t, err)
	err = b.SetBufferFromArray("colors", buf, "not an array", []int{4}, devarray.Float32)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedArrayType)
	assert.Contains(t, err.Error(), `"colors"`)
}

func TestBridgeRequiresBackend(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	dev := gpu.NewCPUDevice()
	defer dev.Free()
	opts, _ := Emulated(render.NewEmulated(render.BackendOpenGL3GLFW, dev), 0)
	opts.MinRuntimeVersion = "bogus"
	_, err = New(opts)
	assert.Error(t, err)
}

func TestDefaultBridge(t *testing.T) {
	b, backend, _ := newEmulatedBridge(t, render.BackendOpenGL3GLFW)

	prev := SetDefault(nil)
	t.Cleanup(func() { SetDefault(prev) })

	buf, err := backend.NewAttributeBuffer(16)
	require.NoError(t, err)
	arr, err := devarray.FromFloat32(backend.Device(), []int{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	defer arr.Free()

	err = SetBufferFromArray("positions", buf, arr, []int{2, 2}, devarray.Float32)
	assert.Error(t, err, "no default bridge yet")

	assert.Nil(t, SetDefault(b))
	assert.Same(t, b, Default())
	require.NoError(t, SetBufferFromArray("positions", buf, arr, []int{2, 2}, devarray.Float32))

	data, err := backend.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, devarray.BytesFloat32(data))
}
