package interop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/render"
)

// env is an emulated backend and runtime sharing one address space
type env struct {
	dev     *gpu.CPUDevice
	backend *render.Emulated
	emu     *cudart.Emulator
	adapter *devarray.Adapter
	copies  *countingDevice
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dev := gpu.NewCPUDevice()
	backend := render.NewEmulated(render.BackendOpenGL3GLFW, dev)
	pool := gpu.NewBufferPool(dev, 1<<20)
	t.Cleanup(func() {
		backend.Close()
		pool.Clear()
		dev.Free()
	})
	return &env{
		dev:     dev,
		backend: backend,
		emu:     cudart.NewEmulator(backend.Lookup),
		adapter: devarray.NewAdapter(pool),
		copies:  &countingDevice{Device: dev},
	}
}

func (e *env) newBuffer(t *testing.T, size int64) render.AttributeBuffer {
	t.Helper()
	buf, err := e.backend.NewAttributeBuffer(size)
	require.NoError(t, err)
	return buf
}

func (e *env) newMapped(t *testing.T, buf render.AttributeBuffer) *MappedBuffer {
	t.Helper()
	mb, err := NewMappedBuffer(e.emu, e.copies, buf)
	require.NoError(t, err)
	return mb
}

func (e *env) floats(t *testing.T, shape []int, values []float32) *devarray.Array {
	t.Helper()
	arr, err := devarray.FromFloat32(e.dev, shape, values)
	require.NoError(t, err)
	t.Cleanup(func() { arr.Free() })
	return arr
}

func (e *env) readFloats(t *testing.T, buf render.AttributeBuffer) []float32 {
	t.Helper()
	data, err := e.backend.ReadBuffer(buf)
	require.NoError(t, err)
	return devarray.BytesFloat32(data)
}

// countingDevice counts device-to-device copies and can be made to fail them
type countingDevice struct {
	gpu.Device
	calls int
	fail  bool
}

func (d *countingDevice) Copy(dst, src gpu.Buffer, size int64) error {
	d.calls++
	if d.fail {
		return errors.New("device copy failed")
	}
	return d.Device.Copy(dst, src, size)
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) * 0.5
	}
	return out
}
