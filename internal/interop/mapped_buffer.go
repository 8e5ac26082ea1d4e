package interop

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/logging"
	"github.com/xupit3r/psinterop/internal/render"
)

// State is the lifecycle state of a MappedBuffer
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateMapped
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered-unmapped"
	case StateMapped:
		return "registered-mapped"
	default:
		return "unknown"
	}
}

// MappedBuffer registers one attribute buffer with the CUDA runtime and maps
// it into device address space on demand. The renderer keeps owning the
// buffer storage. A MappedBuffer is registered from construction until
// Unregister; it is not safe for concurrent use.
type MappedBuffer struct {
	rt     cudart.Runtime
	dev    gpu.Device
	buffer render.AttributeBuffer

	resource cudart.Resource // zero once unregistered
	ptr      gpu.Buffer      // non-nil only while mapped
	size     int64           // -1 unless mapped
}

// NewMappedBuffer registers buffer with rt. Mapped memory is addressed
// through dev, which must be the device rt maps into. buffer must be
// comparable, since the registry tracks buffers by identity.
func NewMappedBuffer(rt cudart.Runtime, dev gpu.Device, buffer render.AttributeBuffer) (*MappedBuffer, error) {
	if !comparableBuffer(buffer) {
		return nil, fmt.Errorf("%w: %T cannot be compared by identity", ErrInvalidBuffer, buffer)
	}
	id := buffer.NativeBufferID()
	res, st := rt.RegisterGLBuffer(id, cudart.RegisterFlagsNone)
	if err := check(rt, "register", st); err != nil {
		return nil, fmt.Errorf("registering GL buffer %d: %w", id, err)
	}

	logging.WithFields(logrus.Fields{
		"buffer":   id,
		"resource": fmt.Sprintf("%#x", res),
	}).Debug("registered GL buffer")

	return &MappedBuffer{
		rt:       rt,
		dev:      dev,
		buffer:   buffer,
		resource: res,
		size:     -1,
	}, nil
}

// State reports the lifecycle state
func (m *MappedBuffer) State() State {
	switch {
	case m.resource == 0:
		return StateUnregistered
	case m.ptr != nil:
		return StateMapped
	default:
		return StateRegistered
	}
}

// Mapped reports whether the buffer is currently mapped
func (m *MappedBuffer) Mapped() bool {
	return m.ptr != nil
}

// Size returns the mapped size in bytes, or -1 when not mapped
func (m *MappedBuffer) Size() int64 {
	return m.size
}

// Buffer returns the wrapped attribute buffer
func (m *MappedBuffer) Buffer() render.AttributeBuffer {
	return m.buffer
}

// IsSameBuffer reports whether other is the buffer this instance wraps
func (m *MappedBuffer) IsSameBuffer(other render.AttributeBuffer) bool {
	return comparableBuffer(other) && m.buffer == other
}

func comparableBuffer(b render.AttributeBuffer) bool {
	return b != nil && reflect.ValueOf(b).Comparable()
}

// Map maps the buffer and returns its device memory as an unowned buffer.
// Mapping an already mapped buffer returns the existing memory.
func (m *MappedBuffer) Map() (gpu.Buffer, error) {
	if m.resource == 0 {
		return nil, ErrUnregistered
	}
	if m.ptr != nil {
		return m.ptr, nil
	}

	if err := check(m.rt, "map", m.rt.MapResource(m.resource)); err != nil {
		return nil, err
	}
	ptr, size, st := m.rt.MappedPointer(m.resource)
	if err := check(m.rt, "get mapped pointer", st); err != nil {
		// Leave the resource unmapped so the state machine stays consistent
		if uerr := check(m.rt, "unmap", m.rt.UnmapResource(m.resource)); uerr != nil {
			return nil, errors.Join(err, uerr)
		}
		return nil, err
	}

	m.ptr = gpu.WrapPtr(m.dev, ptr, size, m)
	m.size = size

	logging.WithFields(logrus.Fields{
		"buffer": m.buffer.NativeBufferID(),
		"ptr":    fmt.Sprintf("%#x", ptr),
		"size":   size,
	}).Debug("mapped GL buffer")

	return m.ptr, nil
}

// Unmap hands the buffer back to the renderer. It is a no-op when the buffer
// is not mapped.
func (m *MappedBuffer) Unmap() error {
	if m.resource == 0 {
		return ErrUnregistered
	}
	if m.ptr == nil {
		return nil
	}
	if err := check(m.rt, "unmap", m.rt.UnmapResource(m.resource)); err != nil {
		return err
	}
	m.ptr = nil
	m.size = -1

	logging.WithFields(logrus.Fields{"buffer": m.buffer.NativeBufferID()}).Debug("unmapped GL buffer")
	return nil
}

// Unregister unmaps if needed and releases the registration. Every later
// operation fails with ErrUnregistered.
func (m *MappedBuffer) Unregister() error {
	if m.resource == 0 {
		return ErrUnregistered
	}
	if err := m.Unmap(); err != nil {
		return err
	}
	if err := check(m.rt, "unregister", m.rt.UnregisterResource(m.resource)); err != nil {
		return err
	}
	m.resource = 0

	logging.WithFields(logrus.Fields{"buffer": m.buffer.NativeBufferID()}).Debug("unregistered GL buffer")
	return nil
}

// SetDataFromArray copies src into the buffer. src must speak the CUDA array
// interface or DLPack, and match shape and dtype exactly. The buffer is
// mapped for the copy and is unmapped again on every path once mapped.
func (m *MappedBuffer) SetDataFromArray(adapter *devarray.Adapter, src any, shape []int, dtype devarray.DType) (err error) {
	if m.resource == 0 {
		return ErrUnregistered
	}

	view, err := adapter.Normalize(src)
	if err != nil {
		return err
	}
	defer view.Release()

	dst, err := m.Map()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := m.Unmap(); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()

	if view.DType != dtype {
		return &MismatchError{Field: "dtype", Expected: dtype.String(), Actual: view.DType.String()}
	}
	if !slices.Equal(view.Shape, shape) {
		return &MismatchError{Field: "shape", Expected: formatShape(shape), Actual: formatShape(view.Shape)}
	}
	if view.ByteSize != m.size {
		return &SizeMismatchError{MappedBytes: m.size, ArrayBytes: view.ByteSize}
	}
	if view.ByteSize == 0 {
		return nil
	}

	if err := m.dev.Copy(dst, view.Data, view.ByteSize); err != nil {
		return fmt.Errorf("copying %d bytes into GL buffer %d: %w",
			view.ByteSize, m.buffer.NativeBufferID(), err)
	}

	logging.WithFields(logrus.Fields{
		"buffer":   m.buffer.NativeBufferID(),
		"bytes":    view.ByteSize,
		"protocol": view.Protocol,
		"gathered": view.Gathered(),
	}).Debug("copied device array into GL buffer")

	return nil
}

func formatShape(shape []int) string {
	s := "("
	for i, d := range shape {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(d)
	}
	if len(shape) == 1 {
		s += ","
	}
	return s + ")"
}
