package devarray

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xupit3r/psinterop/internal/gpu"
)

// Array is a strided n-dimensional array in device memory. It speaks the
// CUDA array interface directly and DLPack through AsDLPack.
type Array struct {
	buf      gpu.Buffer
	owned    bool
	offset   int64
	shape    []int
	strides  []int64 // bytes
	dtype    DType
	readOnly bool
}

// New allocates an uninitialized C-contiguous array on dev
func New(dev gpu.Device, shape []int, dtype DType) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid dtype %v", dtype)
	}
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}

	size, err := byteSize(n, dtype)
	if err != nil {
		return nil, err
	}

	// Zero-element arrays still get a valid address
	alloc := size
	if alloc == 0 {
		alloc = int64(dtype.Size)
	}
	buf, err := dev.Allocate(alloc)
	if err != nil {
		return nil, err
	}

	return &Array{
		buf:     buf,
		owned:   true,
		shape:   append([]int(nil), shape...),
		strides: cStrides(shape, dtype.Size),
		dtype:   dtype,
	}, nil
}

// FromBytes allocates an array on dev and uploads data in C order
func FromBytes(dev gpu.Device, shape []int, dtype DType, data []byte) (*Array, error) {
	a, err := New(dev, shape, dtype)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != a.ByteSize() {
		a.Free()
		return nil, fmt.Errorf("got %d bytes for %v %v array of %d bytes",
			len(data), shape, dtype, a.ByteSize())
	}
	if len(data) > 0 {
		if err := a.buf.CopyFromHost(data); err != nil {
			a.Free()
			return nil, err
		}
	}
	return a, nil
}

// FromFloat32 allocates a float32 array on dev holding values in C order
func FromFloat32(dev gpu.Device, shape []int, values []float32) (*Array, error) {
	return FromBytes(dev, shape, Float32, Float32Bytes(values))
}

// Float32Bytes encodes values as little-endian bytes
func Float32Bytes(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// BytesFloat32 decodes little-endian float32 values
func BytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

func (a *Array) Shape() []int   { return append([]int(nil), a.shape...) }
func (a *Array) DType() DType   { return a.dtype }
func (a *Array) Ptr() uintptr   { return a.buf.Ptr() + uintptr(a.offset) }
func (a *Array) ReadOnly() bool { return a.readOnly }

// Strides returns the byte strides
func (a *Array) Strides() []int64 { return append([]int64(nil), a.strides...) }

// ByteSize is the size of the logical contents, not of the backing buffer
func (a *Array) ByteSize() int64 {
	n, _ := numElements(a.shape)
	return n * int64(a.dtype.Size)
}

func (a *Array) layout() layout {
	return layout{shape: a.shape, strides: a.strides, dtype: a.dtype, data: a.Ptr()}
}

// Contiguous reports whether the array is laid out in C order
func (a *Array) Contiguous() bool {
	return a.layout().contiguous()
}

// Transpose returns a view with reversed axes sharing a's memory
func (a *Array) Transpose() *Array {
	n := len(a.shape)
	t := &Array{
		buf:      a.buf,
		offset:   a.offset,
		shape:    make([]int, n),
		strides:  make([]int64, n),
		dtype:    a.dtype,
		readOnly: a.readOnly,
	}
	for i := 0; i < n; i++ {
		t.shape[i] = a.shape[n-1-i]
		t.strides[i] = a.strides[n-1-i]
	}
	return t
}

// Step returns a view that keeps every step-th element along axis
func (a *Array) Step(axis, step int) (*Array, error) {
	if axis < 0 || axis >= len(a.shape) {
		return nil, fmt.Errorf("axis %d out of range for %d dimensions", axis, len(a.shape))
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}
	s := &Array{
		buf:      a.buf,
		offset:   a.offset,
		shape:    a.Shape(),
		strides:  a.Strides(),
		dtype:    a.dtype,
		readOnly: a.readOnly,
	}
	s.shape[axis] = (a.shape[axis] + step - 1) / step
	s.strides[axis] *= int64(step)
	return s, nil
}

// AsReadOnly returns a view that reports itself as read-only
func (a *Array) AsReadOnly() *Array {
	r := *a
	r.owned = false
	r.readOnly = true
	return &r
}

// Bytes reads a contiguous array back to the host
func (a *Array) Bytes() ([]byte, error) {
	if !a.Contiguous() {
		return nil, fmt.Errorf("array is not contiguous")
	}
	out := make([]byte, a.ByteSize())
	if len(out) == 0 {
		return out, nil
	}
	v, err := gpu.View(a.buf, a.offset, a.ByteSize())
	if err != nil {
		return nil, err
	}
	if err := v.CopyToHost(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Free releases the backing memory. Views never free.
func (a *Array) Free() error {
	if !a.owned {
		return nil
	}
	a.owned = false
	return a.buf.Free()
}

func (a *Array) CUDAArrayInterface() ArrayInterface {
	ai := ArrayInterface{
		Shape:    a.Shape(),
		TypeStr:  a.dtype.TypeStr(),
		Data:     a.Ptr(),
		ReadOnly: a.readOnly,
		Version:  3,
	}
	if !a.Contiguous() {
		ai.Strides = make([]int, len(a.strides))
		for i, s := range a.strides {
			ai.Strides[i] = int(s)
		}
	}
	return ai
}

// AsDLPack exposes a only through the DLPack protocol
func (a *Array) AsDLPack() DLPackExporter {
	return dlpackArray{a}
}

type dlpackArray struct {
	a *Array
}

func (d dlpackArray) DLPackDevice() DLDevice {
	if d.a.buf.Device().Type() == gpu.DeviceTypeGPU {
		return DLDevice{Type: DLCUDA}
	}
	return DLDevice{Type: DLCPU}
}

func (d dlpackArray) DLPack() (*DLTensor, error) {
	a := d.a
	t := &DLTensor{
		Data:       a.buf.Ptr(),
		Device:     d.DLPackDevice(),
		DType:      dtypeToDL(a.dtype),
		Shape:      make([]int64, len(a.shape)),
		ByteOffset: uint64(a.offset),
	}
	for i, s := range a.shape {
		t.Shape[i] = int64(s)
	}
	if !a.Contiguous() {
		t.Strides = make([]int64, len(a.strides))
		for i, s := range a.strides {
			t.Strides[i] = s / int64(a.dtype.Size)
		}
	}
	return t, nil
}
