package gpu

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Device represents a compute device whose memory can be addressed by
// device pointers (an emulated host address space or a CUDA GPU)
type Device interface {
	// Type returns the device type
	Type() DeviceType

	// Name returns a human-readable device name
	Name() string

	// Allocate allocates a buffer of the given size in bytes
	Allocate(size int64) (Buffer, error)

	// Copy copies size bytes from src to dst. Both buffers may be views or
	// unowned wrappers, only their device addresses are used.
	Copy(dst, src Buffer, size int64) error

	// Sync waits for all pending operations to complete
	Sync() error

	// Free releases the device and all associated resources
	Free() error

	// MemoryUsage returns current memory usage in bytes (used, total)
	MemoryUsage() (int64, int64)
}

// DeviceType represents the type of compute device
type DeviceType int

const (
	DeviceTypeCPU DeviceType = iota
	DeviceTypeGPU
)

func (dt DeviceType) String() string {
	switch dt {
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// GetDefaultDevice returns the CUDA device when one is usable and falls back
// to the emulated device otherwise
func GetDefaultDevice() (Device, error) {
	dev, err := NewCUDADevice()
	if err == nil {
		return dev, nil
	}
	return NewCPUDevice(), nil
}

// GetDevice returns a device of the specified type
func GetDevice(dtype DeviceType) (Device, error) {
	switch dtype {
	case DeviceTypeCPU:
		return NewCPUDevice(), nil
	case DeviceTypeGPU:
		if runtime.GOOS != "linux" {
			return nil, fmt.Errorf("GPU not supported on %s", runtime.GOOS)
		}
		dev, err := NewCUDADevice()
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		return nil, fmt.Errorf("unknown device type: %v", dtype)
	}
}

const (
	emulatedBase  uintptr = 0x10000000
	emulatedAlign uintptr = 256
)

// CPUDevice emulates a device address space in host memory. Every allocation
// gets a stable synthetic address, so pointer-based copies, sub-views and
// foreign array descriptors behave like they do on a real GPU.
type CPUDevice struct {
	name   string
	mu     sync.RWMutex
	next   uintptr
	allocs []*cpuBuffer // sorted by base address
	used   int64
}

// NewCPUDevice creates a new emulated device with an empty address space
func NewCPUDevice() *CPUDevice {
	return &CPUDevice{
		name: fmt.Sprintf("CPU emulated (%s)", runtime.GOARCH),
		next: emulatedBase,
	}
}

func (d *CPUDevice) Type() DeviceType { return DeviceTypeCPU }
func (d *CPUDevice) Name() string     { return d.name }

func (d *CPUDevice) Allocate(size int64) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf := &cpuBuffer{
		dev:  d,
		base: d.next,
		data: make([]byte, size),
	}
	d.next += (uintptr(size) + emulatedAlign - 1) &^ (emulatedAlign - 1)
	// next only grows, so appending keeps allocs sorted
	d.allocs = append(d.allocs, buf)
	d.used += size

	return buf, nil
}

// resolve returns the host bytes backing [ptr, ptr+n). Callers hold d.mu.
func (d *CPUDevice) resolve(ptr uintptr, n int64) ([]byte, error) {
	i := sort.Search(len(d.allocs), func(i int) bool {
		return d.allocs[i].base > ptr
	}) - 1
	if i < 0 {
		return nil, fmt.Errorf("address %#x is not a device allocation", ptr)
	}
	buf := d.allocs[i]
	off := int64(ptr - buf.base)
	if off+n > int64(len(buf.data)) {
		return nil, fmt.Errorf("range %#x+%d exceeds allocation at %#x (%d bytes)",
			ptr, n, buf.base, len(buf.data))
	}
	return buf.data[off : off+n], nil
}

func (d *CPUDevice) Copy(dst, src Buffer, size int64) error {
	if size > dst.Size() || size > src.Size() {
		return fmt.Errorf("copy size %d exceeds buffer size (dst: %d, src: %d)",
			size, dst.Size(), src.Size())
	}
	if size == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dstMem, err := d.resolve(dst.Ptr(), size)
	if err != nil {
		return fmt.Errorf("dst: %w", err)
	}
	srcMem, err := d.resolve(src.Ptr(), size)
	if err != nil {
		return fmt.Errorf("src: %w", err)
	}
	copy(dstMem, srcMem)
	return nil
}

func (d *CPUDevice) copyToHost(dst []byte, ptr uintptr) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mem, err := d.resolve(ptr, int64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, mem)
	return nil
}

func (d *CPUDevice) copyFromHost(ptr uintptr, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, err := d.resolve(ptr, int64(len(src)))
	if err != nil {
		return err
	}
	copy(mem, src)
	return nil
}

func (d *CPUDevice) Sync() error {
	// No-op for CPU
	return nil
}

// Free drops every allocation; addresses are never reused afterwards
func (d *CPUDevice) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, buf := range d.allocs {
		buf.data = nil
	}
	d.allocs = nil
	d.used = 0
	return nil
}

func (d *CPUDevice) MemoryUsage() (int64, int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.used, d.used
}

func (d *CPUDevice) release(buf *cpuBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range d.allocs {
		if b == buf {
			d.allocs = append(d.allocs[:i], d.allocs[i+1:]...)
			d.used -= int64(len(buf.data))
			buf.data = nil
			return
		}
	}
}

// cpuBuffer implements Buffer for emulated device memory
type cpuBuffer struct {
	dev  *CPUDevice
	base uintptr
	data []byte
}

func (b *cpuBuffer) Size() int64 {
	b.dev.mu.RLock()
	defer b.dev.mu.RUnlock()
	return int64(len(b.data))
}

func (b *cpuBuffer) Ptr() uintptr {
	return b.base
}

func (b *cpuBuffer) CopyToHost(dst []byte) error {
	b.dev.mu.RLock()
	defer b.dev.mu.RUnlock()
	if int64(len(dst)) < int64(len(b.data)) {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *cpuBuffer) CopyFromHost(src []byte) error {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if int64(len(b.data)) < int64(len(src)) {
		return fmt.Errorf("buffer too small: %d < %d", len(b.data), len(src))
	}
	copy(b.data, src)
	return nil
}

func (b *cpuBuffer) Free() error {
	b.dev.release(b)
	return nil
}

func (b *cpuBuffer) Device() Device {
	return b.dev
}
