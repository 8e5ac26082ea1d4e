package gpu

import "fmt"

// unownedBuffer references device memory owned by someone else: a mapped
// graphics buffer, a foreign device array or a sub-range of another buffer.
// Free is a no-op.
type unownedBuffer struct {
	dev   Device
	ptr   uintptr
	size  int64
	owner any // keeps the owner reachable while the wrapper is alive
}

// WrapPtr wraps a raw device pointer of the given size without taking
// ownership of the memory behind it
func WrapPtr(dev Device, ptr uintptr, size int64, owner any) Buffer {
	return &unownedBuffer{dev: dev, ptr: ptr, size: size, owner: owner}
}

// View returns an unowned window of size bytes starting offset bytes into buf
func View(buf Buffer, offset, size int64) (Buffer, error) {
	if offset < 0 || size < 0 || offset+size > buf.Size() {
		return nil, fmt.Errorf("view [%d, %d) out of range for buffer of %d bytes",
			offset, offset+size, buf.Size())
	}
	return &unownedBuffer{
		dev:   buf.Device(),
		ptr:   buf.Ptr() + uintptr(offset),
		size:  size,
		owner: buf,
	}, nil
}

func (b *unownedBuffer) Size() int64    { return b.size }
func (b *unownedBuffer) Ptr() uintptr   { return b.ptr }
func (b *unownedBuffer) Free() error    { return nil }
func (b *unownedBuffer) Device() Device { return b.dev }

func (b *unownedBuffer) CopyToHost(dst []byte) error {
	if int64(len(dst)) < b.size {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), b.size)
	}
	ht, ok := b.dev.(hostTransfer)
	if !ok {
		return fmt.Errorf("device %s cannot read unowned memory", b.dev.Name())
	}
	return ht.copyToHost(dst[:b.size], b.ptr)
}

func (b *unownedBuffer) CopyFromHost(src []byte) error {
	if b.size < int64(len(src)) {
		return fmt.Errorf("buffer too small: %d < %d", b.size, len(src))
	}
	ht, ok := b.dev.(hostTransfer)
	if !ok {
		return fmt.Errorf("device %s cannot write unowned memory", b.dev.Name())
	}
	return ht.copyFromHost(b.ptr, src)
}
