package gpu

// Buffer represents a region of device memory
type Buffer interface {
	// Size returns the size of the buffer in bytes
	Size() int64

	// Ptr returns the device address of the first byte
	Ptr() uintptr

	// CopyToHost copies buffer data to host memory
	CopyToHost(dst []byte) error

	// CopyFromHost copies host memory to the buffer
	CopyFromHost(src []byte) error

	// Free releases the buffer. Unowned buffers ignore it.
	Free() error

	// Device returns the device that owns this buffer
	Device() Device
}

// hostTransfer is implemented by devices that can move bytes between host
// memory and an arbitrary device address, not only their own allocations.
type hostTransfer interface {
	copyToHost(dst []byte, ptr uintptr) error
	copyFromHost(ptr uintptr, src []byte) error
}
