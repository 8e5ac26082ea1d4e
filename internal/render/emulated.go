package render

import (
	"fmt"
	"sync"

	"github.com/xupit3r/psinterop/internal/gpu"
)

// Emulated stands in for an OpenGL backend. Buffer storage lives in an
// emulated device address space shared with cudart.Emulator, so bytes
// written through a mapped pointer are visible to ReadBuffer.
type Emulated struct {
	name    string
	dev     *gpu.CPUDevice
	mu      sync.Mutex
	buffers map[uint32]*EmulatedBuffer
	nextID  uint32
}

// EmulatedBuffer is an attribute buffer of the emulated backend
type EmulatedBuffer struct {
	id      uint32
	storage gpu.Buffer
}

func (b *EmulatedBuffer) NativeBufferID() uint32 { return b.id }
func (b *EmulatedBuffer) Size() int64            { return b.storage.Size() }

// NewEmulated creates an emulated backend reporting the given name
func NewEmulated(name string, dev *gpu.CPUDevice) *Emulated {
	return &Emulated{
		name:    name,
		dev:     dev,
		buffers: make(map[uint32]*EmulatedBuffer),
		nextID:  1, // GL reserves 0
	}
}

func (e *Emulated) Name() string { return e.name }

// Device returns the address space buffers are allocated from
func (e *Emulated) Device() *gpu.CPUDevice { return e.dev }

func (e *Emulated) NewAttributeBuffer(size int64) (AttributeBuffer, error) {
	storage, err := e.dev.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("allocating attribute buffer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	buf := &EmulatedBuffer{id: e.nextID, storage: storage}
	e.buffers[buf.id] = buf
	e.nextID++
	return buf, nil
}

// Lookup resolves a buffer name to its storage; it satisfies
// cudart.GLBufferLookup
func (e *Emulated) Lookup(id uint32) (gpu.Buffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf, ok := e.buffers[id]
	if !ok {
		return nil, false
	}
	return buf.storage, true
}

func (e *Emulated) ReadBuffer(buf AttributeBuffer) ([]byte, error) {
	storage, ok := e.Lookup(buf.NativeBufferID())
	if !ok {
		return nil, fmt.Errorf("unknown buffer %d", buf.NativeBufferID())
	}
	data := make([]byte, storage.Size())
	if err := storage.CopyToHost(data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteBuffer uploads host bytes, like glBufferSubData at offset 0
func (e *Emulated) WriteBuffer(buf AttributeBuffer, data []byte) error {
	storage, ok := e.Lookup(buf.NativeBufferID())
	if !ok {
		return fmt.Errorf("unknown buffer %d", buf.NativeBufferID())
	}
	return storage.CopyFromHost(data)
}

func (e *Emulated) DeleteBuffer(buf AttributeBuffer) error {
	e.mu.Lock()
	b, ok := e.buffers[buf.NativeBufferID()]
	delete(e.buffers, buf.NativeBufferID())
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown buffer %d", buf.NativeBufferID())
	}
	return b.storage.Free()
}

// Close deletes every remaining buffer
func (e *Emulated) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, b := range e.buffers {
		b.storage.Free()
		delete(e.buffers, id)
	}
	return nil
}
