package cudart

import (
	"sync"

	"github.com/xupit3r/psinterop/internal/gpu"
)

// GLBufferLookup resolves an OpenGL buffer name to the device memory that
// backs it. render.Emulated.Lookup satisfies it.
type GLBufferLookup func(buffer uint32) (gpu.Buffer, bool)

// Op identifies an emulated runtime entry point for call counting and fault
// injection
type Op int

const (
	OpRegister Op = iota
	OpUnregister
	OpMap
	OpUnmap
	OpMappedPointer
)

func (op Op) String() string {
	switch op {
	case OpRegister:
		return "register"
	case OpUnregister:
		return "unregister"
	case OpMap:
		return "map"
	case OpUnmap:
		return "unmap"
	case OpMappedPointer:
		return "mapped-pointer"
	default:
		return "unknown"
	}
}

// DefaultEmulatedVersion is the runtime version the emulator reports (12.4)
const DefaultEmulatedVersion = 12040

type emuResource struct {
	buffer  uint32
	storage gpu.Buffer
	mapped  bool
}

// Emulator implements Runtime over an emulated device address space. It
// enforces the same state rules as the real runtime (double map, unmap of an
// unmapped resource, stale handles) so interop code can be exercised without
// a GPU.
type Emulator struct {
	mu        sync.Mutex
	lookup    GLBufferLookup
	resources map[Resource]*emuResource
	next      Resource
	version   int
	calls     map[Op]int
	faults    map[Op]Status
}

// NewEmulator creates an emulated runtime that resolves GL buffers via lookup
func NewEmulator(lookup GLBufferLookup) *Emulator {
	return &Emulator{
		lookup:    lookup,
		resources: make(map[Resource]*emuResource),
		next:      0x1000,
		version:   DefaultEmulatedVersion,
		calls:     make(map[Op]int),
		faults:    make(map[Op]Status),
	}
}

// SetVersion overrides the reported runtime version
func (e *Emulator) SetVersion(v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version = v
}

// InjectFault makes the next call of op fail with s
func (e *Emulator) InjectFault(op Op, s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = s
}

// Calls returns how many times op was invoked, including failed calls
func (e *Emulator) Calls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// Registered returns the number of live registrations
func (e *Emulator) Registered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.resources)
}

// IsMapped reports whether res is currently mapped
func (e *Emulator) IsMapped(res Resource) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.resources[res]
	return ok && r.mapped
}

// enter records a call and returns a pending injected fault. Callers hold e.mu.
func (e *Emulator) enter(op Op) Status {
	e.calls[op]++
	if s, ok := e.faults[op]; ok {
		delete(e.faults, op)
		return s
	}
	return Success
}

func (e *Emulator) RegisterGLBuffer(buffer uint32, flags RegisterFlags) (Resource, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.enter(OpRegister); s != Success {
		return 0, s
	}
	if flags > RegisterFlagsWriteDiscard {
		return 0, ErrorInvalidValue
	}
	storage, ok := e.lookup(buffer)
	if !ok || buffer == 0 {
		return 0, ErrorInvalidValue
	}

	res := e.next
	e.next++
	e.resources[res] = &emuResource{buffer: buffer, storage: storage}
	return res, Success
}

func (e *Emulator) UnregisterResource(res Resource) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.enter(OpUnregister); s != Success {
		return s
	}
	if _, ok := e.resources[res]; !ok {
		return ErrorInvalidResourceHandle
	}
	delete(e.resources, res)
	return Success
}

func (e *Emulator) MapResource(res Resource) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.enter(OpMap); s != Success {
		return s
	}
	r, ok := e.resources[res]
	if !ok {
		return ErrorInvalidResourceHandle
	}
	if r.mapped {
		return ErrorAlreadyMapped
	}
	r.mapped = true
	return Success
}

func (e *Emulator) UnmapResource(res Resource) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.enter(OpUnmap); s != Success {
		return s
	}
	r, ok := e.resources[res]
	if !ok {
		return ErrorInvalidResourceHandle
	}
	if !r.mapped {
		return ErrorNotMapped
	}
	r.mapped = false
	return Success
}

func (e *Emulator) MappedPointer(res Resource) (uintptr, int64, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.enter(OpMappedPointer); s != Success {
		return 0, 0, s
	}
	r, ok := e.resources[res]
	if !ok {
		return 0, 0, ErrorInvalidResourceHandle
	}
	if !r.mapped {
		return 0, 0, ErrorNotMapped
	}
	return r.storage.Ptr(), r.storage.Size(), Success
}

func (e *Emulator) RuntimeVersion() (int, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, Success
}

func (e *Emulator) ErrorName(s Status) string   { return StatusName(s) }
func (e *Emulator) ErrorString(s Status) string { return StatusString(s) }
