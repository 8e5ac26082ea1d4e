// Package interop pushes device arrays into OpenGL attribute buffers through
// CUDA/OpenGL interop.
//
// A Bridge runs the capability Gate, resolves a MappedBuffer from its
// Registry and copies the array in:
//
//	b, _ := interop.New(interop.Options{Backend: backend})
//	err := b.SetBufferFromArray("positions", buf, arr, []int{n, 3}, devarray.Float32)
//
// All calls must come from the goroutine that owns the GL context.
package interop

import (
	"fmt"
	"sync"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/render"
)

// DefaultScratchPoolBytes bounds the scratch memory kept for gathering
// strided arrays
const DefaultScratchPoolBytes = 64 << 20

// Options configures a Bridge
type Options struct {
	Backend         render.Backend
	AllowedBackends []string // empty means DefaultAllowedBackends

	// Runtime and Adapter default to the native loaders
	Runtime *Loader[cudart.Runtime]
	Adapter *Loader[*devarray.Adapter]

	// MinRuntimeVersion is a semver constraint on the CUDA runtime, e.g.
	// ">= 11.0". Empty disables the check.
	MinRuntimeVersion string

	ScratchPoolBytes int64
}

// Bridge is the entry point for pushing device arrays into attribute buffers
type Bridge struct {
	gate    *Gate
	runtime *Loader[cudart.Runtime]
	adapter *Loader[*devarray.Adapter]

	mu       sync.Mutex
	registry *Registry
}

// New creates a bridge. No dependency is loaded until the first check or
// copy.
func New(opts Options) (*Bridge, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("interop: a rendering backend is required")
	}
	if opts.ScratchPoolBytes <= 0 {
		opts.ScratchPoolBytes = DefaultScratchPoolBytes
	}
	if opts.Runtime == nil {
		opts.Runtime = NativeRuntimeLoader()
	}
	if opts.Adapter == nil {
		opts.Adapter = NativeAdapterLoader(opts.ScratchPoolBytes)
	}

	gate := NewGate(opts.Backend, opts.AllowedBackends, opts.Runtime, opts.Adapter)
	if opts.MinRuntimeVersion != "" {
		if err := gate.RequireVersion(ComputeRuntime, opts.MinRuntimeVersion); err != nil {
			return nil, err
		}
	}

	return &Bridge{
		gate:    gate,
		runtime: opts.Runtime,
		adapter: opts.Adapter,
	}, nil
}

// Emulated returns options that run the bridge against an emulated backend
// and runtime sharing one host address space. The returned emulator can be
// used to inspect or fault the runtime.
func Emulated(backend *render.Emulated, scratchPoolBytes int64) (Options, *cudart.Emulator) {
	emu := cudart.NewEmulator(backend.Lookup)
	return Options{
		Backend: backend,
		Runtime: RuntimeLoader(func() (cudart.Runtime, error) { return emu, nil }),
		Adapter: AdapterLoader(func() (gpu.Device, error) {
			return backend.Device(), nil
		}, scratchPoolBytes),
		ScratchPoolBytes: scratchPoolBytes,
	}, emu
}

// Gate returns the capability gate
func (b *Bridge) Gate() *Gate {
	return b.gate
}

// CheckAvailability runs the capability gate
func (b *Bridge) CheckAvailability() error {
	return b.gate.CheckAvailability()
}

// Adapter returns the device array adapter after the gate has passed
func (b *Bridge) Adapter() (*devarray.Adapter, error) {
	if err := b.gate.CheckAvailability(); err != nil {
		return nil, err
	}
	return b.adapter.Get()
}

// Registry returns the mapped buffer registry, creating it once the gate
// has passed
func (b *Bridge) Registry() (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registry != nil {
		return b.registry, nil
	}

	if err := b.gate.CheckAvailability(); err != nil {
		return nil, err
	}
	rt, err := b.runtime.Get()
	if err != nil {
		return nil, err
	}
	ad, err := b.adapter.Get()
	if err != nil {
		return nil, err
	}
	b.registry = NewRegistry(rt, ad.Device())
	return b.registry, nil
}

// SetBufferFromArray copies src into buffer, registering buffer under key
// on first use
func (b *Bridge) SetBufferFromArray(key string, buffer render.AttributeBuffer, src any, shape []int, dtype devarray.DType) error {
	reg, err := b.Registry()
	if err != nil {
		return err
	}
	ad, err := b.adapter.Get()
	if err != nil {
		return err
	}
	mb, err := reg.GetOrCreate(key, buffer)
	if err != nil {
		return err
	}
	if err := mb.SetDataFromArray(ad, src, shape, dtype); err != nil {
		return fmt.Errorf("setting %q from device array: %w", key, err)
	}
	return nil
}

// Remove unregisters the buffer cached under key, e.g. when its quantity is
// deleted
func (b *Bridge) Remove(key string) error {
	b.mu.Lock()
	reg := b.registry
	b.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.Remove(key)
}

// Close unregisters every cached buffer
func (b *Bridge) Close() error {
	b.mu.Lock()
	reg := b.registry
	b.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.Close()
}

var (
	defaultMu     sync.Mutex
	defaultBridge *Bridge
)

// Default returns the process-wide bridge, or nil if none was set
func Default() *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultBridge
}

// SetDefault installs b as the process-wide bridge and returns the previous
// one. The caller owns closing the previous bridge.
func SetDefault(b *Bridge) *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultBridge
	defaultBridge = b
	return prev
}

// SetBufferFromArray copies src into buffer through the default bridge
func SetBufferFromArray(key string, buffer render.AttributeBuffer, src any, shape []int, dtype devarray.DType) error {
	b := Default()
	if b == nil {
		return fmt.Errorf("interop: no default bridge, call SetDefault first")
	}
	return b.SetBufferFromArray(key, buffer, src, shape, dtype)
}
