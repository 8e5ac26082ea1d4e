package interop

import (
	"sync"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
)

// Dependency names an optional runtime dependency and where to get it
type Dependency struct {
	Name string
	URL  string
}

var (
	// ComputeRuntime is the CUDA runtime used for register, map and unmap
	ComputeRuntime = Dependency{
		Name: "CUDA runtime bindings",
		URL:  "https://developer.nvidia.com/cuda-downloads",
	}

	// DeviceArrayLibrary provides device memory, contiguous copies and the
	// array exchange protocols
	DeviceArrayLibrary = Dependency{
		Name: "CUDA device array support",
		URL:  "https://docs.nvidia.com/cuda/cuda-installation-guide-linux/",
	}
)

// DependencyStatus is the outcome of loading one dependency. Absence is a
// value here; the Gate decides whether it is an error.
type DependencyStatus struct {
	Dependency `yaml:",inline"`
	Probed     bool   `yaml:"probed"`
	Available  bool   `yaml:"available"`
	Version    string `yaml:"version,omitempty"`
	Err        error  `yaml:"-"`
}

// Capability is anything the Gate can ask for a dependency status
type Capability interface {
	Status() DependencyStatus
}

// Loader lazily loads one dependency the first time it is needed. Nothing
// is loaded at construction.
type Loader[T any] struct {
	dep     Dependency
	load    func() (T, error)
	version func(T) (string, error)

	once   sync.Once
	value  T
	status DependencyStatus
}

// NewLoader creates a loader for dep. load runs at most once.
func NewLoader[T any](dep Dependency, load func() (T, error)) *Loader[T] {
	return &Loader[T]{
		dep:    dep,
		load:   load,
		status: DependencyStatus{Dependency: dep},
	}
}

// WithVersion sets how the loaded value reports its version
func (l *Loader[T]) WithVersion(fn func(T) (string, error)) *Loader[T] {
	l.version = fn
	return l
}

func (l *Loader[T]) init() {
	l.once.Do(func() {
		v, err := l.load()
		l.status.Probed = true
		if err != nil {
			l.status.Err = err
			return
		}
		l.value = v
		l.status.Available = true
		if l.version != nil {
			ver, err := l.version(v)
			if err != nil {
				l.status.Err = err
				return
			}
			l.status.Version = ver
		}
	})
}

// Get loads the dependency if needed and returns it
func (l *Loader[T]) Get() (T, error) {
	l.init()
	if !l.status.Available {
		var zero T
		return zero, l.status.Err
	}
	return l.value, nil
}

// Status loads the dependency if needed and reports the outcome
func (l *Loader[T]) Status() DependencyStatus {
	l.init()
	return l.status
}

// Dependency returns what the loader loads
func (l *Loader[T]) Dependency() Dependency {
	return l.dep
}

// RuntimeLoader loads the CUDA runtime and reports its version as
// "major.minor"
func RuntimeLoader(load func() (cudart.Runtime, error)) *Loader[cudart.Runtime] {
	return NewLoader(ComputeRuntime, load).WithVersion(func(rt cudart.Runtime) (string, error) {
		v, st := rt.RuntimeVersion()
		if err := cudart.Check(rt, st); err != nil {
			return "", err
		}
		return cudart.FormatVersion(v), nil
	})
}

// NativeRuntimeLoader loads the cgo CUDA runtime
func NativeRuntimeLoader() *Loader[cudart.Runtime] {
	return RuntimeLoader(cudart.Load)
}

// AdapterLoader loads a device array adapter whose scratch memory comes
// from a pool of poolBytes on the device returned by open
func AdapterLoader(open func() (gpu.Device, error), poolBytes int64) *Loader[*devarray.Adapter] {
	return NewLoader(DeviceArrayLibrary, func() (*devarray.Adapter, error) {
		dev, err := open()
		if err != nil {
			return nil, err
		}
		return devarray.NewAdapter(gpu.NewBufferPool(dev, poolBytes)), nil
	})
}

// NativeAdapterLoader loads an adapter over the CUDA device
func NativeAdapterLoader(poolBytes int64) *Loader[*devarray.Adapter] {
	return AdapterLoader(func() (gpu.Device, error) {
		return gpu.GetDevice(gpu.DeviceTypeGPU)
	}, poolBytes)
}
