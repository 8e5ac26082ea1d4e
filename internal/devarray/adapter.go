package devarray

import (
	"errors"
	"fmt"

	"github.com/xupit3r/psinterop/internal/gpu"
)

var (
	// ErrUnsupportedArrayType is returned when a source object speaks
	// neither supported exchange protocol
	ErrUnsupportedArrayType = errors.New("cannot read from device data object: it must implement the CUDA array interface or support DLPack export")

	// ErrMalformedArray is returned when a protocol applies but the
	// description it yields cannot be used
	ErrMalformedArray = errors.New("malformed device array")
)

// Outcome is the result class of probing one protocol
type Outcome int

const (
	NotApplicable Outcome = iota
	Found
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "not-applicable"
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProbeResult is Found with a View, Failed with an error, or NotApplicable
type ProbeResult struct {
	Outcome Outcome
	View    *View
	Err     error
}

func notApplicable() ProbeResult   { return ProbeResult{Outcome: NotApplicable} }
func failed(err error) ProbeResult { return ProbeResult{Outcome: Failed, Err: err} }
func found(view *View) ProbeResult { return ProbeResult{Outcome: Found, View: view} }
func foundOrFailed(v *View, err error) ProbeResult {
	if err != nil {
		return failed(err)
	}
	return found(v)
}

// Protocol is one way of recognizing a device array
type Protocol interface {
	Name() string
	Probe(a *Adapter, obj any) ProbeResult
}

// Adapter turns foreign device arrays into contiguous Views on one device
type Adapter struct {
	dev       gpu.Device
	pool      *gpu.BufferPool
	protocols []Protocol
	dlDevices []DLDeviceType
}

// NewAdapter creates an adapter whose scratch memory comes from pool. Arrays
// must live on the pool's device.
func NewAdapter(pool *gpu.BufferPool) *Adapter {
	dev := pool.Device()
	a := &Adapter{
		dev:       dev,
		pool:      pool,
		protocols: []Protocol{interfaceProtocol{}, exchangeProtocol{}},
	}
	if dev.Type() == gpu.DeviceTypeGPU {
		a.dlDevices = []DLDeviceType{DLCUDA, DLCUDAManaged}
	} else {
		a.dlDevices = []DLDeviceType{DLCPU}
	}
	return a
}

// Device returns the device views are created on
func (a *Adapter) Device() gpu.Device {
	return a.dev
}

// Protocols returns the probe order
func (a *Adapter) Protocols() []Protocol {
	return a.protocols
}

// Normalize probes obj with each protocol in order and returns the first
// view found. The caller must Release the view.
func (a *Adapter) Normalize(obj any) (*View, error) {
	for _, p := range a.protocols {
		res := p.Probe(a, obj)
		switch res.Outcome {
		case Found:
			return res.View, nil
		case Failed:
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArray, p.Name(), res.Err)
		}
	}
	return nil, fmt.Errorf("%w (got %T)", ErrUnsupportedArrayType, obj)
}

func (a *Adapter) acceptsDevice(t DLDeviceType) bool {
	for _, d := range a.dlDevices {
		if d == t {
			return true
		}
	}
	return false
}

// materialize exposes l as a contiguous view, gathering into scratch memory
// when the source is strided
func (a *Adapter) materialize(l layout, protocol string, owner any) (*View, error) {
	size, err := l.validate()
	if err != nil {
		return nil, err
	}

	v := &View{
		Shape:    append([]int(nil), l.shape...),
		DType:    l.dtype,
		ByteSize: size,
		Protocol: protocol,
	}
	if size == 0 {
		return v, nil
	}

	if l.contiguous() {
		v.Data = gpu.WrapPtr(a.dev, l.data, size, owner)
		return v, nil
	}

	scratch, err := a.pool.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("allocating contiguous copy: %w", err)
	}
	if err := gather(a.dev, scratch, l); err != nil {
		scratch.Free()
		return nil, err
	}
	v.Data = scratch
	v.scratch = scratch
	return v, nil
}

// interfaceProtocol reads CUDAArrayInterfacer descriptions
type interfaceProtocol struct{}

func (interfaceProtocol) Name() string { return "cuda-array-interface" }

func (p interfaceProtocol) Probe(a *Adapter, obj any) ProbeResult {
	src, ok := obj.(CUDAArrayInterfacer)
	if !ok {
		return notApplicable()
	}
	ai := src.CUDAArrayInterface()
	if ai.Masked {
		return failed(errors.New("masked arrays are not supported"))
	}
	dtype, err := ParseTypeStr(ai.TypeStr)
	if err != nil {
		return failed(err)
	}

	l := layout{shape: ai.Shape, dtype: dtype, data: ai.Data}
	if ai.Strides != nil {
		l.strides = make([]int64, len(ai.Strides))
		for i, s := range ai.Strides {
			l.strides[i] = int64(s)
		}
	}
	return foundOrFailed(a.materialize(l, p.Name(), obj))
}

// exchangeProtocol reads DLPackExporter tensors
type exchangeProtocol struct{}

func (exchangeProtocol) Name() string { return "dlpack" }

func (p exchangeProtocol) Probe(a *Adapter, obj any) ProbeResult {
	src, ok := obj.(DLPackExporter)
	if !ok {
		return notApplicable()
	}
	if !a.acceptsDevice(src.DLPackDevice().Type) {
		return notApplicable()
	}

	t, err := src.DLPack()
	if errors.Is(err, ErrNotExportable) {
		return notApplicable()
	}
	if err != nil {
		return failed(err)
	}
	if t == nil {
		return failed(errors.New("exporter returned no tensor"))
	}

	dtype, ok := dtypeFromDL(t.DType)
	if !ok {
		return failed(fmt.Errorf("unsupported DLPack dtype %+v", t.DType))
	}

	l := layout{
		shape: make([]int, len(t.Shape)),
		dtype: dtype,
		data:  t.Data + uintptr(t.ByteOffset),
	}
	for i, d := range t.Shape {
		l.shape[i] = int(d)
	}
	if t.Strides != nil {
		l.strides = make([]int64, len(t.Strides))
		for i, s := range t.Strides {
			l.strides[i] = s * int64(dtype.Size)
		}
	}
	return foundOrFailed(a.materialize(l, p.Name(), obj))
}
