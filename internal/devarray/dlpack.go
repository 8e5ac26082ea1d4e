package devarray

import "errors"

// ErrNotExportable is returned by a DLPackExporter that cannot export its
// data. The adapter treats it as "protocol not applicable".
var ErrNotExportable = errors.New("devarray: object cannot be exported through DLPack")

// DLDeviceType mirrors DLDeviceType from dlpack.h
type DLDeviceType int32

const (
	DLCPU         DLDeviceType = 1
	DLCUDA        DLDeviceType = 2
	DLCUDAHost    DLDeviceType = 3
	DLCUDAManaged DLDeviceType = 13
)

// DLDevice identifies where a tensor lives
type DLDevice struct {
	Type DLDeviceType
	ID   int32
}

// DLDataTypeCode mirrors DLDataTypeCode from dlpack.h
type DLDataTypeCode uint8

const (
	DLInt     DLDataTypeCode = 0
	DLUInt    DLDataTypeCode = 1
	DLFloat   DLDataTypeCode = 2
	DLBfloat  DLDataTypeCode = 4
	DLComplex DLDataTypeCode = 5
	DLBool    DLDataTypeCode = 6
)

// DLDataType describes an element as code, bit width and vector lanes
type DLDataType struct {
	Code  DLDataTypeCode
	Bits  uint8
	Lanes uint16
}

// DLTensor is the borrowed tensor description a DLPack producer hands out
type DLTensor struct {
	Data       uintptr
	Device     DLDevice
	DType      DLDataType
	Shape      []int64
	Strides    []int64 // in elements; nil means C-contiguous
	ByteOffset uint64
}

// DLPackExporter is implemented by arrays that support the DLPack exchange
// protocol
type DLPackExporter interface {
	DLPackDevice() DLDevice
	DLPack() (*DLTensor, error)
}

var dlKinds = map[DLDataTypeCode]byte{
	DLInt:     'i',
	DLUInt:    'u',
	DLFloat:   'f',
	DLComplex: 'c',
	DLBool:    'b',
}

// dtypeFromDL converts a DLPack element type. Vector lanes and bfloat16 have
// no DType equivalent.
func dtypeFromDL(t DLDataType) (DType, bool) {
	kind, ok := dlKinds[t.Code]
	if !ok || t.Lanes != 1 || t.Bits%8 != 0 || t.Bits == 0 {
		return DType{}, false
	}
	d := DType{Kind: kind, Size: int(t.Bits) / 8}
	return d, d.Valid()
}

func dtypeToDL(d DType) DLDataType {
	for code, kind := range dlKinds {
		if kind == d.Kind {
			return DLDataType{Code: code, Bits: uint8(d.Size * 8), Lanes: 1}
		}
	}
	return DLDataType{}
}
