package devarray

// ArrayInterface describes device memory the way the CUDA array interface
// (version 3) does
type ArrayInterface struct {
	Shape    []int
	TypeStr  string // e.g. "<f4"
	Data     uintptr
	ReadOnly bool
	Strides  []int // in bytes; nil means C-contiguous
	Masked   bool  // masked arrays cannot be copied verbatim
	Version  int
}

// CUDAArrayInterfacer is implemented by device arrays that describe their
// memory through the CUDA array interface
type CUDAArrayInterfacer interface {
	CUDAArrayInterface() ArrayInterface
}
