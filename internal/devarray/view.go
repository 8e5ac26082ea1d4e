package devarray

import (
	"fmt"
	"math"

	"github.com/xupit3r/psinterop/internal/gpu"
)

// View is a contiguous, read-only view of a device array. It is produced per
// copy and must be released afterwards.
type View struct {
	Shape    []int
	DType    DType
	ByteSize int64
	Data     gpu.Buffer // nil when ByteSize is zero
	Protocol string     // protocol that produced the view

	scratch gpu.Buffer
}

// Gathered reports whether the source was non-contiguous and had to be
// copied into scratch memory
func (v *View) Gathered() bool {
	return v.scratch != nil
}

// Release returns scratch memory to its pool. It is safe to call twice.
func (v *View) Release() error {
	if v.scratch == nil {
		return nil
	}
	err := v.scratch.Free()
	v.scratch = nil
	v.Data = nil
	return err
}

// layout is a protocol-independent description of strided device memory
type layout struct {
	shape   []int
	strides []int64 // bytes; nil means C-contiguous
	dtype   DType
	data    uintptr
}

func numElements(shape []int) (int64, error) {
	empty := false
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative extent %d in dimension %d", d, i)
		}
		empty = empty || d == 0
	}
	if empty {
		return 0, nil
	}
	n := int64(1)
	for _, d := range shape {
		if n > math.MaxInt64/int64(d) {
			return 0, fmt.Errorf("element count of shape %v overflows int64", shape)
		}
		n *= int64(d)
	}
	return n, nil
}

// byteSize returns the size in bytes of n elements of dtype
func byteSize(n int64, dtype DType) (int64, error) {
	if dtype.Size > 0 && n > math.MaxInt64/int64(dtype.Size) {
		return 0, fmt.Errorf("%d elements of %s overflow int64 bytes", n, dtype)
	}
	return n * int64(dtype.Size), nil
}

func cStrides(shape []int, itemSize int) []int64 {
	strides := make([]int64, len(shape))
	acc := int64(itemSize)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= int64(shape[i])
	}
	return strides
}

func (l layout) validate() (int64, error) {
	n, err := numElements(l.shape)
	if err != nil {
		return 0, err
	}
	if l.strides != nil && len(l.strides) != len(l.shape) {
		return 0, fmt.Errorf("%d strides for %d dimensions", len(l.strides), len(l.shape))
	}
	if n > 0 && l.data == 0 {
		return 0, fmt.Errorf("null data pointer for %d elements", n)
	}
	return byteSize(n, l.dtype)
}

// contiguous applies the usual C-order rule: extents of one may carry any
// stride, and empty arrays are trivially contiguous
func (l layout) contiguous() bool {
	if l.strides == nil {
		return true
	}
	for _, d := range l.shape {
		if d == 0 {
			return true
		}
	}
	want := cStrides(l.shape, l.dtype.Size)
	for i, s := range l.strides {
		if l.shape[i] != 1 && s != want[i] {
			return false
		}
	}
	return true
}

// gather copies a strided layout into dst in C order. Trailing dimensions
// that are already contiguous are copied as single runs.
func gather(dev gpu.Device, dst gpu.Buffer, l layout) error {
	nd := len(l.shape)
	run := int64(l.dtype.Size)
	k := nd
	for k > 0 && (l.shape[k-1] == 1 || l.strides[k-1] == run) {
		run *= int64(l.shape[k-1])
		k--
	}

	idx := make([]int, k)
	var dstOff int64
	for {
		var srcOff int64
		for i := 0; i < k; i++ {
			srcOff += int64(idx[i]) * l.strides[i]
		}

		src := gpu.WrapPtr(dev, uintptr(int64(l.data)+srcOff), run, nil)
		out, err := gpu.View(dst, dstOff, run)
		if err != nil {
			return err
		}
		if err := dev.Copy(out, src, run); err != nil {
			return fmt.Errorf("gathering strided array: %w", err)
		}
		dstOff += run

		// odometer increment over the outer k dimensions
		i := k - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < l.shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}
