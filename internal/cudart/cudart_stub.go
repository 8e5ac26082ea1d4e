//go:build !(linux && cgo && cuda)

package cudart

import "fmt"

func loadNative() (Runtime, error) {
	return nil, fmt.Errorf("%w: build with -tags cuda on Linux with CGO enabled", ErrNotAvailable)
}
