//go:build !linux

package system

import (
	"fmt"
	"runtime"
)

func getHostMemory() (*HostMemory, error) {
	return nil, fmt.Errorf("host memory probing is not supported on %s", runtime.GOOS)
}
