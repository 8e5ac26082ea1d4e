package system

import (
	"fmt"
	"os"
)

func getHostMemory() (*HostMemory, error) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return nil, fmt.Errorf("failed to open /proc/meminfo: %w", err)
	}
	defer file.Close()

	return parseMeminfo(file)
}
