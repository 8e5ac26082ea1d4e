// Package system reports host memory. The emulated device allocates from
// host RAM, so its scratch pool is bounded by what the host has available.
package system

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
)

// HostMemory contains information about system memory
type HostMemory struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// GetHostMemory returns information about system RAM
func GetHostMemory() (*HostMemory, error) {
	return getHostMemory()
}

// parseMeminfo reads the MemTotal and MemAvailable lines of a
// /proc/meminfo style listing
func parseMeminfo(r io.Reader) (*HostMemory, error) {
	var totalKB, availableKB int64
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}

		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			totalKB = value
		case "MemAvailable":
			availableKB = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if totalKB == 0 {
		return nil, fmt.Errorf("could not determine total RAM")
	}

	return &HostMemory{
		TotalBytes:     totalKB * 1024,
		AvailableBytes: availableKB * 1024,
		UsedBytes:      (totalKB - availableKB) * 1024,
	}, nil
}

// ClampScratchPool bounds a requested scratch pool to a quarter of the
// available host memory. A zero request stays zero (unbounded pool).
func ClampScratchPool(requested int64, mem *HostMemory) int64 {
	if mem == nil || requested <= 0 {
		return requested
	}
	limit := mem.AvailableBytes / 4
	if limit > 0 && requested > limit {
		return limit
	}
	return requested
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Platform returns the os/arch pair the binary runs on
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
