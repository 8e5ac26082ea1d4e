package system

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetHostMemory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skipf("host memory probing not supported on %s", runtime.GOOS)
	}

	info, err := GetHostMemory()
	if err != nil {
		t.Fatalf("GetHostMemory failed: %v", err)
	}

	if info.TotalBytes <= 0 {
		t.Errorf("Expected positive total bytes, got %d", info.TotalBytes)
	}

	if info.AvailableBytes > info.TotalBytes {
		t.Errorf("Available bytes (%d) cannot exceed total bytes (%d)",
			info.AvailableBytes, info.TotalBytes)
	}
}

func TestParseMeminfo(t *testing.T) {
	input := `MemTotal:       16384000 kB
MemFree:         1000000 kB
MemAvailable:    8192000 kB
Buffers:          garbage
`
	info, err := parseMeminfo(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseMeminfo failed: %v", err)
	}
	if info.TotalBytes != 16384000*1024 {
		t.Errorf("TotalBytes = %d", info.TotalBytes)
	}
	if info.AvailableBytes != 8192000*1024 {
		t.Errorf("AvailableBytes = %d", info.AvailableBytes)
	}
	if info.UsedBytes != 8192000*1024 {
		t.Errorf("UsedBytes = %d", info.UsedBytes)
	}

	if _, err := parseMeminfo(strings.NewReader("MemFree: 10 kB\n")); err == nil {
		t.Error("Expected error without MemTotal")
	}
}

func TestClampScratchPool(t *testing.T) {
	mem := &HostMemory{TotalBytes: 8 << 30, AvailableBytes: 1 << 30}

	tests := []struct {
		requested int64
		mem       *HostMemory
		expected  int64
	}{
		{64 << 20, mem, 64 << 20},
		{1 << 30, mem, 256 << 20},
		{0, mem, 0},
		{1 << 30, nil, 1 << 30},
		{1 << 30, &HostMemory{TotalBytes: 1}, 1 << 30},
	}

	for _, tt := range tests {
		if got := ClampScratchPool(tt.requested, tt.mem); got != tt.expected {
			t.Errorf("ClampScratchPool(%d) = %d; want %d", tt.requested, got, tt.expected)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1536 * 1024 * 1024, "1.5 GiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %s; want %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestPlatform(t *testing.T) {
	if got := Platform(); got != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform() = %s", got)
	}
}
