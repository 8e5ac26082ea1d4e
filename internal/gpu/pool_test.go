package gpu

import (
	"testing"
)

func TestBufferPool(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Free()

	pool := NewBufferPool(dev, 10*1024*1024)
	defer pool.Clear()

	buf1, err := pool.Allocate(1024)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if buf1.Size() != 1024 {
		t.Errorf("Expected requested size 1024, got %d", buf1.Size())
	}

	if err := pool.Release(buf1); err != nil {
		t.Errorf("Release failed: %v", err)
	}

	stats := pool.Stats()
	if stats.Allocations != 1 {
		t.Errorf("Expected 1 allocation, got %d", stats.Allocations)
	}

	// Allocate again - should reuse from pool
	buf2, err := pool.Allocate(1024)
	if err != nil {
		t.Fatalf("Second allocate failed: %v", err)
	}

	stats = pool.Stats()
	if stats.Reuses != 1 {
		t.Errorf("Expected 1 reuse, got %d", stats.Reuses)
	}
	if stats.PoolHits != 1 {
		t.Errorf("Expected 1 pool hit, got %d", stats.PoolHits)
	}

	pool.Release(buf2)
}

func TestBufferPoolSizeRounding(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Free()

	pool := NewBufferPool(dev, 10*1024*1024)
	defer pool.Clear()

	// 100 bytes rounds to the 256 byte class
	buf1, _ := pool.Allocate(100)
	pool.Release(buf1)

	// 200 bytes fits the same class and must be fully writable
	buf2, _ := pool.Allocate(200)

	stats := pool.Stats()
	if stats.Reuses != 1 {
		t.Errorf("Expected buffer reuse due to size rounding, got %d reuses", stats.Reuses)
	}
	if buf2.Size() != 200 {
		t.Errorf("Expected size 200, got %d", buf2.Size())
	}

	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}
	if err := buf2.CopyFromHost(data); err != nil {
		t.Fatalf("CopyFromHost on reused buffer failed: %v", err)
	}
	got := make([]byte, 200)
	if err := buf2.CopyToHost(got); err != nil {
		t.Fatalf("CopyToHost on reused buffer failed: %v", err)
	}
	if got[199] != 199 {
		t.Errorf("Round trip mismatch: got %d", got[199])
	}

	pool.Release(buf2)
}

func TestBufferPoolEviction(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Free()

	// Room for exactly two 256KB buffers
	pool := NewBufferPool(dev, 512*1024)
	defer pool.Clear()

	bufs := make([]Buffer, 3)
	for i := range bufs {
		buf, err := pool.Allocate(256 * 1024)
		if err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		bufs[i] = buf
	}
	for _, buf := range bufs {
		pool.Release(buf)
	}

	stats := pool.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}

	pooled, active, max := pool.MemoryUsage()
	if pooled > max {
		t.Errorf("Pool exceeded limit: %d > %d", pooled, max)
	}
	if active != 0 {
		t.Errorf("Expected no active buffers, got %d bytes", active)
	}
}

func TestBufferPoolFreeRoutesToPool(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Free()

	pool := NewBufferPool(dev, 0)
	defer pool.Clear()

	buf, _ := pool.Allocate(4096)
	if err := buf.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	pooled, _, _ := pool.MemoryUsage()
	if pooled != 4096 {
		t.Errorf("Expected freed buffer to return to pool, pooled=%d", pooled)
	}
}

func TestRoundUpPowerOf2(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{1, 256},
		{256, 256},
		{257, 1024},
		{4000, 4096},
		{4097, 8192},
		{1 << 20, 1 << 20},
		{(1 << 20) + 1, 1 << 21},
	}
	for _, tt := range tests {
		if got := roundUpPowerOf2(tt.in); got != tt.want {
			t.Errorf("roundUpPowerOf2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
