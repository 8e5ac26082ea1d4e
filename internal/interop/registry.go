package interop

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/logging"
	"github.com/xupit3r/psinterop/internal/render"
)

// Registry caches one MappedBuffer per key, typically a quantity name.
// Entries live until they are displaced, removed or the registry is closed;
// all three unregister the evicted buffer. The mutex only protects the map:
// graphics interop must still happen on the GL context thread.
type Registry struct {
	rt  cudart.Runtime
	dev gpu.Device

	mu      sync.Mutex
	entries map[string]*MappedBuffer
}

// NewRegistry creates an empty registry whose buffers are registered with rt
// and addressed through dev
func NewRegistry(rt cudart.Runtime, dev gpu.Device) *Registry {
	return &Registry{
		rt:      rt,
		dev:     dev,
		entries: make(map[string]*MappedBuffer),
	}
}

// GetOrCreate returns the cached MappedBuffer for key if it wraps buffer.
// Otherwise it registers buffer, stores the new MappedBuffer under key and
// unregisters whatever it displaced.
func (r *Registry) GetOrCreate(key string, buffer render.AttributeBuffer) (*MappedBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.entries[key]
	if ok && old.IsSameBuffer(buffer) {
		return old, nil
	}

	mb, err := NewMappedBuffer(r.rt, r.dev, buffer)
	if err != nil {
		return nil, fmt.Errorf("mapped buffer %q: %w", key, err)
	}
	r.entries[key] = mb

	if ok {
		r.evict(key, old)
	}
	return mb, nil
}

// evict unregisters a displaced entry. Failure is logged, not returned: the
// new entry is already in place and the caller cannot act on it.
func (r *Registry) evict(key string, mb *MappedBuffer) {
	if err := mb.Unregister(); err != nil && !errors.Is(err, ErrUnregistered) {
		logging.WithFields(logrus.Fields{"key": key}).
			Warnf("failed to unregister displaced mapped buffer: %v", err)
		return
	}
	logging.WithFields(logrus.Fields{"key": key}).Debug("evicted displaced mapped buffer")
}

// Get returns the cached entry for key, if any
func (r *Registry) Get(key string) (*MappedBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.entries[key]
	return mb, ok
}

// Remove unregisters and forgets the entry for key. Removing an unknown key
// is a no-op.
func (r *Registry) Remove(key string) error {
	r.mu.Lock()
	mb, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := mb.Unregister(); err != nil && !errors.Is(err, ErrUnregistered) {
		return fmt.Errorf("removing mapped buffer %q: %w", key, err)
	}
	return nil
}

// Keys returns the cached keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close unregisters every entry and empties the registry. All entries are
// attempted; failures are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*MappedBuffer)
	r.mu.Unlock()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := entries[k].Unregister(); err != nil && !errors.Is(err, ErrUnregistered) {
			errs = append(errs, fmt.Errorf("mapped buffer %q: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
