package permission

import (
	"errors"
	"sync"
)

// Registry maps permission names to bit positions within a Mask.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName []string
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nameToBit: make(map[string]int)}
}

// Register assigns the next available bit to the named permission and
// returns it. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered: " + name)
	}

	next := len(r.bitToName)
	if next >= MaxBits {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = next
	r.bitToName = append(r.bitToName, name)
	return next, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bit < 0 || bit >= len(r.bitToName) {
		return "", false
	}
	return r.bitToName[bit], true
}

// Names expands m into permission names in registration order.
func (r *Registry) Names(m Mask) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, m.Count())
	for bit, name := range r.bitToName {
		if m.Has(bit) {
			out = append(out, name)
		}
	}
	return out
}

// MaskOf builds a mask from permission names. Unknown names are reported
// in the second return value.
func (r *Registry) MaskOf(names ...string) (Mask, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		m       Mask
		unknown []string
	)
	for _, n := range names {
		bit, ok := r.nameToBit[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		m.Set(bit)
	}
	return m, unknown
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bitToName)
}
