package permission

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrFrozen    = errors.New("registry frozen")
	ErrCapacity  = errors.New("permission limit exceeded")
	ErrUnknown   = errors.New("permission not registered")
	ErrDuplicate = errors.New("permission already registered")
)

// Registry maps capability names to bit positions in registration order.
type Registry struct {
	rootReserved bool

	mu     sync.RWMutex
	names  []string // index is the bit
	frozen bool
}

// NewRegistry returns an empty registry. rootReserved keeps the highest bit
// for a super-admin capability that implies all others.
func NewRegistry(rootReserved bool) *Registry {
	return &Registry{rootReserved: rootReserved}
}

func (r *Registry) capacity() int {
	if r.rootReserved {
		return maxBits - 1
	}
	return maxBits
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return -1, ErrFrozen
	case slices.Contains(r.names, name):
		return -1, fmt.Errorf("%w: %s", ErrDuplicate, name)
	case len(r.names) >= r.capacity():
		return -1, ErrCapacity
	}
	r.names = append(r.names, name)
	return len(r.names) - 1, nil
}

// Bit returns the bit index for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.Index(r.names, name)
	return i, i >= 0
}

// Name returns the capability assigned to bit.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bit < 0 || bit >= len(r.names) {
		return "", false
	}
	return r.names[bit], true
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// RootReserved reports whether the highest bit is the root capability.
func (r *Registry) RootReserved() bool { return r.rootReserved }
