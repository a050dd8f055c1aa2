package permission

import (
	"errors"
	"sync"
)

// MaxRoles is the number of distinct roles a [Registry] can hold.
const MaxRoles = 64

// Registry maps role names to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a role [Registry] and registers roles in order.
func NewRegistry(roles ...string) (*Registry, error) {
	r := &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
	for _, role := range roles {
		if _, err := r.Register(role); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register assigns the next available bit to the named role.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if name == "" {
		return -1, errors.New("role name cannot be empty")
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("role already registered: " + name)
	}

	nextBit := len(r.nameToBit)
	if nextBit >= MaxRoles {
		return -1, errors.New("role limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// Bit returns the bit index for the named role, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the role name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered roles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// Mask builds the set of the named roles. Names that are not registered are
// returned in unknown and contribute no bit.
func (r *Registry) Mask(names []string) (mask Mask64, unknown []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		bit, ok := r.nameToBit[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		mask.Set(bit)
	}
	return mask, unknown
}

// Names lists the roles in m in bit order.
func (r *Registry) Names(m Mask64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for bit := 0; bit < MaxRoles; bit++ {
		if !m.Has(bit) {
			continue
		}
		if name, ok := r.bitToName[bit]; ok {
			out = append(out, name)
		}
	}
	return out
}
