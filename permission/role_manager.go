package permission

import (
	"errors"
	"sync"
)

// AliasTable maps a granted role to the additional roles it satisfies.
// {"university": {"school"}} lets a university account open school views.
type AliasTable map[string][]string

// RoleManager resolves a user's role to the full set of roles it satisfies.
//
// RoleManager instances are intended to be configured during initialization and then treated as immutable after Freeze.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	grants map[string]Mask64
	frozen bool
}

// NewRoleManager seeds one grant per registered role: every role satisfies itself.
func NewRoleManager(registry *Registry) *RoleManager {
	rm := &RoleManager{
		registry: registry,
		grants:   make(map[string]Mask64, registry.Count()),
	}
	for bit := 0; bit < registry.Count(); bit++ {
		name, ok := registry.Name(bit)
		if !ok {
			continue
		}
		var m Mask64
		m.Set(bit)
		rm.grants[name] = m
	}
	return rm
}

/*
====================================
ALIASES
====================================
*/

// RegisterAlias makes role also satisfy every role in satisfies.
// Both sides must already be registered.
func (rm *RoleManager) RegisterAlias(role string, satisfies []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	mask, ok := rm.grants[role]
	if !ok {
		return errors.New("alias source role not registered: " + role)
	}

	for _, target := range satisfies {
		bit, ok := rm.registry.Bit(target)
		if !ok {
			return errors.New("alias target role not registered: " + target)
		}
		mask.Set(bit)
	}

	rm.grants[role] = mask
	return nil
}

// RegisterAliases applies every entry of table.
func (rm *RoleManager) RegisterAliases(table AliasTable) error {
	for role, satisfies := range table {
		if err := rm.RegisterAlias(role, satisfies); err != nil {
			return err
		}
	}
	return nil
}

/*
====================================
RESOLUTION
====================================
*/

// GetMask returns the set of roles satisfied by role.
func (rm *RoleManager) GetMask(role string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.grants[role]
	return mask, ok
}

// Allows reports whether role satisfies any role in allowed. known is false
// when role was never registered, in which case ok is always false.
func (rm *RoleManager) Allows(role string, allowed Mask64) (ok bool, known bool) {
	mask, known := rm.GetMask(role)
	if !known {
		return false, false
	}
	return mask.Intersects(allowed), true
}

// Freeze prevents further alias registration.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of known roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.grants)
}
