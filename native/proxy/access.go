package proxy

import (
	"bytes"
	"fmt"
)

// AccessRegistry answers capability checks against the single transferable
// Admin identity and the flat set of Manager identities. Admin and Manager
// are independent capability sets: holding Admin does not grant Manager
// checks, so paths requiring both must hold both.
type AccessRegistry struct {
	store Storage
}

// NewAccessRegistry binds a registry to the supplied state view.
func NewAccessRegistry(store Storage) *AccessRegistry {
	return &AccessRegistry{store: store}
}

// Admin returns the current admin identity.
func (r *AccessRegistry) Admin() ([20]byte, error) {
	var admin [20]byte
	ok, err := r.store.KVGet(adminKeyBytes, &admin)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("proxy: admin not initialised")
	}
	return admin, nil
}

func (r *AccessRegistry) hasAdmin() (bool, error) {
	var admin [20]byte
	return r.store.KVGet(adminKeyBytes, &admin)
}

// IsAdmin reports whether id is the current admin.
func (r *AccessRegistry) IsAdmin(id [20]byte) (bool, error) {
	admin, err := r.Admin()
	if err != nil {
		return false, err
	}
	return admin == id, nil
}

// IsManager reports whether id holds the manager capability.
func (r *AccessRegistry) IsManager(id [20]byte) (bool, error) {
	managers, err := r.managers()
	if err != nil {
		return false, err
	}
	for _, member := range managers {
		if bytes.Equal(member, id[:]) {
			return true, nil
		}
	}
	return false, nil
}

// GrantManager adds id to the manager set. Admin only. Granting an existing
// manager is a no-op.
func (r *AccessRegistry) GrantManager(caller, id [20]byte) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	managers, err := r.managers()
	if err != nil {
		return err
	}
	for _, member := range managers {
		if bytes.Equal(member, id[:]) {
			return nil
		}
	}
	managers = append(managers, append([]byte(nil), id[:]...))
	return r.store.KVPut(managersKeyBytes, managers)
}

// RevokeManager removes id from the manager set. Admin only. Revoking a
// non-manager is a no-op.
func (r *AccessRegistry) RevokeManager(caller, id [20]byte) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	managers, err := r.managers()
	if err != nil {
		return err
	}
	kept := managers[:0]
	for _, member := range managers {
		if !bytes.Equal(member, id[:]) {
			kept = append(kept, member)
		}
	}
	return r.store.KVPut(managersKeyBytes, kept)
}

// TransferAdmin atomically replaces the single admin. Admin only; the new
// identity must not be zero so the admin seat is never empty.
func (r *AccessRegistry) TransferAdmin(caller, newAdmin [20]byte) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == ([20]byte{}) {
		return ErrZeroAdmin
	}
	return r.store.KVPut(adminKeyBytes, newAdmin)
}

// Paused reports the execution pause state. Pause only gates dispatches;
// configuration remains available while paused.
func (r *AccessRegistry) Paused() (bool, error) {
	var paused bool
	ok, err := r.store.KVGet(pausedKeyBytes, &paused)
	if err != nil {
		return false, err
	}
	return ok && paused, nil
}

// SetPaused toggles the pause state. Callable by a manager or the admin.
func (r *AccessRegistry) SetPaused(caller [20]byte, paused bool) error {
	if err := r.requireManagerOrAdmin(caller); err != nil {
		return err
	}
	current, err := r.Paused()
	if err != nil {
		return err
	}
	if current == paused {
		if paused {
			return ErrPaused
		}
		return ErrNotPaused
	}
	return r.store.KVPut(pausedKeyBytes, paused)
}

func (r *AccessRegistry) requireAdmin(caller [20]byte) error {
	ok, err := r.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAnAdmin
	}
	return nil
}

func (r *AccessRegistry) requireManager(caller [20]byte) error {
	ok, err := r.IsManager(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAManager
	}
	return nil
}

func (r *AccessRegistry) requireManagerOrAdmin(caller [20]byte) error {
	manager, err := r.IsManager(caller)
	if err != nil {
		return err
	}
	if manager {
		return nil
	}
	admin, err := r.IsAdmin(caller)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}
	return ErrNotAManager
}

func (r *AccessRegistry) managers() ([][]byte, error) {
	var managers [][]byte
	if _, err := r.store.KVGet(managersKeyBytes, &managers); err != nil {
		return nil, err
	}
	return managers, nil
}

func (r *AccessRegistry) setAdmin(admin [20]byte) error {
	if admin == ([20]byte{}) {
		return ErrZeroAdmin
	}
	return r.store.KVPut(adminKeyBytes, admin)
}
