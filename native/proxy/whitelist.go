package proxy

import "bytes"

// Whitelist answers availability checks for external call targets. The
// dispatcher only ever consults IsAvailable; how the set is stored is a
// construction-time choice between the embedded state-backed set and an
// externally shared registry.
type Whitelist interface {
	IsAvailable(addr [20]byte) (bool, error)
}

// MutableWhitelist extends Whitelist with manager-gated mutation. The
// embedded implementation satisfies it; an external registry may or may not.
type MutableWhitelist interface {
	Whitelist
	Add(addr [20]byte) error
	Remove(addr [20]byte) error
	Providers() ([][20]byte, error)
}

// StateWhitelist is the embedded provider set, persisted as a single RLP
// index in state. Duplicate active entries are rejected.
type StateWhitelist struct {
	store Storage
}

// NewStateWhitelist binds the embedded whitelist to the supplied state view.
func NewStateWhitelist(store Storage) *StateWhitelist {
	return &StateWhitelist{store: store}
}

// IsAvailable reports whether addr is an approved call target.
func (w *StateWhitelist) IsAvailable(addr [20]byte) (bool, error) {
	entries, err := w.index()
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if bytes.Equal(entry, addr[:]) {
			return true, nil
		}
	}
	return false, nil
}

// Add approves a new call target. Adding an already-listed provider fails.
func (w *StateWhitelist) Add(addr [20]byte) error {
	entries, err := w.index()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if bytes.Equal(entry, addr[:]) {
			return ErrProviderAlreadyListed
		}
	}
	entries = append(entries, append([]byte(nil), addr[:]...))
	return w.store.KVPut(whitelistIndexKeyBytes, entries)
}

// Remove withdraws approval for a call target. Removing an unlisted provider
// is a no-op.
func (w *StateWhitelist) Remove(addr [20]byte) error {
	entries, err := w.index()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if !bytes.Equal(entry, addr[:]) {
			kept = append(kept, entry)
		}
	}
	return w.store.KVPut(whitelistIndexKeyBytes, kept)
}

// Providers returns the approved targets in insertion order.
func (w *StateWhitelist) Providers() ([][20]byte, error) {
	entries, err := w.index()
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(entries))
	for _, entry := range entries {
		if len(entry) != 20 {
			continue
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

func (w *StateWhitelist) index() ([][]byte, error) {
	var entries [][]byte
	if _, err := w.store.KVGet(whitelistIndexKeyBytes, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
