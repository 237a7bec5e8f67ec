package events

import "sync"

// MemoryEmitter retains the most recent events in a bounded ring. The RPC
// layer exposes it so indexers can poll dispatch records; tests use it to
// assert emission.
type MemoryEmitter struct {
	mu    sync.Mutex
	limit int
	buf   []Event
}

// NewMemoryEmitter creates an emitter retaining up to limit events. A
// non-positive limit falls back to a sensible default.
func NewMemoryEmitter(limit int) *MemoryEmitter {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryEmitter{limit: limit}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, evt)
	if len(m.buf) > m.limit {
		m.buf = m.buf[len(m.buf)-m.limit:]
	}
}

// Events returns a copy of the retained events, oldest first.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.buf))
	copy(out, m.buf)
	return out
}
