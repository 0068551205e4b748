package state

import "fmt"

// Begin opens a buffered transition on top of this manager. All writes made
// through the returned manager stay in its overlay until Commit; discarding
// the transition (simply dropping it) leaves the parent untouched. Transitions
// nest: committing a child flushes into its parent's overlay, not the
// database.
func (m *Manager) Begin() *Manager {
	return &Manager{db: m.db, parent: m, overlay: make(map[string][]byte)}
}

// Commit flushes the buffered writes into the parent manager. Calling Commit
// on a root manager is an error. After a successful commit the overlay is
// reset so the transition can be reused, though callers typically discard it.
func (m *Manager) Commit() error {
	if m.overlay == nil || m.parent == nil {
		return fmt.Errorf("state: commit on non-transition manager")
	}
	for key, value := range m.overlay {
		if err := m.parent.writeRaw([]byte(key), value); err != nil {
			return err
		}
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Discard drops any buffered writes. It exists for symmetry with Commit so
// call sites can be explicit about abandoning a transition.
func (m *Manager) Discard() {
	if m.overlay != nil {
		m.overlay = make(map[string][]byte)
	}
}

// Dirty reports the number of buffered writes. Intended for tests.
func (m *Manager) Dirty() int {
	return len(m.overlay)
}
