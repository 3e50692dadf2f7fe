// Package queue implements the ordered waiting set of players and their
// role preferences. Insertion order is stable: removals never reorder the
// remaining entries, so panel rendering stays consistent.
package queue

import (
	"errors"
)

var (
	// ErrAlreadyQueued is returned when a player joins while already holding
	// an entry. Re-joining never creates a duplicate.
	ErrAlreadyQueued = errors.New("player already queued")
	// ErrNotQueued is returned when an operation targets a player without an
	// entry and the operation is not idempotent by contract.
	ErrNotQueued = errors.New("player not queued")
	// ErrProfileIncomplete signals that an entry was accepted in the
	// PendingProfile sub-state and the caller should prompt for the
	// missing BattleTag/rank fields.
	ErrProfileIncomplete = errors.New("player profile incomplete")
)

// NewManager creates an empty queue manager.
func NewManager() *Manager {
	return &Manager{}
}

// Join appends an entry. It fails with ErrAlreadyQueued when the player
// already holds one, regardless of that entry's sub-state.
func (m *Manager) Join(entry Entry) error {
	if m.find(entry.PlayerID) >= 0 {
		return ErrAlreadyQueued
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Promote moves a PendingProfile entry to Eligible once the missing
// profile fields were captured. The entry keeps its queue position.
func (m *Manager) Promote(playerID string, mmr int) error {
	i := m.find(playerID)
	if i < 0 {
		return ErrNotQueued
	}
	m.entries[i].State = StateEligible
	m.entries[i].MMR = mmr
	return nil
}

// Leave removes a player's entry. Removing an absent player is not an
// error; the return value reports whether a removal occurred.
func (m *Manager) Leave(playerID string) bool {
	i := m.find(playerID)
	if i < 0 {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return true
}

// Remove is the admin variant of Leave. Same idempotent contract.
func (m *Manager) Remove(playerID string) bool {
	return m.Leave(playerID)
}

// Clear empties the queue and returns how many entries were dropped.
func (m *Manager) Clear() int {
	n := len(m.entries)
	m.entries = nil
	return n
}

// Consume removes the given players' entries after formation selected
// them. Unknown IDs are ignored.
func (m *Manager) Consume(playerIDs []string) {
	if len(playerIDs) == 0 {
		return
	}
	selected := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		selected[id] = true
	}
	kept := m.entries[:0]
	for _, entry := range m.entries {
		if !selected[entry.PlayerID] {
			kept = append(kept, entry)
		}
	}
	m.entries = kept
}

// Entry returns a player's entry, or nil.
func (m *Manager) Entry(playerID string) *Entry {
	i := m.find(playerID)
	if i < 0 {
		return nil
	}
	entry := m.entries[i]
	return &entry
}

// Snapshot returns a copy of all entries in insertion order.
func (m *Manager) Snapshot() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Eligible returns the entries that count toward formation, in insertion
// order.
func (m *Manager) Eligible() []Entry {
	var out []Entry
	for _, entry := range m.entries {
		if entry.State == StateEligible {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the total number of entries, pending ones included.
func (m *Manager) Len() int {
	return len(m.entries)
}

// EligibleCount returns how many entries count toward formation.
func (m *Manager) EligibleCount() int {
	n := 0
	for _, entry := range m.entries {
		if entry.State == StateEligible {
			n++
		}
	}
	return n
}

func (m *Manager) find(playerID string) int {
	for i, entry := range m.entries {
		if entry.PlayerID == playerID {
			return i
		}
	}
	return -1
}
