package session

import (
	"sync"

	"github.com/srg/racelink/internal/device"
)

// Table is the descriptor table of a connection.
//
// Enumeration replaces the rows and starts a new generation. Notification
// processing records raw values only for the generation it was subscribed
// under, so values from a torn-down enumeration never leak into a new one.
type Table struct {
	mu         sync.RWMutex
	generation uint64
	rows       []device.CharacteristicDescriptor
	index      map[string]int
}

// NewTable creates an empty table at generation 0.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Replace installs rows as a new generation and returns it.
func (t *Table) Replace(rows []device.CharacteristicDescriptor) uint64 {
	index := make(map[string]int, len(rows))
	copied := make([]device.CharacteristicDescriptor, len(rows))
	for i, r := range rows {
		r.ServiceUUID = device.NormalizeUUID(r.ServiceUUID)
		r.UUID = device.NormalizeUUID(r.UUID)
		copied[i] = r
		if _, dup := index[r.Key()]; !dup {
			index[r.Key()] = i
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.rows = copied
	t.index = index
	return t.generation
}

// Generation returns the current generation.
func (t *Table) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// Snapshot returns a copy of the rows in enumeration order.
func (t *Table) Snapshot() []device.CharacteristicDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]device.CharacteristicDescriptor, len(t.rows))
	copy(out, t.rows)
	return out
}

// Lookup returns the row for a characteristic key.
func (t *Table) Lookup(key string) (device.CharacteristicDescriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[key]
	if !ok {
		return device.CharacteristicDescriptor{}, false
	}
	return t.rows[i], true
}

// RecordValue stores hex as the last raw value of key if generation is current.
func (t *Table) RecordValue(generation uint64, key, hex string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return false
	}
	i, ok := t.index[key]
	if !ok {
		return false
	}
	t.rows[i].LastRawValueHex = hex
	return true
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
