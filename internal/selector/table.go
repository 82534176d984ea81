// ABOUTME: Tracks the freshest RSSI per address for a bounded window
// ABOUTME: Sweeps stale entries no more than once per CleanupInterval
package selector

import (
	"sync"
	"time"
)

// CleanupInterval bounds both entry lifetime and sweep frequency
// (spec.md §4.4/§5).
const CleanupInterval = 5 * time.Second

type tableEntry struct {
	rssi       int16
	observedAt time.Time
}

// Table is the DeviceTable from spec.md §3: address -> latest
// observation, pruned of anything older than CleanupInterval.
type Table struct {
	mu        sync.Mutex
	entries   map[string]tableEntry
	lastSweep time.Time
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[string]tableEntry)}
}

// Insert records the latest observation for address.
func (t *Table) Insert(address string, rssi int16, observedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[address] = tableEntry{rssi: rssi, observedAt: observedAt}
}

// RSSI returns the freshest known RSSI for address, if any.
func (t *Table) RSSI(address string) (int16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[address]
	return e.rssi, ok
}

// MaybeSweep drops entries older than CleanupInterval, but only if at
// least CleanupInterval has elapsed since the last sweep.
func (t *Table) MaybeSweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastSweep.IsZero() && now.Sub(t.lastSweep) < CleanupInterval {
		return
	}
	t.lastSweep = now

	for addr, e := range t.entries {
		if now.Sub(e.observedAt) >= CleanupInterval {
			delete(t.entries, addr)
		}
	}
}

// Snapshot returns a copy of every address currently tracked and its
// RSSI, safe to range over without holding the lock.
func (t *Table) Snapshot() map[string]int16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int16, len(t.entries))
	for addr, e := range t.entries {
		out[addr] = e.rssi
	}
	return out
}
