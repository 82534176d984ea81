// ABOUTME: Per-address dedup cache suppressing redundant BLE advertisements
// ABOUTME: Emits on first sight, then on interval elapsed or RSSI delta
package scanner

import (
	"sync"
	"time"
)

const (
	// DedupInterval is the minimum inter-emission gap for the same
	// address before RSSI delta alone can bypass it (spec.md §5).
	DedupInterval = 25 * time.Millisecond

	// DedupRSSIDelta is the RSSI delta that bypasses DedupInterval.
	DedupRSSIDelta = 1

	// CacheSweepInterval is how often stale dedup entries are dropped.
	CacheSweepInterval = 30 * time.Second

	// CacheEntryTTL is how old a dedup entry can get before the sweep
	// drops it.
	CacheEntryTTL = 60 * time.Second
)

type dedupEntry struct {
	lastSent time.Time
	lastRSSI int16
}

// dedupCache tracks, per address, the last time and RSSI an observation
// was emitted so the scanner can suppress redundant emissions
// (spec.md §4.1).
type dedupCache struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
}

func newDedupCache() *dedupCache {
	return &dedupCache{entries: make(map[string]dedupEntry)}
}

// shouldEmit reports whether an observation for address/rssi at now
// passes the dedup predicate, and records it if so. New addresses are
// always emitted.
func (c *dedupCache) shouldEmit(address string, rssi int16, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, known := c.entries[address]
	if !known {
		c.entries[address] = dedupEntry{lastSent: now, lastRSSI: rssi}
		return true
	}

	elapsed := now.Sub(prev.lastSent)
	rssiDelta := rssi - prev.lastRSSI
	if rssiDelta < 0 {
		rssiDelta = -rssiDelta
	}

	if elapsed >= DedupInterval || rssiDelta >= DedupRSSIDelta {
		c.entries[address] = dedupEntry{lastSent: now, lastRSSI: rssi}
		return true
	}

	return false
}

// sweep drops entries whose lastSent is older than CacheEntryTTL.
func (c *dedupCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for addr, entry := range c.entries {
		if now.Sub(entry.lastSent) > CacheEntryTTL {
			delete(c.entries, addr)
		}
	}
}
