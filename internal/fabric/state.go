// ABOUTME: Shared mutable state: sound map, identity, points, enable flag
// ABOUTME: Guarded by short critical sections, no I/O performed under lock
package fabric

import (
	"sync"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
)

// SharedState bundles the state table from spec.md §5: SoundMap and
// LocationTypeCache are co-located so they can be rewritten atomically
// from a reader's perspective and always share the same key set.
type SharedState struct {
	mu                sync.RWMutex
	soundMap          map[string]string // address -> asset name
	locationTypeCache map[string]string // address -> place_type
	selfIdentity      string
	selfIdentitySet   bool
	points            int32
	enabled           bool
}

// NewSharedState creates state with EnabledFlag defaulting to true per
// spec.md §3.
func NewSharedState() *SharedState {
	return &SharedState{
		soundMap:          make(map[string]string),
		locationTypeCache: make(map[string]string),
		enabled:           true,
	}
}

// SoundMapHas reports whether address is a known location.
func (s *SharedState) SoundMapHas(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.soundMap[address]
	return ok
}

// SoundAsset returns the resolved asset name for an address.
func (s *SharedState) SoundAsset(address string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.soundMap[address]
	return name, ok
}

// SoundMapSnapshot returns a copy of the current address->asset map,
// safe to range over without holding the lock.
func (s *SharedState) SoundMapSnapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.soundMap))
	for k, v := range s.soundMap {
		out[k] = v
	}
	return out
}

// PlaceType returns the cached place_type for an address.
func (s *SharedState) PlaceType(address string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt, ok := s.locationTypeCache[address]
	return pt, ok
}

// ApplyLocationUpdate performs the differential rewrite described in
// spec.md §4.3: insert/update every entry in locations, then remove any
// key absent from the new list. Both maps always end up with identical
// key sets.
func (s *SharedState) ApplyLocationUpdate(locations map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := s.points
	for address, placeType := range locations {
		s.locationTypeCache[address] = placeType
		s.soundMap[address] = assets.TrackName(placeType, points)
	}

	for address := range s.locationTypeCache {
		if _, ok := locations[address]; !ok {
			delete(s.locationTypeCache, address)
			delete(s.soundMap, address)
		}
	}
}

// RebuildSoundMap re-resolves every entry in SoundMap from
// LocationTypeCache, used after a point change (spec.md §4.3).
func (s *SharedState) RebuildSoundMap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for address, placeType := range s.locationTypeCache {
		s.soundMap[address] = assets.TrackName(placeType, s.points)
	}
}

// SelfIdentity returns the node's own BLE address, once learned.
func (s *SharedState) SelfIdentity() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfIdentity, s.selfIdentitySet
}

// SetSelfIdentity sets the node's own identity exactly once; later
// calls are ignored (write-once per spec.md §3).
func (s *SharedState) SetSelfIdentity(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selfIdentitySet {
		return
	}
	s.selfIdentity = address
	s.selfIdentitySet = true
}

// Points returns the current gameplay score.
func (s *SharedState) Points() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points
}

// SetPoints updates Points iff userID matches SelfIdentity and the
// value actually changed. Returns (oldPoints, changed).
func (s *SharedState) SetPoints(userID string, newPoints int32) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selfIdentitySet || userID != s.selfIdentity {
		return s.points, false
	}
	if newPoints == s.points {
		return s.points, false
	}

	old := s.points
	s.points = newPoints
	return old, true
}

// Enabled returns the node's current enable state.
func (s *SharedState) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled last-writer-wins updates EnabledFlag, returning whether
// the value actually flipped.
func (s *SharedState) SetEnabled(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.enabled != v
	s.enabled = v
	return changed
}
