// ABOUTME: Wire-adjacent value types carried over the fabric's channels
// ABOUTME: Observations, time sync samples, and downlink-derived events
package fabric

import "time"

// DeviceObservation is one scan update, emitted by the BLE scanner and
// consumed by the session client and the selector (spec.md §3). Once
// created it is never mutated.
type DeviceObservation struct {
	Address    string
	RSSI       int16
	ObservedAt time.Time
}

// TimeSync carries the server's monotonic nanosecond counter from the
// session client's TimeService stream to the audio engine.
type TimeSync struct {
	ServerElapsedNanos uint64
	ReceivedAt         time.Time
}

// SoundSetting is the optional volume-shaping refinement payload
// (spec.md §4.5).
type SoundSetting struct {
	MaxVolumeRSSI int16
	MinVolumeRSSI int16
	MaxVolume     float64
	MinVolume     float64
	IsMuted       bool
}

// SEPlayRequest asks the audio engine to fire a one-shot sound effect.
type SEPlayRequest struct {
	AssetName string
}

// EnabledChange is a MoonlightUpdate-derived flip of this node's own
// enable flag.
type EnabledChange struct {
	Address string
	Enabled bool
}
