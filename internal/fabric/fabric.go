// ABOUTME: Bounded channels and forwarding loops connecting C1-C5
// ABOUTME: Owns BTScan and gates fan-out delivery on the enabled flag
package fabric

import "context"

// ChannelCapacity is the minimum bounded capacity required by spec.md
// §4.2 for every inter-component channel.
const ChannelCapacity = 32

// Fabric is the single wiring point connecting the BLE scanner, the
// session client, the selector, and the audio engine (spec.md §4.2). It
// owns every shared channel and the shared state handles so any
// component can reach the others without a direct dependency between
// them.
type Fabric struct {
	State *SharedState

	// BTScan is single-producer (scanner) / single-consumer (the
	// forwarder below). The scanner may drop on overflow.
	BTScan chan DeviceObservation

	// ObservationsFanout broadcasts deduplicated, enabled-gated
	// observations to the uplink batcher, the interaction router, and
	// the selector.
	ObservationsFanout *Broadcaster[DeviceObservation]

	// TimeSync is single server -> single consumer (audio engine).
	TimeSync chan TimeSync

	// SoundSetting is single server -> single consumer (audio engine).
	SoundSetting chan SoundSetting

	// SEPlay is many-producer (selector/interaction) -> single
	// consumer (audio engine).
	SEPlay chan SEPlayRequest

	// SystemEnabled broadcasts EnabledFlag changes from the session
	// client to both the forwarder and the audio engine.
	SystemEnabled *Broadcaster[EnabledChange]
}

// New builds a Fabric with all channels at the minimum bounded
// capacity and EnabledFlag defaulting to true.
func New() *Fabric {
	return &Fabric{
		State:              NewSharedState(),
		BTScan:             make(chan DeviceObservation, ChannelCapacity),
		ObservationsFanout: NewBroadcaster[DeviceObservation]("observations_fanout"),
		TimeSync:           make(chan TimeSync, ChannelCapacity),
		SoundSetting:       make(chan SoundSetting, ChannelCapacity),
		SEPlay:             make(chan SEPlayRequest, ChannelCapacity),
		SystemEnabled:      NewBroadcaster[EnabledChange]("system_enabled"),
	}
}

// RunForwarder drains BTScan and republishes to ObservationsFanout,
// consulting EnabledFlag on every observation. When disabled it drops
// observations silently but keeps draining the upstream channel
// (spec.md §4.2) so the scanner never blocks.
func (f *Fabric) RunForwarder(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-f.BTScan:
			if !f.State.Enabled() {
				continue
			}
			f.ObservationsFanout.Publish(obs)
		}
	}
}

// RunEnabledListener applies EnabledFlag changes published on
// SystemEnabled to shared state (last-writer-wins per spec.md §5).
func (f *Fabric) RunEnabledListener(ctx context.Context) {
	ch, cancel := f.SystemEnabled.Subscribe(ChannelCapacity)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-ch:
			f.State.SetEnabled(change.Enabled)
		}
	}
}
