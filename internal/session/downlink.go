// ABOUTME: Demuxes StreamDeviceInfoResponse events into fabric state
// ABOUTME: Handles location rewrite, point rebuild, sound settings, enable flips
package session

import (
	"context"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"google.golang.org/grpc"
)

// runDownlink receives StreamDeviceInfoResponse events and applies
// each one's oneof branch (spec.md §4.3).
func (c *Client) runDownlink(ctx context.Context, stream grpc.ClientStream) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var resp StreamDeviceInfoResponse
		if err := stream.RecvMsg(&resp); err != nil {
			return err
		}

		switch {
		case resp.TimeUpdate != nil:
			c.applyTimeUpdate(resp.TimeUpdate)
		case resp.LocationUpdate != nil:
			c.applyLocationUpdate(resp.LocationUpdate)
		case resp.PointUpdate != nil:
			c.applyPointUpdate(resp.PointUpdate)
		case resp.SoundSettingUpdate != nil:
			c.applySoundSettingUpdate(resp.SoundSettingUpdate)
		case resp.MoonlightUpdate != nil:
			c.applyMoonlightUpdate(resp.MoonlightUpdate)
		}
	}
}

// applyTimeUpdate forwards the raw sample onto Fab.TimeSync without
// folding it into a clock itself; the audio engine is the sole
// consumer that observes time_sync samples (spec.md §4.2).
func (c *Client) applyTimeUpdate(ev *TimeUpdateEvent) {
	now := time.Now()

	select {
	case c.Fab.TimeSync <- fabric.TimeSync{ServerElapsedNanos: ev.ElapsedNanoseconds, ReceivedAt: now}:
	default:
		c.Log.Warn("session: time_sync channel full, dropping sample")
	}
}

func (c *Client) applyLocationUpdate(ev *LocationUpdateEvent) {
	locations := make(map[string]string, len(ev.Locations))
	for _, entry := range ev.Locations {
		locations[entry.Address] = entry.PlaceType
	}
	c.Fab.State.ApplyLocationUpdate(locations)
}

// applyPointUpdate implements spec.md §4.3's PointUpdate handling: only
// acts when user_id matches SelfIdentity, rebuilds the sound map on any
// change, and emits the point-gain SE only from the second change
// onward (the very first update is treated as initialization).
func (c *Client) applyPointUpdate(ev *PointUpdateEvent) {
	old, changed := c.Fab.State.SetPoints(ev.UserID, ev.Points)
	if !changed {
		return
	}

	c.Fab.State.RebuildSoundMap()

	if !c.pointUpdateSeen {
		c.pointUpdateSeen = true
		return
	}

	if ev.Points > old {
		c.enqueueSE(assets.SEPoint)
	}
}

func (c *Client) applySoundSettingUpdate(ev *SoundSettingUpdateEvent) {
	setting := fabric.SoundSetting{
		MaxVolumeRSSI: ev.Settings.MaxVolumeRSSI,
		MinVolumeRSSI: ev.Settings.MinVolumeRSSI,
		MaxVolume:     ev.Settings.MaxVolume,
		MinVolume:     ev.Settings.MinVolume,
		IsMuted:       ev.Settings.IsMuted,
	}

	select {
	case c.Fab.SoundSetting <- setting:
	default:
		c.Log.Warn("session: sound_setting channel full, dropping update")
	}
}

// applyMoonlightUpdate finds the entry addressed to this node and
// publishes an EnabledChange (spec.md §4.3).
func (c *Client) applyMoonlightUpdate(ev *MoonlightUpdateEvent) {
	self, ok := c.Fab.State.SelfIdentity()
	if !ok {
		return
	}

	for _, entry := range ev.Moonlights {
		if entry.Device == self || entry.Address == self {
			c.Fab.SystemEnabled.Publish(fabric.EnabledChange{Address: self, Enabled: entry.Enabled})
			return
		}
	}
}

func (c *Client) enqueueSE(assetName string) {
	select {
	case c.Fab.SEPlay <- fabric.SEPlayRequest{AssetName: assetName}:
	default:
		c.Log.WithField("asset", assetName).Warn("session: se_play channel full, dropping request")
	}
}
