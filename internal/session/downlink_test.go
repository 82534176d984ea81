// ABOUTME: Tests for downlink event demux
// ABOUTME: Covers location rewrite, point-gain SE gating, and moonlight routing
package session

import (
	"context"
	"testing"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
)

func TestApplyLocationUpdateRewritesSoundMap(t *testing.T) {
	c, fab := newTestClient()
	c.applyLocationUpdate(&LocationUpdateEvent{
		Locations: []LocationUpdateEntry{{Address: "aa", PlaceType: "buddhas_bowl"}},
	})

	if _, ok := fab.State.SoundAsset("aa"); !ok {
		t.Fatal("expected aa to be present in the sound map")
	}
}

func TestApplyPointUpdateSuppressesSEOnFirstUpdate(t *testing.T) {
	c, fab := newTestClient()
	fab.State.SetSelfIdentity("me")

	c.applyPointUpdate(&PointUpdateEvent{UserID: "me", Points: 3})

	select {
	case <-fab.SEPlay:
		t.Fatal("the first-ever point update must not emit an SE")
	default:
	}
}

func TestApplyPointUpdateEmitsSEOnSubsequentIncrease(t *testing.T) {
	c, fab := newTestClient()
	fab.State.SetSelfIdentity("me")

	c.applyPointUpdate(&PointUpdateEvent{UserID: "me", Points: 3})
	c.applyPointUpdate(&PointUpdateEvent{UserID: "me", Points: 5})

	select {
	case req := <-fab.SEPlay:
		if req.AssetName != assets.SEPoint {
			t.Errorf("asset = %q, want %q", req.AssetName, assets.SEPoint)
		}
	default:
		t.Fatal("expected a point-gain SE after the second, increasing update")
	}
}

func TestApplyPointUpdateIgnoresOtherUsers(t *testing.T) {
	c, fab := newTestClient()
	fab.State.SetSelfIdentity("me")

	c.applyPointUpdate(&PointUpdateEvent{UserID: "someone-else", Points: 9})

	if fab.State.Points() != 0 {
		t.Errorf("points = %d, want 0 (update was for a different user)", fab.State.Points())
	}
}

func TestApplyMoonlightUpdateRoutesOnlyMatchingSelf(t *testing.T) {
	c, fab := newTestClient()
	fab.State.SetSelfIdentity("me")

	ch, cancel := fab.SystemEnabled.Subscribe(1)
	defer cancel()
	c.applyMoonlightUpdate(&MoonlightUpdateEvent{Moonlights: []MoonlightEntry{
		{Device: "someone-else", Enabled: true},
		{Address: "me", Enabled: false},
	}})

	select {
	case change := <-ch:
		if change.Address != "me" || change.Enabled != false {
			t.Errorf("unexpected change: %+v", change)
		}
	default:
		t.Fatal("expected an EnabledChange for the self address")
	}
}

func TestRunDownlinkDispatchesUntilStreamCloses(t *testing.T) {
	c, fab := newTestClient()
	fab.State.SetSelfIdentity("me")

	stream := &fakeClientStream{
		ctx: context.Background(),
		recvQueue: []StreamDeviceInfoResponse{
			{LocationUpdate: &LocationUpdateEvent{Locations: []LocationUpdateEntry{{Address: "aa", PlaceType: "buddhas_bowl"}}}},
			{PointUpdate: &PointUpdateEvent{UserID: "me", Points: 1}},
		},
	}

	err := c.runDownlink(stream.ctx, stream)
	if err != errFakeStreamClosed {
		t.Fatalf("runDownlink error = %v, want errFakeStreamClosed", err)
	}
	if _, ok := fab.State.SoundAsset("aa"); !ok {
		t.Error("expected the location update to have been applied before the stream closed")
	}
}
