// ABOUTME: Tests for volume shaping and drift correction math
// ABOUTME: Exercises Engine helper methods directly against fake pipelines
package audioengine

import (
	"testing"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/Izu-lab/tsukimi-node/pkg/audio"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/resample"
)

func TestVolumeForRSSIInterpolatesLinearly(t *testing.T) {
	s := fabric.SoundSetting{MinVolumeRSSI: -90, MaxVolumeRSSI: -40, MinVolume: 0.1, MaxVolume: 1.0}

	if got := volumeForRSSI(s, -90); got != 0.1 {
		t.Errorf("at min rssi, volume = %v, want 0.1", got)
	}
	if got := volumeForRSSI(s, -40); got != 1.0 {
		t.Errorf("at max rssi, volume = %v, want 1.0", got)
	}
	mid := volumeForRSSI(s, -65)
	if mid < 0.5 || mid > 0.6 {
		t.Errorf("at midpoint rssi, volume = %v, want ~0.55", mid)
	}
}

func TestVolumeForRSSIClampsOutsideRange(t *testing.T) {
	s := fabric.SoundSetting{MinVolumeRSSI: -90, MaxVolumeRSSI: -40, MinVolume: 0.1, MaxVolume: 1.0}

	if got := volumeForRSSI(s, -10); got != 1.0 {
		t.Errorf("above max rssi, volume = %v, want clamped to 1.0", got)
	}
	if got := volumeForRSSI(s, -120); got != 0.1 {
		t.Errorf("below min rssi, volume = %v, want clamped to 0.1", got)
	}
}

func TestVolumeForRSSIFlatRangeReturnsMax(t *testing.T) {
	s := fabric.SoundSetting{MinVolumeRSSI: -60, MaxVolumeRSSI: -60, MinVolume: 0.2, MaxVolume: 0.8}
	if got := volumeForRSSI(s, -60); got != 0.8 {
		t.Errorf("flat range volume = %v, want max volume 0.8", got)
	}
}

func TestApplyVolumeHonorsMute(t *testing.T) {
	p, out := newTestPipeline(1000, 44100, 2)
	defer p.Destroy()

	e := &Engine{
		active:          p,
		soundSetting:    fabric.SoundSetting{IsMuted: true, MaxVolume: 1.0},
		hasSoundSetting: true,
	}
	e.applyVolume()

	out.mu.Lock()
	defer out.mu.Unlock()
	if out.volume != 0 {
		t.Errorf("volume = %v, want 0 when muted", out.volume)
	}
}

func TestApplyVolumeDefaultsToFullWithoutSetting(t *testing.T) {
	p, out := newTestPipeline(1000, 44100, 2)
	defer p.Destroy()

	e := &Engine{active: p}
	e.applyVolume()

	out.mu.Lock()
	defer out.mu.Unlock()
	if out.volume != 1.0 {
		t.Errorf("volume = %v, want 1.0 with no SoundSetting applied yet", out.volume)
	}
}

// frozenPipeline builds a pipeline whose feed loop never runs, so its
// posFrames can be set deterministically for drift math assertions.
func frozenPipeline(totalFrames, sampleRate, channels int) *Pipeline {
	return &Pipeline{
		format:     audio.Format{Codec: "mp3", SampleRate: sampleRate, Channels: channels},
		totalFrame: int64(totalFrames),
		resampler:  resample.New(sampleRate, sampleRate, channels),
		out:        &fakeOutput{},
		bus:        make(chan BusEvent, 8),
		state:      StatePlaying,
	}
}

// newFrozenAnchor builds an Engine wired to a frozen (non-feeding)
// pipeline with a drift anchor set so serverElapsed-clientElapsed
// comes out to exactly wantDrift when ts fires at "now".
func newFrozenAnchor(p *Pipeline, now time.Time, wantDrift time.Duration) (*Engine, fabric.TimeSync) {
	e := &Engine{
		active:             p,
		state:              Playing,
		playbackStartLocal: now,
	}
	ts := fabric.TimeSync{ServerElapsedNanos: uint64(wantDrift), ReceivedAt: now}
	return e, ts
}

func TestCorrectDriftClampsRateWithinBounds(t *testing.T) {
	p := frozenPipeline(441000, 44100, 2) // 10s asset, no feed loop running
	e, ts := newFrozenAnchor(p, time.Now(), 2800*time.Millisecond)

	e.correctDrift(ts)

	rate := p.resampler.Rate()
	if rate < RateClampMin || rate > RateClampMax {
		t.Errorf("rate = %v, want within [%v,%v]", rate, RateClampMin, RateClampMax)
	}
	if rate != RateClampMax {
		t.Errorf("rate = %v, want clamped to max %v for a 2.8s lead", rate, RateClampMax)
	}
}

func TestCorrectDriftSeeksOnLargeDivergence(t *testing.T) {
	p := frozenPipeline(441000, 44100, 2) // 10s asset
	now := time.Now()
	e, ts := newFrozenAnchor(p, now, 5*time.Second)

	e.correctDrift(ts)

	if rate := p.resampler.Rate(); rate != 1.0 {
		t.Errorf("rate after hard seek = %v, want reset to 1.0", rate)
	}
	if pos := p.PositionNS(); pos != int64(5*time.Second) {
		t.Errorf("position after hard seek = %v, want %v", pos, int64(5*time.Second))
	}
}

func TestCorrectDriftSuppressedDuringSwitchGuard(t *testing.T) {
	p := frozenPipeline(441000, 44100, 2)
	now := time.Now()
	e, ts := newFrozenAnchor(p, now, 5*time.Second)
	e.switchGuardUntil = now.Add(time.Second)

	e.correctDrift(ts)

	if pos := p.PositionNS(); pos != 0 {
		t.Errorf("position = %v, want untouched while the switch guard suppresses drift correction", pos)
	}
}

func TestCorrectDriftSuppressedWhileSwitchPending(t *testing.T) {
	p := frozenPipeline(441000, 44100, 2)
	now := time.Now()
	e, ts := newFrozenAnchor(p, now, 5*time.Second)
	e.switchPending = "tsukimi-main_1.mp3"

	e.correctDrift(ts)

	if pos := p.PositionNS(); pos != 0 {
		t.Errorf("position = %v, want untouched while a switch is pending", pos)
	}
}

func TestWrapTargetNSWrapsOverflowAndNegative(t *testing.T) {
	if got := wrapTargetNS(int64(2500*time.Millisecond), int64(time.Second)); got < 0 || got >= int64(time.Second) {
		t.Errorf("overflow wrap = %v, want within [0,1s)", got)
	}
	if got := wrapTargetNS(int64(-500*time.Millisecond), int64(time.Second)); got < 0 || got >= int64(time.Second) {
		t.Errorf("negative wrap = %v, want within [0,1s)", got)
	}
	if got := wrapTargetNS(100, 0); got != 0 {
		t.Errorf("wrap with zero duration = %v, want 0", got)
	}
}
