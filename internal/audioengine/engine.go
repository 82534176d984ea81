// ABOUTME: Drives pipelines toward whatever the selector resolves
// ABOUTME: Master-clock drift correction, gapless switching, SE playback
package audioengine

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/Izu-lab/tsukimi-node/internal/masterclock"
	"github.com/Izu-lab/tsukimi-node/internal/selector"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/output"
)

// EngineState is the top-level state the engine cycles through,
// distinct from an individual Pipeline's own state.
type EngineState int

const (
	WaitingForFirstSync EngineState = iota
	Playing
	Disabled
)

const (
	// DurationQueryInterval bounds how often the virtual position is
	// recomputed from wall-clock elapsed time.
	DurationQueryInterval = time.Second

	// DriftSeekThreshold is how far the server and client elapsed-time
	// anchors may diverge before a hard seek replaces rate nudging.
	DriftSeekThreshold = 3 * time.Second

	// RateClampMin/RateClampMax bound the gentle rate correction used
	// for drift under DriftSeekThreshold.
	RateClampMin = 0.9
	RateClampMax = 1.1

	// SwitchGuardWindow is the minimum time between track switches, and
	// also how long drift correction is suppressed after a switch
	// completes, to avoid fighting the new pipeline's settling.
	SwitchGuardWindow = 400 * time.Millisecond

	// SyncTimeout bounds how long WaitingForFirstSync waits for a real
	// time_sync sample before falling back to server_time=0.
	SyncTimeout = 5 * time.Second

	// standbyPausedTimeout bounds how long a standby build waits for
	// the pipeline to reach Paused before seeking it anyway.
	standbyPausedTimeout = 3 * time.Second

	// seekCompleteWait bounds how long a standby build waits for the
	// seek-complete (AsyncDone) bus event before handing the pipeline
	// back regardless.
	seekCompleteWait = 500 * time.Millisecond

	seVolumeBoost = 3.0

	tickInterval  = 50 * time.Millisecond
	busPollActive = 10 * time.Millisecond
)

// switchOutcome is what a standby build delivers back to the main
// loop through Engine.switchResult: either a primed, paused pipeline
// ready to be promoted, or the error that kept it from being built.
type switchOutcome struct {
	name     string
	pipeline *Pipeline
	err      error
}

// Engine owns the active/standby music pipelines and a short-lived
// sound-effect pipeline, and is the only goroutine allowed to touch
// any of them once Run starts, with two exceptions: the standby build
// goroutine spawned by beginSwitch, which only ever touches the
// *Pipeline it built locally, and the watchSE goroutine spawned by
// handleSEPlay, which polls and destroys the effect pipeline it watches.
type Engine struct {
	fab      *fabric.Fabric
	sel      *selector.Selector
	clock    *masterclock.Clock
	shared   *output.SharedContext
	assetDir string
	outRate  int
	log      *log.Logger

	state        EngineState
	waitingSince time.Time

	active  *Pipeline
	current string

	switchPending    string
	switchResult     chan switchOutcome
	lastSwitch       time.Time
	switchGuardUntil time.Time

	se *Pipeline

	virtualPositionNS int64
	lastPositionAt    time.Time

	// playbackStartLocal/playbackStartServerNS anchor the drift
	// calculation: server_elapsed = sample - playbackStartServerNS,
	// client_elapsed = now - playbackStartLocal (spec.md §4.5).
	playbackStartLocal    time.Time
	playbackStartServerNS int64

	soundSetting    fabric.SoundSetting
	hasSoundSetting bool
}

// New builds an Engine. outputSampleRate is the sample rate every
// pipeline resamples to, matching the shared oto context.
func New(fab *fabric.Fabric, sel *selector.Selector, clock *masterclock.Clock, shared *output.SharedContext, assetDir string, outputSampleRate int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		fab:          fab,
		sel:          sel,
		clock:        clock,
		shared:       shared,
		assetDir:     assetDir,
		outRate:      outputSampleRate,
		log:          logger,
		state:        WaitingForFirstSync,
		switchResult: make(chan switchOutcome, 1),
	}
}

// Run drives the engine until ctx is cancelled. It locks its goroutine
// to one OS thread, matching how a real media pipeline's synchronous
// state-change calls expect to run off the Go scheduler's cooperative
// rotation.
func (e *Engine) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return nil
		case ts := <-e.fab.TimeSync:
			e.clock.Observe(int64(ts.ServerElapsedNanos), ts.ReceivedAt.UnixNano())
			e.correctDrift(ts)
		case setting := <-e.fab.SoundSetting:
			e.soundSetting = setting
			e.hasSoundSetting = true
		case req := <-e.fab.SEPlay:
			e.handleSEPlay(req)
		case outcome := <-e.switchResult:
			e.completeSwitch(outcome)
		case <-ticker.C:
			if err := e.tick(); err != nil {
				e.log.Printf("audioengine: tick error: %v", err)
			}
		}
	}
}

func (e *Engine) tick() error {
	if !e.fab.State.Enabled() {
		e.state = Disabled
		e.pauseActive()
		return nil
	}
	if e.state == Disabled {
		e.state = WaitingForFirstSync
		e.waitingSince = time.Time{}
	}

	if e.state == WaitingForFirstSync {
		if e.waitingSince.IsZero() {
			e.waitingSince = time.Now()
		}
		switch {
		case e.active != nil:
			// Resuming from Disabled: the pipeline already exists and
			// is merely paused, so just resume it and re-anchor.
			e.resumeActive()
		case e.clock.Synced() || time.Since(e.waitingSince) >= SyncTimeout:
			if err := e.enterPlaying(); err != nil {
				return err
			}
		default:
			return nil
		}
		e.state = Playing
	}

	desired := e.sel.Resolve()
	if e.switchPending == "" && desired != e.current && time.Since(e.lastSwitch) >= SwitchGuardWindow {
		e.beginSwitch(desired)
	}

	e.drainActiveBus()
	e.updateVirtualPosition()
	e.applyVolume()

	return nil
}

// enterPlaying builds the first active pipeline on entry to Playing,
// seeking it to the current best estimate of server time (or to 0 if
// SyncTimeout elapsed without ever syncing), per spec.md §4.5's
// WaitingForFirstSync transition.
func (e *Engine) enterPlaying() error {
	name := assets.DefaultTrackName(e.fab.State.Points())
	p, err := newPipeline(e.assetDir, name, e.shared, e.outRate)
	if err != nil {
		return fmt.Errorf("audioengine: load %s: %w", name, err)
	}

	now := time.Now()
	var serverNS int64
	if e.clock.Synced() {
		serverNS = e.clock.LocalToServerNS(now)
	}
	target := wrapTargetNS(serverNS, p.DurationNS())

	p.SetState(StatePaused)
	p.WaitForState(StatePaused, standbyPausedTimeout)
	p.SeekFlushAccurate(target)
	p.SetRate(1.0)
	p.SetVolume(1.0)
	p.SetState(StatePlaying)

	e.active = p
	e.current = name
	e.lastSwitch = now
	e.lastPositionAt = now
	e.virtualPositionNS = target
	e.playbackStartLocal = now
	e.playbackStartServerNS = serverNS

	return nil
}

// resumeActive re-anchors an existing (merely paused) active pipeline
// after a Disabled interval, without rebuilding or re-seeking it.
func (e *Engine) resumeActive() {
	now := time.Now()
	var serverNS int64
	if e.clock.Synced() {
		serverNS = e.clock.LocalToServerNS(now)
	}
	e.active.SetState(StatePlaying)
	e.lastPositionAt = now
	e.playbackStartLocal = now
	e.playbackStartServerNS = serverNS
}

func (e *Engine) pauseActive() {
	if e.active != nil && e.active.State() == StatePlaying {
		e.active.SetState(StatePaused)
	}
}

// beginSwitch starts building the standby pipeline for a newly desired
// track on its own goroutine (spec.md §4.5 step 2's worker thread):
// decode, prime to Paused, seek to the current virtual position, and
// wait for the seek to complete, all off the engine's single loop
// goroutine. The result is handed back through the single-slot
// switchResult channel rather than touched directly.
func (e *Engine) beginSwitch(name string) {
	if e.switchPending != "" {
		return
	}
	e.switchPending = name
	targetNS := e.virtualPositionNS

	go e.buildStandby(name, targetNS)
}

func (e *Engine) buildStandby(name string, targetNS int64) {
	p, err := newPipeline(e.assetDir, name, e.shared, e.outRate)
	if err != nil {
		e.switchResult <- switchOutcome{name: name, err: fmt.Errorf("audioengine: load standby %s: %w", name, err)}
		return
	}

	p.SetVolume(1.0)
	p.SetRate(1.0)
	p.SetState(StatePaused)
	p.WaitForState(StatePaused, standbyPausedTimeout)

	p.SeekFlushAccurate(wrapTargetNS(targetNS, p.DurationNS()))
	deadline := time.Now().Add(seekCompleteWait)
	for {
		ev, ok := p.PollBus(time.Until(deadline))
		if !ok || ev.Kind == AsyncDone {
			break
		}
	}

	e.switchResult <- switchOutcome{name: name, pipeline: p}
}

// completeSwitch runs on the main loop goroutine: it destroys the old
// active pipeline, promotes the primed standby to Playing, and resets
// the drift-correction anchor and switch guard (spec.md §4.5 step 3).
func (e *Engine) completeSwitch(outcome switchOutcome) {
	e.switchPending = ""

	if outcome.err != nil {
		e.log.Printf("audioengine: switch to %s failed: %v", outcome.name, outcome.err)
		return
	}

	if e.active != nil {
		e.active.SetState(StateNull)
		e.active.Destroy()
	}

	outcome.pipeline.SetState(StatePlaying)
	e.active = outcome.pipeline
	e.current = outcome.name

	now := time.Now()
	e.lastSwitch = now
	e.lastPositionAt = now
	e.virtualPositionNS = outcome.pipeline.PositionNS()
	e.switchGuardUntil = now.Add(SwitchGuardWindow)

	e.playbackStartLocal = now
	if e.clock.Synced() {
		e.playbackStartServerNS = e.clock.LocalToServerNS(now)
	} else {
		e.playbackStartServerNS = 0
	}
}

// wrapTargetNS wraps a virtual position into [0, durationNS) so a
// switch or loop-restart target stays within the asset's own length.
func wrapTargetNS(targetNS, durationNS int64) int64 {
	if durationNS <= 0 {
		return 0
	}
	targetNS %= durationNS
	if targetNS < 0 {
		targetNS += durationNS
	}
	return targetNS
}

func (e *Engine) drainActiveBus() {
	if e.active == nil {
		return
	}
	for {
		ev, ok := e.active.PollBus(busPollActive)
		if !ok {
			return
		}
		e.handleActiveBusEvent(ev)
	}
}

func (e *Engine) handleActiveBusEvent(ev BusEvent) {
	switch ev.Kind {
	case Eos:
		now := time.Now()
		e.active.SeekFlushAccurate(0)
		e.active.SetState(StatePlaying)
		e.virtualPositionNS = 0
		e.lastPositionAt = now
		e.playbackStartLocal = now
		if e.clock.Synced() {
			e.playbackStartServerNS = e.clock.LocalToServerNS(now)
		} else {
			e.playbackStartServerNS = 0
		}
	case ErrorEvent:
		e.log.Printf("audioengine: active pipeline error: %s", ev.Detail)
	default:
	}
}

// updateVirtualPosition advances the position integrator from
// wall-clock elapsed time, refreshed at most once per
// DurationQueryInterval, matching spec.md §4.5's virtual-position
// model rather than re-querying the pipeline's own position every
// tick.
func (e *Engine) updateVirtualPosition() {
	if e.active == nil || e.active.State() != StatePlaying {
		return
	}
	now := time.Now()
	if now.Sub(e.lastPositionAt) < DurationQueryInterval {
		return
	}
	elapsed := now.Sub(e.lastPositionAt)
	e.lastPositionAt = now
	duration := e.active.DurationNS()
	if duration <= 0 {
		return
	}
	e.virtualPositionNS = (e.virtualPositionNS + elapsed.Nanoseconds()) % duration
}

// correctDrift implements spec.md §4.5's event-driven master-clock
// drift correction: on every new time_sync sample, compare how much
// server time has elapsed since the playback anchor to how much local
// time has elapsed, and either nudge the rate or issue a hard seek.
// Suppressed while a switch is in progress or within SwitchGuardWindow
// of one completing, so it never fights a pipeline that's still
// settling.
func (e *Engine) correctDrift(ts fabric.TimeSync) {
	if e.active == nil || e.state != Playing || e.active.State() != StatePlaying {
		return
	}
	if e.switchPending != "" || time.Now().Before(e.switchGuardUntil) {
		return
	}

	serverElapsed := int64(ts.ServerElapsedNanos) - e.playbackStartServerNS
	clientElapsed := ts.ReceivedAt.Sub(e.playbackStartLocal).Nanoseconds()
	drift := serverElapsed - clientElapsed

	if absNS(drift) > int64(DriftSeekThreshold) {
		target := wrapTargetNS(int64(ts.ServerElapsedNanos), e.active.DurationNS())
		e.active.SeekFlushAccurate(target)
		e.active.SetRate(1.0)
		e.virtualPositionNS = target
	} else {
		correction := 1.0 + float64(drift)/float64(2*time.Second)
		if correction > RateClampMax {
			correction = RateClampMax
		}
		if correction < RateClampMin {
			correction = RateClampMin
		}
		e.active.SetRate(correction)
	}

	e.playbackStartLocal = ts.ReceivedAt
	e.playbackStartServerNS = int64(ts.ServerElapsedNanos)
}

func absNS(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// applyVolume linearly interpolates between the configured min/max
// volume bounds using the selected device's live RSSI, honoring a mute
// override (spec.md §4.5 optional refinement).
func (e *Engine) applyVolume() {
	if e.active == nil {
		return
	}
	if !e.hasSoundSetting {
		e.active.SetVolume(1.0)
		return
	}
	if e.soundSetting.IsMuted {
		e.active.SetVolume(0)
		return
	}

	rssi, ok := e.sel.CurrentRSSI()
	if !ok {
		e.active.SetVolume(e.soundSetting.MinVolume)
		return
	}

	e.active.SetVolume(volumeForRSSI(e.soundSetting, rssi))
}

// volumeForRSSI linearly interpolates between MinVolume and MaxVolume
// over the [MinVolumeRSSI, MaxVolumeRSSI] range, clamped at both ends.
func volumeForRSSI(s fabric.SoundSetting, rssi int16) float64 {
	if s.MaxVolumeRSSI == s.MinVolumeRSSI {
		return s.MaxVolume
	}

	t := float64(int32(rssi)-int32(s.MinVolumeRSSI)) / float64(int32(s.MaxVolumeRSSI)-int32(s.MinVolumeRSSI))
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return s.MinVolume + t*(s.MaxVolume-s.MinVolume)
}

// handleSEPlay tears down any in-flight effect and starts the
// requested one; only one plays at a time.
func (e *Engine) handleSEPlay(req fabric.SEPlayRequest) {
	if e.se != nil {
		e.se.Destroy()
		e.se = nil
	}

	p, err := newPipeline(e.assetDir, req.AssetName, e.shared, e.outRate)
	if err != nil {
		e.log.Printf("audioengine: se load %s: %v", req.AssetName, err)
		return
	}
	p.SetVolume(seVolumeBoost)
	p.SetState(StatePlaying)
	e.se = p

	go e.watchSE(p)
}

// watchSE tears the effect pipeline down on EOS or error; it runs on
// its own goroutine since the engine's main loop must keep ticking
// while an effect plays out.
func (e *Engine) watchSE(p *Pipeline) {
	for {
		ev, ok := p.PollBus(100 * time.Millisecond)
		if !ok {
			if p.State() == StateNull {
				return
			}
			continue
		}
		switch ev.Kind {
		case Eos, ErrorEvent:
			p.Destroy()
			return
		default:
		}
	}
}

func (e *Engine) teardown() {
	select {
	case outcome := <-e.switchResult:
		if outcome.pipeline != nil {
			outcome.pipeline.Destroy()
		}
	default:
	}
	if e.active != nil {
		e.active.Destroy()
		e.active = nil
	}
	if e.se != nil {
		e.se.Destroy()
		e.se = nil
	}
}
