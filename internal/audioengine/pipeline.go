// ABOUTME: One decode-resample-output chain for a single looped asset
// ABOUTME: Runs its own feed loop; driven through Null/Ready/Paused/Playing
package audioengine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Izu-lab/tsukimi-node/pkg/audio"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/decode"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/output"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/resample"
)

// PipelineState is the playback state of one pipeline, modeled after a
// conventional media pipeline's Null/Ready/Paused/Playing states.
type PipelineState int

const (
	StateNull PipelineState = iota
	StateReady
	StatePaused
	StatePlaying
)

// outputChunkFrames is how many output frames the feed loop asks the
// resampler to produce per iteration.
const outputChunkFrames = 1024

const feedIdleInterval = 5 * time.Millisecond

// Pipeline decodes one asset fully into memory, then feeds it through
// a resampler into an output sink in a loop, bounded only by the state
// it's put in. Every method is safe to call from any goroutine; the
// feed loop itself owns no exported state directly.
type Pipeline struct {
	assetName string

	format     audio.Format
	samples    []int32
	totalFrame int64

	resampler *resample.Resampler
	out       output.Output

	bus  chan BusEvent
	stop chan struct{}
	done chan struct{}

	mu        sync.Mutex
	state     PipelineState
	posFrames int64

	destroyOnce sync.Once
}

// newPipeline decodes assetName from assetDir and wires it to a fresh output player
// against shared, ready to be driven into StatePlaying.
func newPipeline(assetDir, assetName string, shared *output.SharedContext, outputSampleRate int) (*Pipeline, error) {
	data, err := os.ReadFile(filepath.Join(assetDir, assetName))
	if err != nil {
		return nil, err
	}

	dec := decode.NewMP3()
	format, samples, err := dec.DecodeFile(data)
	if err != nil {
		return nil, err
	}

	frames := int64(len(samples) / format.Channels)

	p := &Pipeline{
		assetName:  assetName,
		format:     format,
		samples:    samples,
		totalFrame: frames,
		resampler:  resample.New(format.SampleRate, outputSampleRate, format.Channels),
		out:        output.NewOto(shared),
		bus:        make(chan BusEvent, 32),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateReady,
	}

	go p.feedLoop()
	return p, nil
}

// DurationNS is the total length of the decoded asset.
func (p *Pipeline) DurationNS() int64 {
	return framesToNS(p.totalFrame, p.format.SampleRate)
}

// PositionNS is the current playback position within the asset.
func (p *Pipeline) PositionNS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return framesToNS(p.posFrames, p.format.SampleRate)
}

func framesToNS(frames int64, sampleRate int) int64 {
	if sampleRate == 0 {
		return 0
	}
	return frames * int64(time.Second) / int64(sampleRate)
}

func nsToFrames(ns int64, sampleRate int) int64 {
	return ns * int64(sampleRate) / int64(time.Second)
}

// SetState requests a new pipeline state. Null is terminal; use
// Destroy to reach it.
func (p *Pipeline) SetState(target PipelineState) {
	p.mu.Lock()
	p.state = target
	p.mu.Unlock()
	p.emit(StateChanged, target.String())
}

func (s PipelineState) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

func (p *Pipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WaitForState polls until the pipeline reaches target or timeout
// elapses, returning whether it reached it.
func (p *Pipeline) WaitForState(target PipelineState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if p.State() == target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(feedIdleInterval)
	}
}

// SeekFlushAccurate flushes the resampler and jumps to targetNS,
// wrapping within the asset's duration. It posts AsyncDone once the
// seek has taken effect, mirroring a flushing seek's completion
// notification.
func (p *Pipeline) SeekFlushAccurate(targetNS int64) {
	frames := nsToFrames(targetNS, p.format.SampleRate)
	if p.totalFrame > 0 {
		frames %= p.totalFrame
		if frames < 0 {
			frames += p.totalFrame
		}
	} else {
		frames = 0
	}

	p.mu.Lock()
	p.posFrames = frames
	p.resampler.Reset()
	p.mu.Unlock()

	p.emit(AsyncDone, "seek")
}

// SetRate adjusts playback speed via the resampler's rate control.
func (p *Pipeline) SetRate(rate float64) {
	p.mu.Lock()
	p.resampler.SetRate(rate)
	p.mu.Unlock()
}

// SetVolume sets the linear output volume.
func (p *Pipeline) SetVolume(volume float64) {
	p.out.SetVolume(volume)
}

// PollBus waits up to timeout for the next bus event.
func (p *Pipeline) PollBus(timeout time.Duration) (BusEvent, bool) {
	select {
	case ev := <-p.bus:
		return ev, true
	case <-time.After(timeout):
		return BusEvent{}, false
	}
}

func (p *Pipeline) emit(kind BusEventKind, detail string) {
	select {
	case p.bus <- BusEvent{Kind: kind, Detail: detail}:
	default:
	}
}

// Destroy stops the feed loop and releases the output player. The
// pipeline must not be used afterward. Safe to call more than once:
// an effect pipeline can be torn down by watchSE on EOS and then
// preempted by a fresh SE request before the engine learns of that.
func (p *Pipeline) Destroy() {
	p.destroyOnce.Do(func() {
		p.mu.Lock()
		p.state = StateNull
		p.mu.Unlock()
		close(p.stop)
		<-p.done
		p.out.Close()
	})
}

func (p *Pipeline) feedLoop() {
	defer close(p.done)

	outBuf := make([]int32, outputChunkFrames*p.format.Channels)
	startedStream := false

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		if p.State() != StatePlaying {
			time.Sleep(feedIdleInterval)
			continue
		}

		if !startedStream {
			p.emit(StreamStart, p.assetName)
			startedStream = true
		}

		p.mu.Lock()
		remaining := p.totalFrame - p.posFrames
		if remaining <= 0 {
			p.mu.Unlock()
			p.SetState(StatePaused)
			p.emit(Eos, p.assetName)
			continue
		}

		needed := p.resampler.InputSamplesNeeded(len(outBuf))
		neededFrames := int64(needed / p.format.Channels)
		if neededFrames > remaining {
			neededFrames = remaining
		}
		if neededFrames < 1 {
			neededFrames = 1
		}

		start := p.posFrames * int64(p.format.Channels)
		end := start + neededFrames*int64(p.format.Channels)
		if end > int64(len(p.samples)) {
			end = int64(len(p.samples))
		}
		input := p.samples[start:end]
		produced := p.resampler.Resample(input, outBuf)
		consumedFrames := int64(p.resampler.InputSamplesNeeded(produced) / p.format.Channels)
		p.mu.Unlock()

		if produced == 0 {
			p.mu.Lock()
			p.posFrames = p.totalFrame
			p.mu.Unlock()
			continue
		}

		if err := p.out.Write(outBuf[:produced]); err != nil {
			p.emit(ErrorEvent, err.Error())
			continue
		}

		if consumedFrames < 1 {
			consumedFrames = 1
		}

		p.mu.Lock()
		p.posFrames += consumedFrames
		if p.posFrames > p.totalFrame {
			p.posFrames = p.totalFrame
		}
		p.mu.Unlock()
	}
}
