// ABOUTME: Oto-based audio output implementation
// ABOUTME: Feeds a persistent oto.Player through a continuous io.Pipe
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/Izu-lab/tsukimi-node/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// SharedContext is the single process-wide oto audio context. oto
// allows only one context per process, but many independent players
// can be created against it and mixed together, which is exactly what
// lets the music pipeline and a sound-effect pipeline play
// concurrently (spec.md §4.5).
type SharedContext struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// NewSharedContext creates the process-wide oto context.
func NewSharedContext(sampleRate, channels int) (*SharedContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("output: oto context: %w", err)
	}
	<-readyChan

	return &SharedContext{ctx: ctx, sampleRate: sampleRate, channels: channels}, nil
}

// Oto is one independent playback stream against the shared context.
type Oto struct {
	shared *SharedContext
	player *oto.Player

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	mu      sync.Mutex
	volume  float64
	playing bool
}

// NewOto opens a new player against shared and starts it immediately;
// silence is written until the caller starts feeding real samples.
func NewOto(shared *SharedContext) *Oto {
	pr, pw := io.Pipe()
	o := &Oto{
		shared:     shared,
		pipeReader: pr,
		pipeWriter: pw,
		volume:     1.0,
	}
	o.player = shared.ctx.NewPlayer(pr)
	o.player.Play()
	o.playing = true
	return o
}

// Write applies the current volume and pushes samples into the
// player's feed pipe. It blocks until oto has consumed the write.
func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	volume := o.volume
	o.mu.Unlock()

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		scaled := float64(s) * volume
		sample16 := audio.SampleToInt16(int32(scaled))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample16))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("output: pipe write: %w", err)
	}
	return nil
}

// SetVolume sets the linear volume multiplier applied to every sample
// written from this point on.
func (o *Oto) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
}

// Close tears down this player's pipe and player, leaving the shared
// context (and any other players against it) untouched.
func (o *Oto) Close() error {
	o.pipeWriter.Close()
	o.player.Close()
	o.pipeReader.Close()
	return nil
}
