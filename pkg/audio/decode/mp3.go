// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes a whole mp3 asset to int32 samples for looped playback
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Izu-lab/tsukimi-node/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes an entire mp3 file into memory. Every Tsukimi
// asset is looped and seeked within repeatedly, so frame-at-a-time
// streaming decode (as used for live network audio) isn't a fit here:
// the whole asset is decoded once at load time instead.
type MP3Decoder struct{}

// NewMP3 creates a new MP3 decoder.
func NewMP3() Decoder {
	return MP3Decoder{}
}

// DecodeFile decodes the complete mp3 byte stream in data.
func (MP3Decoder) DecodeFile(data []byte) (audio.Format, []int32, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Format{}, nil, fmt.Errorf("decode: mp3 decoder: %w", err)
	}

	const channels = 2
	format := audio.Format{Codec: "mp3", SampleRate: dec.SampleRate(), Channels: channels}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return audio.Format{}, nil, fmt.Errorf("decode: mp3 read: %w", err)
	}

	numSamples := len(pcm) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}

	return format, samples, nil
}
