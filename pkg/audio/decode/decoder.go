// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for full-file audio decoders
package decode

import "github.com/Izu-lab/tsukimi-node/pkg/audio"

// Decoder fully decodes one encoded asset into interleaved int32 PCM
// samples, up front, so the audio engine can loop and seek within it
// without re-touching the codec.
type Decoder interface {
	// DecodeFile reads data as one complete audio asset and returns its
	// format and every interleaved PCM sample it contains.
	DecodeFile(data []byte) (audio.Format, []int32, error)
}
