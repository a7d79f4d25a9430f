// ABOUTME: PCM slot decoder
// ABOUTME: Unpacks a channel-major wire Slot into planar float32 channel buffers
package decode

import (
	"fmt"

	"github.com/soundwire/netjam/pkg/audio"
)

// PCMDecoder decodes one block at a fixed Format
type PCMDecoder struct {
	format   audio.Format
	bps      int
	slotSize int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format for PCM decoder: %w", err)
	}

	return &PCMDecoder{
		format:   format,
		bps:      format.BitResolution.BytesPerSample(),
		slotSize: format.SlotSize(),
	}, nil
}

// Decode unpacks src into channels. Channels beyond the format's channel
// count are zeroed; extra slot channels with no destination are skipped.
// It does not allocate.
func (d *PCMDecoder) Decode(src []byte, channels [][]float32) error {
	if len(src) != d.slotSize {
		return fmt.Errorf("slot is %d bytes, expected %d", len(src), d.slotSize)
	}

	frames := d.format.FramesPerBlock
	res := d.format.BitResolution
	for ch, out := range channels {
		if ch >= d.format.Channels {
			clear(out)
			continue
		}
		base := ch * frames * d.bps
		n := min(len(out), frames)
		for frame := 0; frame < n; frame++ {
			off := base + frame*d.bps
			out[frame] = audio.DecodeSample(src[off:off+d.bps], res)
		}
		clear(out[n:])
	}
	return nil
}

// Format returns the decoder's format
func (d *PCMDecoder) Format() audio.Format {
	return d.format
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
