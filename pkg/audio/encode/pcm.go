// ABOUTME: PCM slot encoder
// ABOUTME: Packs planar float32 channel buffers into a channel-major wire Slot
package encode

import (
	"fmt"

	"github.com/soundwire/netjam/pkg/audio"
)

// PCMEncoder encodes one block at a fixed Format
type PCMEncoder struct {
	format   audio.Format
	bps      int
	slotSize int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format for PCM encoder: %w", err)
	}

	return &PCMEncoder{
		format:   format,
		bps:      format.BitResolution.BytesPerSample(),
		slotSize: format.SlotSize(),
	}, nil
}

// Encode packs channels into dst. Sample (ch, frame) lands at
// ch*frames*bps + frame*bps. Missing channels are encoded as silence.
// It does not allocate.
func (e *PCMEncoder) Encode(dst []byte, channels [][]float32) error {
	if len(dst) != e.slotSize {
		return fmt.Errorf("slot is %d bytes, expected %d", len(dst), e.slotSize)
	}

	frames := e.format.FramesPerBlock
	res := e.format.BitResolution
	for ch := 0; ch < e.format.Channels; ch++ {
		base := ch * frames * e.bps
		if ch >= len(channels) {
			clear(dst[base : base+frames*e.bps])
			continue
		}
		in := channels[ch]
		for frame := 0; frame < frames; frame++ {
			var s float32
			if frame < len(in) {
				s = in[frame]
			}
			off := base + frame*e.bps
			audio.EncodeSample(dst[off:off+e.bps], s, res)
		}
	}
	return nil
}

// Format returns the encoder's format
func (e *PCMEncoder) Format() audio.Format {
	return e.format
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
