// ABOUTME: Re-blocks interleaved float32 device buffers into fixed planar blocks
// ABOUTME: Lets devices with arbitrary period sizes drive a fixed-size Callback
package backend

import (
	"encoding/binary"
	"math"

	"github.com/soundwire/netjam/pkg/audio"
)

const float32Bytes = 4

// blockAdapter runs cb every frames frames regardless of how the device
// slices its periods. Output lags input by exactly one block.
type blockAdapter struct {
	cb       Callback
	frames   int
	channels int
	capture  bool
	inputs   [][]float32
	outputs  [][]float32
	pos      int
}

func newBlockAdapter(cb Callback, frames, channels int, capture bool) *blockAdapter {
	return &blockAdapter{
		cb:       cb,
		frames:   frames,
		channels: channels,
		capture:  capture,
		inputs:   audio.NewChannelBuffers(channels, frames),
		outputs:  audio.NewChannelBuffers(channels, frames),
	}
}

// process consumes frameCount interleaved frames from input (may be nil)
// and writes the same number of interleaved frames to output (may be nil)
func (a *blockAdapter) process(output, input []byte, frameCount int) {
	stride := a.channels * float32Bytes
	for f := 0; f < frameCount; f++ {
		base := f * stride
		for ch := 0; ch < a.channels; ch++ {
			off := base + ch*float32Bytes
			if a.capture && off+float32Bytes <= len(input) {
				a.inputs[ch][a.pos] = math.Float32frombits(binary.LittleEndian.Uint32(input[off:]))
			}
			if off+float32Bytes <= len(output) {
				binary.LittleEndian.PutUint32(output[off:], math.Float32bits(a.outputs[ch][a.pos]))
			}
		}
		a.pos++
		if a.pos == a.frames {
			a.pos = 0
			if a.capture {
				a.cb(a.inputs, a.outputs)
			} else {
				a.cb(nil, a.outputs)
			}
		}
	}
}
