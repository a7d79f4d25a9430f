// ABOUTME: Unit tests for PCM slot decoder
// ABOUTME: Tests slot unpacking and encoder/decoder round trips
package decode

import (
	"math"
	"testing"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/encode"
)

var _ Decoder = (*PCMDecoder)(nil)

func TestPCMDecoder_Decode16Bit(t *testing.T) {
	format := audio.Format{SampleRate: 48000, FramesPerBlock: 2, Channels: 2, BitResolution: audio.Bit16}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}
	defer decoder.Close()

	// ch0: 16384, -32768  ch1: 0, 8192
	slot := []byte{0x00, 0x40, 0x00, 0x80, 0x00, 0x00, 0x00, 0x20}
	channels := audio.NewChannelBuffers(2, 2)
	if err := decoder.Decode(slot, channels); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	expected := [][]float32{{0.5, -1}, {0, 0.25}}
	for ch := range expected {
		for i := range expected[ch] {
			if channels[ch][i] != expected[ch][i] {
				t.Errorf("ch %d frame %d: got %v, want %v", ch, i, channels[ch][i], expected[ch][i])
			}
		}
	}
}

func TestPCMDecoder_ExtraOutputChannelsAreZeroed(t *testing.T) {
	format := audio.Format{SampleRate: 48000, FramesPerBlock: 2, Channels: 1, BitResolution: audio.Bit8}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}

	channels := [][]float32{{1, 1}, {1, 1}}
	if err := decoder.Decode([]byte{0x40, 0xC0}, channels); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if channels[0][0] != 0.5 || channels[0][1] != -0.5 {
		t.Errorf("unexpected channel 0: %v", channels[0])
	}
	if channels[1][0] != 0 || channels[1][1] != 0 {
		t.Errorf("expected zeroed channel 1, got %v", channels[1])
	}
}

func TestPCMDecoder_WrongSlotSize(t *testing.T) {
	format := audio.Format{SampleRate: 48000, FramesPerBlock: 2, Channels: 1, BitResolution: audio.Bit16}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}
	if err := decoder.Decode(make([]byte, 3), audio.NewChannelBuffers(1, 2)); err == nil {
		t.Error("expected error for short slot")
	}
}

func TestRoundTripThroughSlot(t *testing.T) {
	resolutions := []audio.BitResolution{audio.Bit8, audio.Bit16, audio.Bit24, audio.Bit32}

	for _, res := range resolutions {
		t.Run(res.String(), func(t *testing.T) {
			format := audio.Format{SampleRate: 48000, FramesPerBlock: 64, Channels: 3, BitResolution: res}
			enc, err := encode.NewPCM(format)
			if err != nil {
				t.Fatalf("encode.NewPCM() failed: %v", err)
			}
			dec, err := NewPCM(format)
			if err != nil {
				t.Fatalf("NewPCM() failed: %v", err)
			}

			in := audio.NewChannelBuffers(3, 64)
			for ch := range in {
				for i := range in[ch] {
					in[ch][i] = float32(math.Sin(float64(i+ch*7) / 5))
				}
			}

			slot := make([]byte, format.SlotSize())
			if err := enc.Encode(slot, in); err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			out := audio.NewChannelBuffers(3, 64)
			if err := dec.Decode(slot, out); err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}

			step := audio.QuantizationStep(res)
			for ch := range in {
				for i := range in[ch] {
					diff := math.Abs(float64(in[ch][i] - out[ch][i]))
					if diff > step {
						t.Fatalf("ch %d frame %d: |%v - %v| > %v", ch, i, in[ch][i], out[ch][i], step)
					}
				}
			}
		})
	}
}
