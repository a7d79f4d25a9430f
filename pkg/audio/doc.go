// ABOUTME: Audio fundamentals package providing core types and the sample codec
// ABOUTME: Defines Format, BitResolution and float <-> wire sample conversion
// Package audio provides the audio types shared by every netjam component.
//
// A Format fixes the geometry of one Slot, the unit moved through ring buffers
// and carried by one datagram:
//
//	format := audio.Format{
//	    SampleRate:     48000,
//	    FramesPerBlock: 128,
//	    Channels:       2,
//	    BitResolution:  audio.Bit16,
//	}
//	slot := make([]byte, format.SlotSize()) // 512 bytes
//
// Samples inside a Slot are channel-major: all frames of channel 0, then all
// frames of channel 1, and so on.
//
// EncodeSample and DecodeSample convert between normalized float32 samples and
// 8, 16 or 24-bit signed little-endian integers, or raw 32-bit floats.
package audio
