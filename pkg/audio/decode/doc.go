// ABOUTME: Slot decoder package
// ABOUTME: Provides the Decoder interface and the PCM slot decoder
// Package decode unpacks wire Slots into planar float32 channel buffers.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	channels := audio.NewChannelBuffers(format.Channels, format.FramesPerBlock)
//	err = decoder.Decode(slot, channels)
package decode
