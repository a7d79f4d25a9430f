// ABOUTME: Slot encoder package
// ABOUTME: Provides the Encoder interface and the PCM slot encoder
// Package encode packs audio blocks into wire Slots.
//
// A Slot carries one block for every channel, channel-major, at the
// session's bit resolution (8, 16, 24-bit signed PCM or 32-bit float).
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	slot := make([]byte, format.SlotSize())
//	err = encoder.Encode(slot, channelBuffers)
package encode
