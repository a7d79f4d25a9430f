// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, bit resolutions and slot geometry
package audio

import (
	"errors"
	"fmt"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// MaxDatagramPayload is the largest UDP payload over IPv4
	MaxDatagramPayload = 65507
)

// ErrUnsupportedResolution is returned for bit widths other than 8, 16, 24 and 32
var ErrUnsupportedResolution = errors.New("unsupported bit resolution")

// BitResolution is the width of one wire sample in bits
type BitResolution uint8

const (
	Bit8  BitResolution = 8
	Bit16 BitResolution = 16
	Bit24 BitResolution = 24
	Bit32 BitResolution = 32
)

// Valid reports whether r is one of the supported widths
func (r BitResolution) Valid() bool {
	switch r {
	case Bit8, Bit16, Bit24, Bit32:
		return true
	}
	return false
}

// BytesPerSample returns the packed size of one sample
func (r BitResolution) BytesPerSample() int {
	return int(r) / 8
}

func (r BitResolution) String() string {
	return fmt.Sprintf("%d-bit", uint8(r))
}

// ParseBitResolution converts an integer flag value into a BitResolution
func ParseBitResolution(bits int) (BitResolution, error) {
	r := BitResolution(bits)
	if bits < 0 || bits > 255 || !r.Valid() {
		return 0, fmt.Errorf("%w: %d (supported: 8, 16, 24, 32)", ErrUnsupportedResolution, bits)
	}
	return r, nil
}

// Format describes the audio stream negotiated for one session
type Format struct {
	SampleRate     int
	FramesPerBlock int
	Channels       int
	BitResolution  BitResolution
}

// BytesPerChannel is the size of one channel's run of samples inside a slot
func (f Format) BytesPerChannel() int {
	return f.FramesPerBlock * f.BitResolution.BytesPerSample()
}

// SlotSize is the size in bytes of one packed block (one datagram)
func (f Format) SlotSize() int {
	return f.Channels * f.BytesPerChannel()
}

// Validate checks that the format can be carried in a single datagram
func (f Format) Validate() error {
	if !f.BitResolution.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedResolution, uint8(f.BitResolution))
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.FramesPerBlock <= 0 {
		return fmt.Errorf("invalid frames per block: %d", f.FramesPerBlock)
	}
	if f.Channels <= 0 || f.Channels > 255 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.SlotSize() > MaxDatagramPayload {
		return fmt.Errorf("slot size %d exceeds datagram limit %d", f.SlotSize(), MaxDatagramPayload)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s/%d frames", f.SampleRate, f.Channels, f.BitResolution, f.FramesPerBlock)
}

// NewChannelBuffers allocates one zeroed buffer per channel of frames samples
func NewChannelBuffers(channels, frames int) [][]float32 {
	bufs := make([][]float32, channels)
	backing := make([]float32, channels*frames)
	for ch := range bufs {
		bufs[ch] = backing[ch*frames : (ch+1)*frames : (ch+1)*frames]
	}
	return bufs
}
