// ABOUTME: Session handshake packet sent once by a connecting peer
// ABOUTME: Fixed 11-byte little-endian layout carrying the peer's audio format
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/soundwire/netjam/pkg/audio"
)

// HandshakeSize is the fixed wire size of a handshake packet:
// buffer_size u32, sampling_rate u32, bit_resolution u8, channels u8, connection_mode u8
const HandshakeSize = 4 + 4 + 1 + 1 + 1

var (
	// ErrMalformedHandshake is returned for packets that cannot be a handshake
	ErrMalformedHandshake = errors.New("malformed handshake")
	// ErrUnsupportedResolution is returned for a bit resolution outside {8,16,24,32}
	ErrUnsupportedResolution = errors.New("unsupported bit resolution in handshake")
)

// ConnectionMode selects how the accepting side drives a session
type ConnectionMode uint8

const (
	// ModeNormal drives the session from the acceptor's audio backend
	ModeNormal ConnectionMode = 0
	// ModeMirror loops the session's received audio back to the peer
	ModeMirror ConnectionMode = 1
)

func (m ConnectionMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeMirror:
		return "mirror"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseConnectionMode converts a mode name to a ConnectionMode
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch s {
	case "", "normal":
		return ModeNormal, nil
	case "mirror":
		return ModeMirror, nil
	}
	return 0, fmt.Errorf("unknown connection mode: %q", s)
}

// Handshake is the capability packet describing the connecting peer's stream
type Handshake struct {
	BufferSize     uint32 // frames per block
	SamplingRate   uint32
	BitResolution  uint8
	Channels       uint8
	ConnectionMode ConnectionMode
}

// HandshakeFromFormat builds a handshake for format
func HandshakeFromFormat(format audio.Format, mode ConnectionMode) (Handshake, error) {
	if err := format.Validate(); err != nil {
		return Handshake{}, err
	}
	if uint64(format.FramesPerBlock) > math.MaxUint32 || uint64(format.SampleRate) > math.MaxUint32 {
		return Handshake{}, fmt.Errorf("format does not fit handshake fields: %s", format)
	}
	return Handshake{
		BufferSize:     uint32(format.FramesPerBlock),
		SamplingRate:   uint32(format.SampleRate),
		BitResolution:  uint8(format.BitResolution),
		Channels:       uint8(format.Channels),
		ConnectionMode: mode,
	}, nil
}

// Format returns the audio format the handshake describes
func (h Handshake) Format() audio.Format {
	return audio.Format{
		SampleRate:     int(h.SamplingRate),
		FramesPerBlock: int(h.BufferSize),
		Channels:       int(h.Channels),
		BitResolution:  audio.BitResolution(h.BitResolution),
	}
}

// Marshal serializes the handshake into its fixed wire layout
func (h Handshake) Marshal() []byte {
	buf := make([]byte, HandshakeSize)
	h.MarshalTo(buf)
	return buf
}

// MarshalTo writes the handshake into buf, which must be at least HandshakeSize bytes
func (h Handshake) MarshalTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.BufferSize)
	binary.LittleEndian.PutUint32(buf[4:8], h.SamplingRate)
	buf[8] = h.BitResolution
	buf[9] = h.Channels
	buf[10] = uint8(h.ConnectionMode)
}

// ParseHandshake decodes a handshake packet.
// Packets shorter than HandshakeSize, or with zero sizes, fail with
// ErrMalformedHandshake; an unknown bit resolution fails with both
// ErrMalformedHandshake and ErrUnsupportedResolution.
func ParseHandshake(data []byte) (Handshake, error) {
	if len(data) < HandshakeSize {
		return Handshake{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedHandshake, len(data), HandshakeSize)
	}

	h := Handshake{
		BufferSize:     binary.LittleEndian.Uint32(data[0:4]),
		SamplingRate:   binary.LittleEndian.Uint32(data[4:8]),
		BitResolution:  data[8],
		Channels:       data[9],
		ConnectionMode: ConnectionMode(data[10]),
	}

	if !audio.BitResolution(h.BitResolution).Valid() {
		return Handshake{}, fmt.Errorf("%w: %w: %d", ErrMalformedHandshake, ErrUnsupportedResolution, h.BitResolution)
	}
	if h.BufferSize == 0 || h.SamplingRate == 0 || h.Channels == 0 {
		return Handshake{}, fmt.Errorf("%w: zero buffer size, rate or channel count", ErrMalformedHandshake)
	}
	if h.ConnectionMode > ModeMirror {
		return Handshake{}, fmt.Errorf("%w: unknown connection mode %d", ErrMalformedHandshake, h.ConnectionMode)
	}

	return h, nil
}
