// ABOUTME: Audio backend boundary: whatever owns the real-time period clock
// ABOUTME: Backends invoke a Callback once per block with planar channel buffers
package backend

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/source"
)

// ErrBackendShutdown is delivered on Done when the device goes away underneath us
var ErrBackendShutdown = errors.New("audio backend shut down")

// Callback is invoked once per hardware period. inputs or outputs may be nil
// when the backend has no capture or no playback side. It must not block.
type Callback func(inputs, outputs [][]float32)

// Backend drives a Callback at the audio rate
type Backend interface {
	Name() string
	// Start begins invoking cb; it returns once the stream is running
	Start(cb Callback) error
	// Stop halts the stream; no callback runs after Stop returns
	Stop() error
	// Done yields an error wrapping ErrBackendShutdown if the device fails,
	// and is closed after Stop
	Done() <-chan error
}

// Options configure a backend
type Options struct {
	Format audio.Format
	// Source feeds the clock backend's inputs; nil means silence
	Source source.Source
	// Mirror feeds each block's outputs back as the next block's inputs
	Mirror bool
	Logger *logrus.Entry
}

// New creates the backend called name
func New(name string, opts Options) (Backend, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend format: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	switch name {
	case "", "clock":
		return NewClock(opts), nil
	case "portaudio":
		return newPortAudio(opts)
	case "malgo":
		return newMalgo(opts)
	case "oto":
		return newOto(opts)
	}
	return nil, fmt.Errorf("unknown audio backend: %s", name)
}
