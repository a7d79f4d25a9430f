// ABOUTME: Generated sources: a sine test tone and silence
package source

import "math"

// Tone generates a sine wave at half scale on every channel
type Tone struct {
	frequency  float64
	sampleRate int
	channels   int
	index      uint64
}

// NewTone creates a tone generator
func NewTone(frequency float64, sampleRate, channels int) *Tone {
	return &Tone{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *Tone) Read(samples []float32) (int, error) {
	frames := len(samples) / s.channels
	for i := 0; i < frames; i++ {
		t := float64(s.index+uint64(i)) / float64(s.sampleRate)
		v := float32(0.5 * math.Sin(2*math.Pi*s.frequency*t))
		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
	}
	s.index += uint64(frames)
	return frames * s.channels, nil
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return s.channels }
func (s *Tone) Name() string    { return "tone" }
func (s *Tone) Close() error    { return nil }

// Silence produces zeros forever
type Silence struct {
	sampleRate int
	channels   int
}

// NewSilence creates a silent source
func NewSilence(sampleRate, channels int) *Silence {
	return &Silence{sampleRate: sampleRate, channels: channels}
}

func (s *Silence) Read(samples []float32) (int, error) {
	clear(samples)
	return len(samples), nil
}

func (s *Silence) SampleRate() int { return s.sampleRate }
func (s *Silence) Channels() int   { return s.channels }
func (s *Silence) Name() string    { return "silence" }
func (s *Silence) Close() error    { return nil }
