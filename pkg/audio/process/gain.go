// ABOUTME: Volume and mute processor
// ABOUTME: Settings are atomics so a UI can change them while the callback runs
package process

import "sync/atomic"

// Gain scales every sample by volume/100, or silences the block when muted
type Gain struct {
	volume atomic.Int32
	muted  atomic.Bool
}

// NewGain creates a gain processor at volume (0-100)
func NewGain(volume int) *Gain {
	g := &Gain{}
	g.SetVolume(volume)
	return g
}

func (g *Gain) Name() string { return "gain" }

// SetVolume sets the volume (0-100)
func (g *Gain) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	g.volume.Store(int32(volume))
}

// SetMuted sets mute state
func (g *Gain) SetMuted(muted bool) {
	g.muted.Store(muted)
}

// Volume returns current volume
func (g *Gain) Volume() int {
	return int(g.volume.Load())
}

// Muted returns mute state
func (g *Gain) Muted() bool {
	return g.muted.Load()
}

func (g *Gain) multiplier() float32 {
	if g.muted.Load() {
		return 0
	}
	return float32(g.volume.Load()) / 100
}

func (g *Gain) Process(channels [][]float32) {
	m := g.multiplier()
	if m == 1 {
		return
	}
	for _, buf := range channels {
		for i, s := range buf {
			buf[i] = clamp(s*m, -1, 1)
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
