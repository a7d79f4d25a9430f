// ABOUTME: Peak meter processor
// ABOUTME: Records per-channel peaks for display without touching the audio
package process

import (
	"math"
	"sync/atomic"
)

// Meter tracks the peak absolute sample per channel since the last Peaks call
type Meter struct {
	peaks []atomic.Uint32
}

// NewMeter creates a meter for channels channels
func NewMeter(channels int) *Meter {
	return &Meter{peaks: make([]atomic.Uint32, channels)}
}

func (m *Meter) Name() string { return "meter" }

func (m *Meter) Process(channels [][]float32) {
	for ch, buf := range channels {
		if ch >= len(m.peaks) {
			return
		}
		var peak float32
		for _, s := range buf {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		for {
			old := m.peaks[ch].Load()
			if math.Float32frombits(old) >= peak {
				break
			}
			if m.peaks[ch].CompareAndSwap(old, math.Float32bits(peak)) {
				break
			}
		}
	}
}

// Peaks returns and resets the per-channel peaks
func (m *Meter) Peaks() []float32 {
	out := make([]float32, len(m.peaks))
	for ch := range m.peaks {
		out[ch] = math.Float32frombits(m.peaks[ch].Swap(0))
	}
	return out
}
