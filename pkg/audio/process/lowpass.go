// ABOUTME: One-pole low-pass filter processor
// ABOUTME: Keeps per-channel filter state across blocks
package process

import "fmt"

// LowPass is y[n] = y[n-1] + alpha * (x[n] - y[n-1]) per channel.
// alpha of 1 passes audio unchanged; smaller values cut more highs.
type LowPass struct {
	alpha float32
	state []float32
}

// NewLowPass creates a filter for channels channels
func NewLowPass(alpha float64, channels int) (*LowPass, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("low-pass coefficient must be in (0, 1], got %v", alpha)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	return &LowPass{
		alpha: float32(alpha),
		state: make([]float32, channels),
	}, nil
}

func (l *LowPass) Name() string { return fmt.Sprintf("lowpass(%.2f)", l.alpha) }

func (l *LowPass) Process(channels [][]float32) {
	for ch, buf := range channels {
		if ch >= len(l.state) {
			return
		}
		y := l.state[ch]
		for i, x := range buf {
			y += l.alpha * (x - y)
			buf[i] = y
		}
		l.state[ch] = y
	}
}

// Reset clears the filter history
func (l *LowPass) Reset() {
	clear(l.state)
}
