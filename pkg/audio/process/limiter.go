// ABOUTME: Hard limiter processor
package process

import "fmt"

// Limiter clips samples to [-Threshold, Threshold]
type Limiter struct {
	threshold float32
}

// NewLimiter creates a limiter; threshold must be in (0, 1]
func NewLimiter(threshold float64) (*Limiter, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("limiter threshold must be in (0, 1], got %v", threshold)
	}
	return &Limiter{threshold: float32(threshold)}, nil
}

func (l *Limiter) Name() string { return "limiter" }

func (l *Limiter) Process(channels [][]float32) {
	for _, buf := range channels {
		for i, s := range buf {
			buf[i] = clamp(s, -l.threshold, l.threshold)
		}
	}
}
