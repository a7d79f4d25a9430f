// ABOUTME: Source wrapper that converts another source's sample rate
package source

import (
	"errors"
	"io"

	"github.com/soundwire/netjam/pkg/audio/resample"
)

const resampleChunkFrames = 1024

// Resampled wraps a Source and resamples it to a target sample rate
type Resampled struct {
	source     Source
	resampler  *resample.Resampler
	targetRate int
	input      []float32
	output     []float32
	pending    []float32
}

// NewResampled creates a resampling wrapper around source
func NewResampled(src Source, targetRate int) *Resampled {
	r := resample.New(src.SampleRate(), targetRate, src.Channels())
	in := make([]float32, resampleChunkFrames*src.Channels())
	return &Resampled{
		source:     src,
		resampler:  r,
		targetRate: targetRate,
		input:      in,
		output:     make([]float32, r.MaxOutputSamples(len(in))),
	}
}

func (r *Resampled) Read(samples []float32) (int, error) {
	for len(r.pending) < len(samples) {
		n, err := r.source.Read(r.input)
		if n > 0 {
			m := r.resampler.Resample(r.input[:n], r.output)
			r.pending = append(r.pending, r.output[:m]...)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 0 {
			break
		}
	}

	copied := copy(samples, r.pending)
	r.pending = r.pending[:copy(r.pending, r.pending[copied:])]
	return copied, nil
}

func (r *Resampled) SampleRate() int { return r.targetRate }
func (r *Resampled) Channels() int   { return r.source.Channels() }
func (r *Resampled) Name() string    { return r.source.Name() }
func (r *Resampled) Close() error    { return r.source.Close() }
