// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Interpolates interleaved float32 frames and carries state across chunks
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64   // read position in frames, relative to lastFrame when hasLast
	lastFrame  []float32 // final input frame of the previous chunk
	hasLast    bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Resample converts interleaved input at inputRate to interleaved output at
// outputRate and returns the number of output samples written. The last input
// frame is kept so the next chunk interpolates across the boundary.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	offset := 0
	if r.hasLast {
		offset = 1
	}
	available := inputFrames + offset

	frame := func(i, ch int) float32 {
		if i < offset {
			return r.lastFrame[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx+1 >= available {
			break
		}
		frac := float32(r.position - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			a := frame(idx, ch)
			b := frame(idx+1, ch)
			output[outIdx*r.channels+ch] = a + (b-a)*frac
		}
		outIdx++
		r.position += r.ratio
	}

	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.hasLast = true
	r.position -= float64(available - 1)
	if r.position < 0 {
		r.position = 0
	}

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.hasLast = false
	clear(r.lastFrame)
}

// Ratio returns input frames consumed per output frame
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// MaxOutputSamples is an upper bound on the samples Resample can produce from inputSamples
func (r *Resampler) MaxOutputSamples(inputSamples int) int {
	inputFrames := inputSamples/r.channels + 1
	return (int(math.Ceil(float64(inputFrames)/r.ratio)) + 1) * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(math.Ceil(float64(outputFrames) * r.ratio))
	return inputFrames * r.channels
}
