// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation over interleaved float32 frames. Handles both
// upsampling and downsampling, and keeps the last frame of each chunk so
// consecutive chunks join without a gap.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]float32, r.MaxOutputSamples(len(in)))
//	n := r.Resample(in, out)
package resample
