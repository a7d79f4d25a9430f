// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation resampling between sample rates
package resample

import (
	"math"
	"testing"
)

func ramp(frames, channels int, step float32) []float32 {
	input := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			input[i*channels+ch] = float32(i) * step
		}
	}
	return input
}

func TestNew(t *testing.T) {
	r := New(44100, 48000, 2)

	if r == nil {
		t.Fatal("expected resampler to be created")
	}
	if r.inputRate != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.inputRate)
	}
	if r.outputRate != 48000 {
		t.Errorf("expected outputRate 48000, got %d", r.outputRate)
	}
	if r.channels != 2 {
		t.Errorf("expected channels 2, got %d", r.channels)
	}
}

func TestResampleUpsampling(t *testing.T) {
	r := New(44100, 48000, 2)
	input := ramp(100, 2, 0.001)

	expectedSize := int(float64(len(input)) * 48000 / 44100)
	output := make([]float32, r.MaxOutputSamples(len(input)))

	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}

	// a ramp stays monotonic under linear interpolation
	for i := 2; i < n; i += 2 {
		if output[i] < output[i-2] {
			t.Fatalf("output not monotonic at %d: %v < %v", i, output[i], output[i-2])
		}
	}
}

func TestResampleDownsampling(t *testing.T) {
	r := New(48000, 44100, 2)
	input := ramp(100, 2, 0.001)

	expectedSize := int(float64(len(input)) * 44100 / 48000)
	output := make([]float32, r.MaxOutputSamples(len(input)))

	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}
}

func TestResampleSameRateIsContinuousAcrossChunks(t *testing.T) {
	r := New(48000, 48000, 1)
	output := make([]float32, 64)

	first := ramp(10, 1, 1)
	n := r.Resample(first, output)
	if n != 9 {
		t.Fatalf("expected 9 samples from first chunk, got %d", n)
	}
	for i := 0; i < n; i++ {
		if output[i] != float32(i) {
			t.Errorf("sample %d: expected %d, got %v", i, i, output[i])
		}
	}

	second := make([]float32, 10)
	for i := range second {
		second[i] = float32(10 + i)
	}
	n = r.Resample(second, output)
	if n != 10 {
		t.Fatalf("expected 10 samples from second chunk, got %d", n)
	}
	for i := 0; i < n; i++ {
		if output[i] != float32(9+i) {
			t.Errorf("sample %d: expected %d, got %v", i, 9+i, output[i])
		}
	}
}

func TestResampleStereo(t *testing.T) {
	r := New(44100, 48000, 2)

	input := make([]float32, 20)
	for i := 0; i < 10; i++ {
		input[i*2] = 0.5
		input[i*2+1] = -0.5
	}

	output := make([]float32, 30)
	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}
	for i := 0; i < n/2; i++ {
		if output[i*2] != 0.5 || output[i*2+1] != -0.5 {
			t.Fatalf("frame %d: channels mixed: %v %v", i, output[i*2], output[i*2+1])
		}
	}
}

func TestResampleLargeRatioUp(t *testing.T) {
	r := New(44100, 192000, 2)
	input := ramp(100, 2, 0.01)

	output := make([]float32, r.MaxOutputSamples(len(input)))
	n := r.Resample(input, output)
	if n < len(input)*3 {
		t.Errorf("expected at least 3x upsampling, got %d from %d", n, len(input))
	}
}

func TestResampleSineKeepsShape(t *testing.T) {
	const freq = 440.0
	r := New(44100, 48000, 1)
	input := make([]float32, 4410)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / 44100))
	}

	output := make([]float32, r.MaxOutputSamples(len(input)))
	n := r.Resample(input, output)
	for i := 0; i < n; i++ {
		want := math.Sin(2 * math.Pi * freq * float64(i) / 48000)
		if math.Abs(float64(output[i])-want) > 0.01 {
			t.Fatalf("sample %d: expected ~%.4f, got %.4f", i, want, output[i])
		}
	}
}

func TestInputSamplesNeeded(t *testing.T) {
	r := New(44100, 48000, 2)
	if got := r.InputSamplesNeeded(256); got != 236 {
		t.Errorf("expected 236, got %d", got)
	}
}

func TestReset(t *testing.T) {
	r := New(48000, 48000, 1)
	out := make([]float32, 8)
	r.Resample([]float32{1, 2, 3}, out)
	r.Reset()
	n := r.Resample([]float32{5, 6}, out)
	if n != 1 || out[0] != 5 {
		t.Errorf("expected fresh start after Reset, got %d samples %v", n, out[:n])
	}
}
