// ABOUTME: Tests for input sources
// ABOUTME: Covers tone, silence, opening by name and block filling
package source

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenGenerated(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty is silence", "", "silence"},
		{"silence", "silence", "silence"},
		{"tone", "TONE", "tone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(tt.input, 48000, 2)
			require.NoError(t, err)
			defer src.Close()
			assert.Equal(t, tt.expected, src.Name())
			assert.Equal(t, 48000, src.SampleRate())
			assert.Equal(t, 2, src.Channels())
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp3"), 48000, 2)
	assert.ErrorContains(t, err, "not found")

	wav := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))
	_, err = Open(wav, 48000, 2)
	assert.ErrorContains(t, err, "unsupported audio format")
}

func TestToneIsSineAtHalfScale(t *testing.T) {
	tone := NewTone(1000, 8000, 2)
	buf := make([]float32, 16)
	n, err := tone.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	// 1 kHz at 8 kHz: quarter period every 2 frames
	assert.InDelta(t, 0, buf[0], 1e-6)
	assert.InDelta(t, 0.5, buf[4], 1e-6)
	assert.Equal(t, buf[4], buf[5])

	// phase continues across reads
	n, err = tone.Read(buf[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	want := 0.5 * math.Sin(2*math.Pi*1000*8/8000)
	assert.InDelta(t, want, buf[0], 1e-6)
}

func TestSilence(t *testing.T) {
	buf := []float32{1, 2, 3}
	n, err := NewSilence(48000, 1).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{0, 0, 0}, buf)
}

func TestResampledProducesFullReads(t *testing.T) {
	r := NewResampled(NewTone(440, 44100, 2), 48000)
	assert.Equal(t, 48000, r.SampleRate())
	assert.Equal(t, 2, r.Channels())

	buf := make([]float32, 256)
	for i := 0; i < 20; i++ {
		n, err := r.Read(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
	}
	for _, s := range buf {
		assert.LessOrEqual(t, math.Abs(float64(s)), 0.5001)
	}
}

func TestBlockReaderMapsMonoToAllChannels(t *testing.T) {
	br := NewBlockReader(NewTone(1000, 8000, 1), 4)
	channels := [][]float32{make([]float32, 4), make([]float32, 4), make([]float32, 4)}

	require.NoError(t, br.Fill(channels))
	assert.Equal(t, channels[0], channels[1])
	assert.Equal(t, channels[0], channels[2])
	assert.InDelta(t, 0.5, channels[0][2], 1e-6)
}

type stereoRamp struct{ next float32 }

func (s *stereoRamp) Read(samples []float32) (int, error) {
	for i := 0; i+1 < len(samples); i += 2 {
		samples[i] = s.next
		samples[i+1] = -s.next
		s.next += 0.1
	}
	return len(samples), nil
}
func (s *stereoRamp) SampleRate() int { return 48000 }
func (s *stereoRamp) Channels() int   { return 2 }
func (s *stereoRamp) Name() string    { return "ramp" }
func (s *stereoRamp) Close() error    { return nil }

func TestBlockReaderDeinterleaves(t *testing.T) {
	br := NewBlockReader(&stereoRamp{}, 3)
	channels := [][]float32{{9, 9, 9}, {9, 9, 9}, {9, 9, 9}, {9, 9, 9}}

	require.NoError(t, br.Fill(channels))
	assert.InDeltaSlice(t, []float32{0, 0.1, 0.2}, channels[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, -0.1, -0.2}, channels[1], 1e-6)
	assert.Equal(t, []float32{0, 0, 0}, channels[2])
	assert.Equal(t, []float32{0, 0, 0}, channels[3])
}
