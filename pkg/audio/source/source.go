// ABOUTME: Audio source abstraction for headless runs
// ABOUTME: Opens silence, a test tone or an MP3/FLAC file by name
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Source provides interleaved float32 samples in [-1, 1]
type Source interface {
	// Read fills samples (interleaved) and returns how many were written
	Read(samples []float32) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Channels returns the number of channels
	Channels() int
	// Name describes the source for logs and UIs
	Name() string
	// Close closes the audio source
	Close() error
}

// Names accepted by Open besides file paths
const (
	NameSilence = "silence"
	NameTone    = "tone"
)

// Open creates a source from name and resamples it to sampleRate if needed.
// name is "" or "silence", "tone", or a path to an .mp3 or .flac file.
func Open(name string, sampleRate, channels int) (Source, error) {
	var src Source
	var err error

	switch strings.ToLower(name) {
	case "", NameSilence:
		return NewSilence(sampleRate, channels), nil
	case NameTone:
		return NewTone(440, sampleRate, channels), nil
	}

	if _, statErr := os.Stat(name); statErr != nil {
		return nil, fmt.Errorf("audio file not found: %s: %w", name, statErr)
	}

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".mp3":
		src, err = NewMP3(name)
	case ".flac":
		src, err = NewFLAC(name)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
	if err != nil {
		return nil, err
	}

	if src.SampleRate() != sampleRate {
		logrus.WithFields(logrus.Fields{
			"source": src.Name(),
			"from":   src.SampleRate(),
			"to":     sampleRate,
		}).Info("Resampling input source")
		src = NewResampled(src, sampleRate)
	}
	return src, nil
}
