// ABOUTME: FLAC file source decoded with mewkiz/flac
// ABOUTME: Loops the file on EOF and scales any bit depth to float32
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/sirupsen/logrus"
)

// FLAC reads from a FLAC file
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	scale      float32
	title      string

	pending *frame.Frame
	offset  int
}

// NewFLAC opens a FLAC file
func NewFLAC(filePath string) (*FLAC, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := filepath.Base(filePath)
	logrus.WithFields(logrus.Fields{
		"file":        title,
		"sample_rate": info.SampleRate,
		"channels":    info.NChannels,
		"bit_depth":   info.BitsPerSample,
	}).Info("Loaded FLAC")

	return &FLAC{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		scale:      float32(int64(1) << (info.BitsPerSample - 1)),
		title:      title,
	}, nil
}

func (s *FLAC) Read(samples []float32) (int, error) {
	read := 0
	for read+s.channels <= len(samples) {
		if s.pending == nil {
			fr, err := s.stream.ParseNext()
			if errors.Is(err, io.EOF) {
				if rewindErr := s.rewind(); rewindErr != nil {
					return read, rewindErr
				}
				continue
			}
			if err != nil {
				return read, err
			}
			s.pending = fr
			s.offset = 0
		}

		for s.offset < int(s.pending.BlockSize) && read+s.channels <= len(samples) {
			for ch := 0; ch < s.channels; ch++ {
				samples[read] = float32(s.pending.Subframes[ch].Samples[s.offset]) / s.scale
				read++
			}
			s.offset++
		}
		if s.offset >= int(s.pending.BlockSize) {
			s.pending = nil
		}
	}
	return read, nil
}

func (s *FLAC) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Name() string    { return s.title }
func (s *FLAC) Close() error    { return s.file.Close() }
