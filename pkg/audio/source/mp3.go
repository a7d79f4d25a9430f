// ABOUTME: MP3 file source decoded with go-mp3
// ABOUTME: Loops the file on EOF
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// MP3 reads from an MP3 file. go-mp3 always decodes to 16-bit stereo.
type MP3 struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string
	buf        []byte
}

// NewMP3 opens an MP3 file
func NewMP3(filePath string) (*MP3, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := filepath.Base(filePath)
	logrus.WithFields(logrus.Fields{
		"file":        title,
		"sample_rate": decoder.SampleRate(),
	}).Info("Loaded MP3")

	return &MP3{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

func (s *MP3) Read(samples []float32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
	}

	if err != nil {
		if rewindErr := s.rewind(); rewindErr != nil {
			return numSamples, rewindErr
		}
	}
	return numSamples, nil
}

func (s *MP3) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3) SampleRate() int { return s.sampleRate }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Name() string    { return s.title }
func (s *MP3) Close() error    { return s.file.Close() }
