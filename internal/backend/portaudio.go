//go:build portaudio

// ABOUTME: PortAudio backend
// ABOUTME: Opens the default duplex stream with non-interleaved float32 buffers
package backend

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
)

// PortAudio hands its planar stream buffers straight to the callback
type PortAudio struct {
	format audio.Format
	log    *logrus.Entry

	mu       sync.Mutex
	stream   *portaudio.Stream
	done     chan error
	doneOnce sync.Once
}

func newPortAudio(opts Options) (Backend, error) {
	return &PortAudio{
		format: opts.Format,
		log:    opts.Logger,
		done:   make(chan error, 1),
	}, nil
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Start(cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("portaudio backend already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		p.format.Channels, p.format.Channels,
		float64(p.format.SampleRate), p.format.FramesPerBlock,
		func(in, out [][]float32) {
			cb(in, out)
		})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	p.stream = stream
	p.log.Infof("Audio device started: %s (portaudio)", p.format)
	return nil
}

func (p *PortAudio) Stop() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	defer p.doneOnce.Do(func() { close(p.done) })

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return portaudio.Terminate()
}

func (p *PortAudio) Done() <-chan error {
	return p.done
}
