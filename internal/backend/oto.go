//go:build oto

// ABOUTME: Playback-only backend built on oto
// ABOUTME: oto pulls float32 frames and each full block runs the callback
package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
)

// Oto has no capture side; the callback always sees nil inputs.
// oto allows a single context per process, so Stop suspends it rather
// than tearing it down.
type Oto struct {
	format audio.Format
	log    *logrus.Entry

	mu       sync.Mutex
	otoCtx   *oto.Context
	player   *oto.Player
	reader   *pullReader
	done     chan error
	doneOnce sync.Once
}

func newOto(opts Options) (Backend, error) {
	return &Oto{
		format: opts.Format,
		log:    opts.Logger,
		done:   make(chan error, 1),
	}, nil
}

func (o *Oto) Name() string { return "oto" }

// pullReader feeds oto from the block adapter
type pullReader struct {
	mu      sync.Mutex
	adapter *blockAdapter
	stride  int
	stopped bool
}

func (r *pullReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / r.stride
	if r.stopped {
		clear(p[:frames*r.stride])
		return frames * r.stride, nil
	}
	r.adapter.process(p, nil, frames)
	return frames * r.stride, nil
}

func (r *pullReader) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (o *Oto) Start(cb Callback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return fmt.Errorf("oto backend already started")
	}

	period := time.Duration(o.format.FramesPerBlock) * time.Second / time.Duration(o.format.SampleRate)
	op := &oto.NewContextOptions{
		SampleRate:   o.format.SampleRate,
		ChannelCount: o.format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   period,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	reader := &pullReader{
		adapter: newBlockAdapter(cb, o.format.FramesPerBlock, o.format.Channels, false),
		stride:  o.format.Channels * float32Bytes,
	}
	player := ctx.NewPlayer(reader)
	player.Play()

	o.otoCtx = ctx
	o.player = player
	o.reader = reader
	o.log.Infof("Audio output started: %s (oto, playback only)", o.format)
	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	player, ctx, reader := o.player, o.otoCtx, o.reader
	o.player, o.otoCtx, o.reader = nil, nil, nil
	o.mu.Unlock()

	defer o.doneOnce.Do(func() { close(o.done) })

	if reader != nil {
		reader.stop()
	}
	if player != nil {
		if err := player.Close(); err != nil {
			o.log.WithError(err).Warn("Player close error")
		}
	}
	if ctx != nil {
		if err := ctx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

func (o *Oto) Done() <-chan error {
	return o.done
}
