//go:build malgo

// ABOUTME: Full-duplex miniaudio backend via malgo
// ABOUTME: Opens the default capture and playback devices as float32
package backend

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
)

// Malgo drives the callback from the miniaudio device thread
type Malgo struct {
	format audio.Format
	log    *logrus.Entry

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	stopping bool
	done     chan error
	doneOnce sync.Once
}

func newMalgo(opts Options) (Backend, error) {
	return &Malgo{
		format: opts.Format,
		log:    opts.Logger,
		done:   make(chan error, 1),
	}, nil
}

func (m *Malgo) Name() string { return "malgo" }

func (m *Malgo) Start(cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("malgo backend already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	channels := uint32(m.format.Channels)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = channels
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = uint32(m.format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.format.FramesPerBlock)
	deviceConfig.Alsa.NoMMap = 1

	adapter := newBlockAdapter(cb, m.format.FramesPerBlock, m.format.Channels, true)
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			adapter.process(pOutput, pInput, int(frameCount))
		},
		Stop: m.onDeviceStop,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize duplex device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.malgoCtx = ctx
	m.device = device
	m.log.Infof("Audio device started: %s (malgo/F32 duplex)", m.format)
	return nil
}

// onDeviceStop fires on explicit stops and on device loss
func (m *Malgo) onDeviceStop() {
	m.mu.Lock()
	stopping := m.stopping
	m.mu.Unlock()
	if stopping {
		return
	}
	m.doneOnce.Do(func() {
		m.done <- fmt.Errorf("%w: malgo device stopped unexpectedly", ErrBackendShutdown)
		close(m.done)
	})
}

func (m *Malgo) Stop() error {
	m.mu.Lock()
	m.stopping = true
	device, ctx := m.device, m.malgoCtx
	m.device, m.malgoCtx = nil, nil
	m.mu.Unlock()

	if device != nil {
		if err := device.Stop(); err != nil {
			m.log.WithError(err).Warn("Device stop error")
		}
		device.Uninit()
	}
	if ctx != nil {
		if err := ctx.Uninit(); err != nil {
			m.log.WithError(err).Warn("Malgo context uninit error")
		}
		ctx.Free()
	}

	m.doneOnce.Do(func() { close(m.done) })
	return nil
}

func (m *Malgo) Done() <-chan error {
	return m.done
}
