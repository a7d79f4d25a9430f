// ABOUTME: Pure Go backend that ticks at the block period with no device
// ABOUTME: Inputs come from a Source or from the previous block's outputs
package backend

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/source"
)

// Clock is a headless backend used by server sessions and tests
type Clock struct {
	format audio.Format
	period time.Duration
	reader *source.BlockReader
	src    source.Source
	mirror bool
	log    *logrus.Entry

	inputs  [][]float32
	outputs [][]float32

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan error
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewClock creates a clock backend
func NewClock(opts Options) *Clock {
	f := opts.Format
	c := &Clock{
		format:  f,
		period:  time.Duration(f.FramesPerBlock) * time.Second / time.Duration(f.SampleRate),
		src:     opts.Source,
		mirror:  opts.Mirror,
		log:     opts.Logger,
		inputs:  audio.NewChannelBuffers(f.Channels, f.FramesPerBlock),
		outputs: audio.NewChannelBuffers(f.Channels, f.FramesPerBlock),
		done:    make(chan error, 1),
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Source != nil {
		c.reader = source.NewBlockReader(opts.Source, f.FramesPerBlock)
	}
	return c
}

func (c *Clock) Name() string {
	if c.mirror {
		return "clock(mirror)"
	}
	if c.src != nil {
		return "clock(" + c.src.Name() + ")"
	}
	return "clock"
}

// Period is the interval between callbacks
func (c *Clock) Period() time.Duration {
	return c.period
}

func (c *Clock) Start(cb Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("clock backend already started")
	}
	c.running = true
	c.stopChan = make(chan struct{})

	c.wg.Add(1)
	go c.run(cb, c.stopChan)
	return nil
}

func (c *Clock) run(cb Callback, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		switch {
		case c.mirror:
			for ch := range c.inputs {
				copy(c.inputs[ch], c.outputs[ch])
			}
		case c.reader != nil:
			if err := c.reader.Fill(c.inputs); err != nil && !errors.Is(err, io.EOF) {
				c.log.WithError(err).Warn("Input source failed, continuing with silence")
				c.reader = nil
				for _, in := range c.inputs {
					clear(in)
				}
			}
		}

		cb(c.inputs, c.outputs)
	}
}

func (c *Clock) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	c.doneOnce.Do(func() { close(c.done) })

	if c.src != nil {
		if err := c.src.Close(); err != nil {
			return fmt.Errorf("failed to close input source: %w", err)
		}
	}
	return nil
}

func (c *Clock) Done() <-chan error {
	return c.done
}
