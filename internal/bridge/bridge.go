// ABOUTME: Per-session engine between the real-time audio callback and the rings
// ABOUTME: Decodes inbound slots to outputs and encodes inputs to outbound slots
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/decode"
	"github.com/soundwire/netjam/pkg/audio/encode"
	"github.com/soundwire/netjam/pkg/audio/process"
	"github.com/soundwire/netjam/pkg/ringbuffer"
)

// Config describes one bridge
type Config struct {
	Format   audio.Format
	Inbound  *ringbuffer.RingBuffer // network -> audio output
	Outbound *ringbuffer.RingBuffer // audio input -> network
	Pipeline *process.Pipeline

	// RepeatOnUnderrun replays the last good inbound slot instead of silence
	RepeatOnUnderrun bool
}

// Bridge is driven by the audio backend once per hardware period.
// OnAudioBlock never blocks and never allocates.
type Bridge struct {
	format   audio.Format
	inbound  *ringbuffer.RingBuffer
	outbound *ringbuffer.RingBuffer
	pipeline *process.Pipeline
	encoder  *encode.PCMEncoder
	decoder  *decode.PCMDecoder
	repeat   bool

	rxSlot []byte
	txSlot []byte

	// held by OnAudioBlock for reading, by Detach for writing
	mu       sync.RWMutex
	detached bool

	blocks  atomic.Uint64
	repeats atomic.Uint64
	skipped atomic.Uint64
}

// Stats is a snapshot of bridge activity
type Stats struct {
	Blocks            uint64 // callbacks served
	Repeats           uint64 // underruns covered by the last good slot
	InboundUnderruns  uint64
	InboundOverflows  uint64
	OutboundOverflows uint64
}

// New allocates every buffer the callback needs
func New(cfg Config) (*Bridge, error) {
	if cfg.Inbound == nil || cfg.Outbound == nil {
		return nil, fmt.Errorf("bridge needs both rings")
	}
	slotSize := cfg.Format.SlotSize()
	if cfg.Inbound.SlotSize() != slotSize || cfg.Outbound.SlotSize() != slotSize {
		return nil, fmt.Errorf("%w: rings hold %d/%d bytes, format needs %d",
			ringbuffer.ErrSlotSize, cfg.Inbound.SlotSize(), cfg.Outbound.SlotSize(), slotSize)
	}

	enc, err := encode.NewPCM(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	dec, err := decode.NewPCM(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Bridge{
		format:   cfg.Format,
		inbound:  cfg.Inbound,
		outbound: cfg.Outbound,
		pipeline: cfg.Pipeline,
		encoder:  enc,
		decoder:  dec,
		repeat:   cfg.RepeatOnUnderrun,
		rxSlot:   make([]byte, slotSize),
		txSlot:   make([]byte, slotSize),
	}, nil
}

// Format returns the bridge's audio format
func (b *Bridge) Format() audio.Format {
	return b.format
}

// OnAudioBlock serves one hardware period. outputs receive the next inbound
// block after the processing pipeline; inputs are packed into the outbound
// ring. Either side may be nil for playback-only or capture-only backends.
func (b *Bridge) OnAudioBlock(inputs, outputs [][]float32) {
	if !b.mu.TryRLock() {
		b.skipped.Add(1)
		silence(outputs)
		return
	}
	defer b.mu.RUnlock()

	if b.detached {
		silence(outputs)
		return
	}

	if outputs != nil {
		if !b.inbound.ReadNonBlocking(b.rxSlot) && b.repeat {
			if b.inbound.LastReadSlot(b.rxSlot) {
				b.repeats.Add(1)
			}
		}
		// sizes are fixed at construction so Decode cannot fail here
		_ = b.decoder.Decode(b.rxSlot, outputs)
		b.pipeline.Process(outputs)
	}

	if inputs != nil {
		_ = b.encoder.Encode(b.txSlot, inputs)
		b.outbound.WriteNonBlocking(b.txSlot)
	}

	b.blocks.Add(1)
}

// Detach stops the bridge from touching its rings. It waits for an
// in-flight OnAudioBlock to return; later calls only produce silence.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detached = true
}

// Detached reports whether Detach has been called
func (b *Bridge) Detached() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.detached
}

// Stats returns the bridge counters together with its rings' counters
func (b *Bridge) Stats() Stats {
	return Stats{
		Blocks:            b.blocks.Load(),
		Repeats:           b.repeats.Load(),
		InboundUnderruns:  b.inbound.Underruns(),
		InboundOverflows:  b.inbound.Overflows(),
		OutboundOverflows: b.outbound.Overflows(),
	}
}

func silence(outputs [][]float32) {
	for _, out := range outputs {
		clear(out)
	}
}
