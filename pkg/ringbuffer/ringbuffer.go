// ABOUTME: Fixed-slot circular buffer between the audio callback and the network loops
// ABOUTME: Blocking variants wait on condition variables, non-blocking ones drop or zero-fill
package ringbuffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by blocking calls once Close has been called
	ErrClosed = errors.New("ring buffer closed")
	// ErrSlotSize is returned when a slot does not match the configured size
	ErrSlotSize = errors.New("slot size mismatch")
)

// RingBuffer holds NumSlots fixed-size slots in FIFO order.
// Each instance has exactly one producer and one consumer.
type RingBuffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf       []byte
	slotSize  int
	numSlots  int
	readPos   int
	writePos  int
	fullSlots int
	closed    bool

	lastSlot []byte
	hasLast  bool

	overflows atomic.Uint64
	underruns atomic.Uint64
}

// Stats is a snapshot of a ring's counters
type Stats struct {
	SlotSize  int
	NumSlots  int
	FullSlots int
	Overflows uint64
	Underruns uint64
}

// New creates a ring of numSlots slots of slotSize bytes each
func New(slotSize, numSlots int) (*RingBuffer, error) {
	if slotSize <= 0 {
		return nil, fmt.Errorf("invalid slot size: %d", slotSize)
	}
	if numSlots <= 0 {
		return nil, fmt.Errorf("invalid slot count: %d", numSlots)
	}

	r := &RingBuffer{
		buf:      make([]byte, slotSize*numSlots),
		slotSize: slotSize,
		numSlots: numSlots,
		lastSlot: make([]byte, slotSize),
	}
	r.notFull = sync.NewCond(&r.mu)
	r.notEmpty = sync.NewCond(&r.mu)
	return r, nil
}

// SlotSize returns the size in bytes of one slot
func (r *RingBuffer) SlotSize() int { return r.slotSize }

// NumSlots returns the ring capacity in slots
func (r *RingBuffer) NumSlots() int { return r.numSlots }

// WriteBlocking copies slot into the ring, waiting while the ring is full
func (r *RingBuffer) WriteBlocking(slot []byte) error {
	if len(slot) != r.slotSize {
		return fmt.Errorf("%w: got %d, want %d", ErrSlotSize, len(slot), r.slotSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.fullSlots == r.numSlots && !r.closed {
		r.notFull.Wait()
	}
	if r.closed {
		return ErrClosed
	}

	r.put(slot)
	return nil
}

// ReadBlocking copies the oldest slot into slot, waiting while the ring is empty
func (r *RingBuffer) ReadBlocking(slot []byte) error {
	if len(slot) != r.slotSize {
		return fmt.Errorf("%w: got %d, want %d", ErrSlotSize, len(slot), r.slotSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.fullSlots == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.closed {
		return ErrClosed
	}

	r.take(slot)
	return nil
}

// WriteNonBlocking copies slot into the ring if there is room.
// It returns false and counts an overflow when the ring is full; the
// existing contents are left untouched. It never waits.
func (r *RingBuffer) WriteNonBlocking(slot []byte) bool {
	if len(slot) != r.slotSize {
		panic(fmt.Sprintf("ringbuffer: %v: got %d, want %d", ErrSlotSize, len(slot), r.slotSize))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if r.fullSlots == r.numSlots {
		r.overflows.Add(1)
		return false
	}

	r.put(slot)
	return true
}

// ReadNonBlocking copies the oldest slot into slot if one is available.
// On an empty ring it zero-fills slot, counts an underrun and returns false.
func (r *RingBuffer) ReadNonBlocking(slot []byte) bool {
	if len(slot) != r.slotSize {
		panic(fmt.Sprintf("ringbuffer: %v: got %d, want %d", ErrSlotSize, len(slot), r.slotSize))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fullSlots == 0 || r.closed {
		clear(slot)
		if !r.closed {
			r.underruns.Add(1)
		}
		return false
	}

	r.take(slot)
	return true
}

// LastReadSlot copies the most recently read slot into slot.
// It returns false if nothing has been read yet.
func (r *RingBuffer) LastReadSlot(slot []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasLast {
		return false
	}
	copy(slot, r.lastSlot)
	return true
}

// put and take must be called with mu held
func (r *RingBuffer) put(slot []byte) {
	copy(r.buf[r.writePos:r.writePos+r.slotSize], slot)
	r.writePos = (r.writePos + r.slotSize) % len(r.buf)
	r.fullSlots++
	r.notEmpty.Signal()
}

func (r *RingBuffer) take(slot []byte) {
	src := r.buf[r.readPos : r.readPos+r.slotSize]
	copy(slot, src)
	copy(r.lastSlot, src)
	r.hasLast = true
	r.readPos = (r.readPos + r.slotSize) % len(r.buf)
	r.fullSlots--
	r.notFull.Signal()
}

// FullSlots returns the number of slots waiting to be read
func (r *RingBuffer) FullSlots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullSlots
}

// Overflows returns how many non-blocking writes were dropped
func (r *RingBuffer) Overflows() uint64 { return r.overflows.Load() }

// Underruns returns how many non-blocking reads found the ring empty
func (r *RingBuffer) Underruns() uint64 { return r.underruns.Load() }

// Stats returns a snapshot of the ring's state and counters
func (r *RingBuffer) Stats() Stats {
	return Stats{
		SlotSize:  r.slotSize,
		NumSlots:  r.numSlots,
		FullSlots: r.FullSlots(),
		Overflows: r.Overflows(),
		Underruns: r.Underruns(),
	}
}

// Close wakes every waiter. Blocking calls return ErrClosed afterwards and
// non-blocking calls behave as if the ring were permanently empty.
func (r *RingBuffer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.notFull.Broadcast()
	r.notEmpty.Broadcast()
}

// Closed reports whether Close has been called
func (r *RingBuffer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Release closes the ring and drops its storage
func (r *RingBuffer) Release() {
	r.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	r.lastSlot = nil
	r.hasLast = false
	r.fullSlots = 0
}
