// ABOUTME: Fixed-size pool of session slots, each driven by a small state machine
// ABOUTME: Entries cycle Idle -> Spawning -> Active -> Released -> Idle and are reused
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/session"
	"github.com/soundwire/netjam/pkg/protocol"
)

// ErrPoolExhausted means every entry is busy
var ErrPoolExhausted = errors.New("session pool exhausted")

// Entry states
const (
	StateIdle     = "idle"
	StateSpawning = "spawning"
	StateActive   = "active"
	StateReleased = "released"
)

// Entry events
const (
	eventSpawn    = "spawn"
	eventActivate = "activate"
	eventRelease  = "release"
	eventReclaim  = "reclaim"
)

// entry is one reusable pool slot. Fields other than id and fsm are
// guarded by the pool lock.
type entry struct {
	id  int
	fsm *fsm.FSM

	peer      *net.UDPAddr
	port      int
	handshake protocol.Handshake
	session   *session.Session
	since     time.Time
}

func newEntry(id int, log *logrus.Entry) *entry {
	e := &entry{id: id}
	e.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventSpawn, Src: []string{StateIdle}, Dst: StateSpawning},
			{Name: eventActivate, Src: []string{StateSpawning}, Dst: StateActive},
			{Name: eventRelease, Src: []string{StateSpawning, StateActive}, Dst: StateReleased},
			{Name: eventReclaim, Src: []string{StateReleased}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				log.WithFields(logrus.Fields{
					"entry": id,
					"from":  ev.Src,
					"to":    ev.Dst,
				}).Debug("Pool entry transition")
			},
		},
	)
	return e
}

func (e *entry) state() string {
	return e.fsm.Current()
}

// Pool bounds the number of concurrent sessions. One lock covers the
// assignment table and the spawning count; nothing blocks while it is held.
type Pool struct {
	mu       sync.Mutex
	entries  []*entry
	spawning int
	log      *logrus.Entry
}

// NewPool creates capacity idle entries
func NewPool(capacity int, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Pool{
		entries: make([]*entry, capacity),
		log:     log,
	}
	for i := range p.entries {
		p.entries[i] = newEntry(i, log)
	}
	return p
}

// Capacity is the number of entries
func (p *Pool) Capacity() int {
	return len(p.entries)
}

// acquire moves the lowest idle entry to Spawning for peer
func (p *Pool) acquire(peer *net.UDPAddr, hs protocol.Handshake) (*entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.state() != StateIdle {
			continue
		}
		if err := e.fsm.Event(context.Background(), eventSpawn); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.id, err)
		}
		e.peer = peer
		e.handshake = hs
		e.since = time.Now()
		p.spawning++
		return e, nil
	}
	return nil, ErrPoolExhausted
}

// setPort records the session port bound for a spawning entry
func (p *Pool) setPort(e *entry, port int) {
	p.mu.Lock()
	e.port = port
	p.mu.Unlock()
}

// activate marks a spawning entry as streaming
func (p *Pool) activate(e *entry, sess *session.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := e.fsm.Event(context.Background(), eventActivate); err != nil {
		return fmt.Errorf("entry %d: %w", e.id, err)
	}
	e.session = sess
	e.since = time.Now()
	p.spawning--
	return nil
}

// release returns an entry to Idle via Released, reclaiming its id
func (p *Pool) release(e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasSpawning := e.state() == StateSpawning
	if err := e.fsm.Event(context.Background(), eventRelease); err != nil {
		p.log.WithError(err).WithField("entry", e.id).Warn("Release of entry that was not in use")
		return
	}
	if wasSpawning {
		p.spawning--
	}
	e.peer = nil
	e.port = 0
	e.handshake = protocol.Handshake{}
	e.session = nil
	e.since = time.Time{}

	if err := e.fsm.Event(context.Background(), eventReclaim); err != nil {
		p.log.WithError(err).WithField("entry", e.id).Error("Failed to reclaim entry")
	}
}

// byPeer finds the busy entry serving peer
func (p *Pool) byPeer(peer *net.UDPAddr) (id int, state string, port int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.peer != nil && e.peer.IP.Equal(peer.IP) && e.peer.Port == peer.Port {
			return e.id, e.state(), e.port, true
		}
	}
	return 0, "", 0, false
}

// session returns the active session of entry id
func (p *Pool) session(id int) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id < 0 || id >= len(p.entries) {
		return nil, fmt.Errorf("no session %d (capacity %d)", id, len(p.entries))
	}
	e := p.entries[id]
	if e.state() != StateActive || e.session == nil {
		return nil, fmt.Errorf("session %d is %s", id, e.state())
	}
	return e.session, nil
}

// IsSpawning reports whether any entry is building its session
func (p *Pool) IsSpawning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawning > 0
}

// Active counts streaming entries
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		if e.state() == StateActive {
			n++
		}
	}
	return n
}

// States returns each entry's state, indexed by id
func (p *Pool) States() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make([]string, len(p.entries))
	for i, e := range p.entries {
		states[i] = e.state()
	}
	return states
}

// EntryStatus describes one pool entry
type EntryStatus struct {
	ID        int
	State     string
	Peer      string
	Port      int
	Handshake protocol.Handshake
	Since     time.Time
	Stats     *session.Stats
}

// snapshot copies every entry; session stats are read after the lock is dropped
func (p *Pool) snapshot() []EntryStatus {
	p.mu.Lock()
	out := make([]EntryStatus, len(p.entries))
	sessions := make([]*session.Session, len(p.entries))
	for i, e := range p.entries {
		out[i] = EntryStatus{
			ID:        e.id,
			State:     e.state(),
			Port:      e.port,
			Handshake: e.handshake,
			Since:     e.since,
		}
		if e.peer != nil {
			out[i].Peer = e.peer.String()
		}
		sessions[i] = e.session
	}
	p.mu.Unlock()

	for i, sess := range sessions {
		if sess != nil {
			st := sess.Stats()
			out[i].Stats = &st
		}
	}
	return out
}
