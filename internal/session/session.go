// ABOUTME: One isolated stream: rings, bridge, transport and backend wired together
// ABOUTME: Run streams until timeout, stop or error, then tears down in a fixed order
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/backend"
	"github.com/soundwire/netjam/internal/bridge"
	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/internal/transport"
	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/process"
	"github.com/soundwire/netjam/pkg/protocol"
	"github.com/soundwire/netjam/pkg/ringbuffer"
)

// Config describes one session
type Config struct {
	ID     int
	Format audio.Format
	Mode   protocol.ConnectionMode

	// Conn is owned by the session from New onwards and closed on teardown
	Conn *net.UDPConn
	// Peer is nil on the accepting side; the session then waits for the
	// first full slot and connects back
	Peer *net.UDPAddr
	// PeerHost pins discovery to the handshaking host when Peer is nil
	PeerHost net.IP

	InboundSlots  int
	OutboundSlots int

	PeerTimeout   time.Duration
	StatsInterval time.Duration

	Backend          backend.Backend
	Processors       []process.Processor
	RepeatOnUnderrun bool

	Metrics *metrics.Metrics
	Logger  *logrus.Entry
}

// Session owns everything one stream needs
type Session struct {
	id          int
	format      audio.Format
	mode        protocol.ConnectionMode
	conn        *net.UDPConn
	discover    bool
	peerTimeout time.Duration

	inbound   *ringbuffer.RingBuffer
	outbound  *ringbuffer.RingBuffer
	bridge    *bridge.Bridge
	transport *transport.Transport
	backend   backend.Backend
	pipeline  *process.Pipeline

	log *logrus.Entry

	started  time.Time
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// Stats is a snapshot of one session
type Stats struct {
	ID        int
	Format    audio.Format
	Mode      protocol.ConnectionMode
	Backend   string
	Pipeline  string
	Bridge    bridge.Stats
	Transport transport.Stats
	Inbound   ringbuffer.Stats
	Outbound  ringbuffer.Stats
	Uptime    time.Duration
}

// New builds the rings, the bridge and the transport. On error the
// socket is closed.
func New(cfg Config) (s *Session, err error) {
	defer func() {
		if err != nil && cfg.Conn != nil {
			cfg.Conn.Close()
		}
	}()

	if cfg.Conn == nil {
		return nil, fmt.Errorf("session %d needs a socket", cfg.ID)
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session %d needs an audio backend", cfg.ID)
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("session %d: %w", cfg.ID, err)
	}
	if cfg.InboundSlots <= 0 {
		cfg.InboundSlots = 4
	}
	if cfg.OutboundSlots <= 0 {
		cfg.OutboundSlots = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := cfg.Logger.WithField("session", cfg.ID)

	slotSize := cfg.Format.SlotSize()
	inbound, err := ringbuffer.New(slotSize, cfg.InboundSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound ring: %w", err)
	}
	outbound, err := ringbuffer.New(slotSize, cfg.OutboundSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound ring: %w", err)
	}

	pipeline := process.NewPipeline(cfg.Processors...)
	br, err := bridge.New(bridge.Config{
		Format:           cfg.Format,
		Inbound:          inbound,
		Outbound:         outbound,
		Pipeline:         pipeline,
		RepeatOnUnderrun: cfg.RepeatOnUnderrun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}

	tr, err := transport.New(transport.Config{
		Conn:          cfg.Conn,
		Peer:          cfg.Peer,
		ExpectHost:    cfg.PeerHost,
		Inbound:       inbound,
		Outbound:      outbound,
		PeerTimeout:   cfg.PeerTimeout,
		StatsInterval: cfg.StatsInterval,
		Metrics:       cfg.Metrics,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	peerTimeout := cfg.PeerTimeout
	if peerTimeout <= 0 {
		peerTimeout = 10 * time.Second
	}

	return &Session{
		id:          cfg.ID,
		format:      cfg.Format,
		mode:        cfg.Mode,
		conn:        cfg.Conn,
		discover:    cfg.Peer == nil,
		peerTimeout: peerTimeout,
		inbound:     inbound,
		outbound:    outbound,
		bridge:      br,
		transport:   tr,
		backend:     cfg.Backend,
		pipeline:    pipeline,
		log:         log,
		stopChan:    make(chan struct{}),
	}, nil
}

// ID returns the session id
func (s *Session) ID() int { return s.id }

// Format returns the negotiated format
func (s *Session) Format() audio.Format { return s.format }

// Mode returns the connection mode the peer asked for
func (s *Session) Mode() protocol.ConnectionMode { return s.mode }

// HasPeer reports whether the peer address is known
func (s *Session) HasPeer() bool { return s.transport.HasPeer() }

// LocalAddr returns the session socket's address
func (s *Session) LocalAddr() *net.UDPAddr { return s.transport.LocalAddr() }

// Run streams until the peer goes silent, Stop is called, ctx ends, a socket
// fails or the backend dies. Teardown happens before Run returns: network
// loops stop, the bridge is detached, the backend stops, the rings are
// released and the socket is closed. A clean stop returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session %d already running", s.id)
	}
	s.running = true
	s.started = time.Now()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	trDone := make(chan error, 1)
	go func() {
		trDone <- s.transport.Run(runCtx)
	}()

	if err := s.backend.Start(s.bridge.OnAudioBlock); err != nil {
		cancel()
		s.teardown(trDone)
		return fmt.Errorf("failed to start audio backend: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"format":   s.format.String(),
		"mode":     s.mode.String(),
		"backend":  s.backend.Name(),
		"pipeline": s.pipeline.String(),
		"local":    s.LocalAddr().String(),
	}).Info("Session streaming")

	if s.discover {
		go s.connectBack(runCtx)
	}

	var err error
	select {
	case err = <-trDone:
		trDone = nil
	case berr, ok := <-s.backend.Done():
		if ok {
			err = berr
		}
	case <-s.stopChan:
	case <-ctx.Done():
	}

	cancel()
	s.teardown(trDone)

	if err != nil {
		s.log.WithError(err).Info("Session ended")
	} else {
		s.log.Info("Session stopped")
	}
	return err
}

// connectBack opens the return path once the first datagram shows where
// the peer is. A peer that never shows up is caught by the transport's
// silence timeout.
func (s *Session) connectBack(ctx context.Context) {
	peer, err := s.transport.WaitForPeer(ctx, s.peerTimeout)
	if err != nil {
		return
	}
	if err := s.transport.ConnectBack(); err != nil {
		s.log.WithError(err).Warn("Connect-back failed")
		return
	}
	s.log.WithField("peer", peer.String()).Debug("Connected back to peer")
}

// teardown runs the shutdown sequence. trDone is nil when the transport
// has already returned.
func (s *Session) teardown(trDone <-chan error) {
	s.transport.Stop()
	if trDone != nil {
		if err := <-trDone; err != nil && !errors.Is(err, transport.ErrPeerTimeout) {
			s.log.WithError(err).Debug("Transport ended during teardown")
		}
	}

	s.bridge.Detach()

	if err := s.backend.Stop(); err != nil {
		s.log.WithError(err).Warn("Audio backend stop error")
	}

	s.inbound.Release()
	s.outbound.Release()

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.WithError(err).Debug("Socket close error")
	}
}

// Stop asks Run to end; it does not wait
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Stats returns counters for status reporting
func (s *Session) Stats() Stats {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	st := Stats{
		ID:        s.id,
		Format:    s.format,
		Mode:      s.mode,
		Backend:   s.backend.Name(),
		Pipeline:  s.pipeline.String(),
		Bridge:    s.bridge.Stats(),
		Transport: s.transport.Stats(),
		Inbound:   s.inbound.Stats(),
		Outbound:  s.outbound.Stats(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started)
	}
	return st
}
