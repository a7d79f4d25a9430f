// ABOUTME: Per-session UDP loops moving datagrams between the wire and the rings
// ABOUTME: Handles peer discovery, connect-back and the peer silence timeout
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/pkg/ringbuffer"
)

// ErrPeerTimeout ends a session whose peer stopped sending
var ErrPeerTimeout = errors.New("peer silence timeout")

const (
	// DefaultPollInterval bounds how long a receive blocks before
	// re-checking cancellation and the silence window
	DefaultPollInterval = 100 * time.Millisecond

	peerWaitInterval = 10 * time.Millisecond
)

// Config describes one session's network side
type Config struct {
	Conn *net.UDPConn
	// Peer is known up front for connecting clients; nil means the peer is
	// learned from the first full slot that arrives.
	Peer     *net.UDPAddr
	Inbound  *ringbuffer.RingBuffer
	Outbound *ringbuffer.RingBuffer

	// ExpectHost restricts peer discovery to the host that handshaked;
	// nil accepts any host
	ExpectHost net.IP

	PeerTimeout   time.Duration
	PollInterval  time.Duration
	StatsInterval time.Duration

	Metrics *metrics.Metrics
	Logger  *logrus.Entry
}

// Transport runs the receive and send loops of one session
type Transport struct {
	conn     *net.UDPConn
	inbound  *ringbuffer.RingBuffer
	outbound *ringbuffer.RingBuffer
	slotSize int

	peerTimeout   time.Duration
	pollInterval  time.Duration
	statsInterval time.Duration

	metrics *metrics.Metrics
	log     *logrus.Entry

	expectHost net.IP
	peer       atomic.Pointer[net.UDPAddr]
	lastSeen atomic.Int64 // unix nanos of the last accepted datagram

	rxPackets atomic.Uint64
	txPackets atomic.Uint64
	rxInvalid atomic.Uint64
	rxForeign atomic.Uint64

	statsMu  sync.Mutex
	reported counterSnapshot

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Stats is a snapshot of transport counters
type Stats struct {
	RxPackets uint64
	TxPackets uint64
	RxInvalid uint64 // datagrams whose size is not one slot
	RxForeign uint64 // datagrams from an address other than the peer
	Peer      string
}

// New creates a transport; the loops start with Run
func New(cfg Config) (*Transport, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("transport needs a socket")
	}
	if cfg.Inbound == nil || cfg.Outbound == nil {
		return nil, fmt.Errorf("transport needs both rings")
	}
	if cfg.Inbound.SlotSize() != cfg.Outbound.SlotSize() {
		return nil, fmt.Errorf("%w: inbound %d, outbound %d", ringbuffer.ErrSlotSize, cfg.Inbound.SlotSize(), cfg.Outbound.SlotSize())
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	t := &Transport{
		conn:          cfg.Conn,
		inbound:       cfg.Inbound,
		outbound:      cfg.Outbound,
		slotSize:      cfg.Inbound.SlotSize(),
		peerTimeout:   cfg.PeerTimeout,
		pollInterval:  cfg.PollInterval,
		statsInterval: cfg.StatsInterval,
		expectHost:    cfg.ExpectHost,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		stopChan:      make(chan struct{}),
	}
	if cfg.Peer != nil {
		t.peer.Store(cfg.Peer)
	}
	return t, nil
}

// Run starts both loops and blocks until the session ends. It returns
// ErrPeerTimeout, the socket error that ended a loop, or nil after Stop or
// context cancellation. Both loops have exited when Run returns.
func (t *Transport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.lastSeen.Store(time.Now().UnixNano())

	errc := make(chan error, 2)
	t.wg.Add(3)
	go func() {
		defer t.wg.Done()
		errc <- t.receiveLoop(ctx)
	}()
	go func() {
		defer t.wg.Done()
		errc <- t.sendLoop()
	}()
	go func() {
		defer t.wg.Done()
		t.statsLoop(ctx)
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
	case <-t.stopChan:
	}

	cancel()
	t.Stop()
	t.wg.Wait()
	t.flushStats()

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if errors.Is(err, ErrPeerTimeout) {
		t.metrics.PeerTimeout()
	}
	return err
}

// Stop ends both loops: the receive loop on its next poll, the send loop by
// closing the outbound ring it blocks on.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.outbound.Close()
	})
}

func (t *Transport) receiveLoop(ctx context.Context) error {
	buf := make([]byte, t.slotSize+1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// datagrams that are not the peer's slots must not hold the window open
		if time.Since(time.Unix(0, t.lastSeen.Load())) > t.peerTimeout {
			return ErrPeerTimeout
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.pollInterval))
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		if n != t.slotSize {
			if t.fromPeerHost(addr) {
				t.rxInvalid.Add(1)
			} else {
				t.rxForeign.Add(1)
			}
			continue
		}
		if !t.acceptFrom(addr) {
			t.rxForeign.Add(1)
			continue
		}

		t.lastSeen.Store(time.Now().UnixNano())
		t.rxPackets.Add(1)
		t.inbound.WriteNonBlocking(buf[:n])
	}
}

// fromPeerHost reports whether addr is on the peer's host, or on the
// expected host while the peer is still unknown
func (t *Transport) fromPeerHost(addr *net.UDPAddr) bool {
	if peer := t.peer.Load(); peer != nil {
		return peer.IP.Equal(addr.IP)
	}
	return t.expectHost == nil || t.expectHost.Equal(addr.IP)
}

// acceptFrom learns the peer from the first full slot off the expected
// host and follows port changes from the same host afterwards
func (t *Transport) acceptFrom(addr *net.UDPAddr) bool {
	if !t.fromPeerHost(addr) {
		return false
	}
	peer := t.peer.Load()
	if peer == nil {
		if t.peer.CompareAndSwap(nil, addr) {
			t.log.WithField("peer", addr.String()).Info("Peer discovered")
			return true
		}
		peer = t.peer.Load()
		if !peer.IP.Equal(addr.IP) {
			return false
		}
	}
	if peer.Port != addr.Port {
		t.log.WithFields(logrus.Fields{"old": peer.String(), "new": addr.String()}).Info("Peer port changed")
		t.peer.Store(addr)
	}
	return true
}

func (t *Transport) sendLoop() error {
	slot := make([]byte, t.slotSize)

	for {
		if err := t.outbound.ReadBlocking(slot); err != nil {
			if errors.Is(err, ringbuffer.ErrClosed) {
				return nil
			}
			return err
		}

		peer := t.peer.Load()
		if peer == nil {
			continue
		}
		if _, err := t.conn.WriteToUDP(slot, peer); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("send failed: %w", err)
		}
		t.txPackets.Add(1)
	}
}

// HasPeer reports whether the peer address is known
func (t *Transport) HasPeer() bool {
	return t.peer.Load() != nil
}

// Peer returns the peer address, or nil before discovery
func (t *Transport) Peer() *net.UDPAddr {
	return t.peer.Load()
}

// WaitForPeer polls until a peer has been observed, the timeout passes, or ctx is done
func (t *Transport) WaitForPeer(ctx context.Context, timeout time.Duration) (*net.UDPAddr, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(peerWaitInterval)
	defer ticker.Stop()

	for {
		if peer := t.peer.Load(); peer != nil {
			return peer, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrPeerTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.stopChan:
			return nil, fmt.Errorf("transport stopped while waiting for peer")
		case <-ticker.C:
		}
	}
}

// ConnectBack sends one silent slot from the session socket to the
// observed peer, opening the return path through the peer's NAT
func (t *Transport) ConnectBack() error {
	peer := t.peer.Load()
	if peer == nil {
		return fmt.Errorf("connect-back before peer discovery")
	}
	if _, err := t.conn.WriteToUDP(make([]byte, t.slotSize), peer); err != nil {
		return fmt.Errorf("connect-back to %s failed: %w", peer, err)
	}
	t.txPackets.Add(1)
	return nil
}

// Stats returns the transport counters
func (t *Transport) Stats() Stats {
	s := Stats{
		RxPackets: t.rxPackets.Load(),
		TxPackets: t.txPackets.Load(),
		RxInvalid: t.rxInvalid.Load(),
		RxForeign: t.rxForeign.Load(),
	}
	if peer := t.peer.Load(); peer != nil {
		s.Peer = peer.String()
	}
	return s
}

// LocalAddr returns the session socket's address
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}
