// ABOUTME: Server hub: the well-known handshake listener and its session pool
// ABOUTME: Answers every handshake explicitly and runs one worker per accepted peer
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/backend"
	"github.com/soundwire/netjam/internal/discovery"
	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/internal/session"
	"github.com/soundwire/netjam/internal/transport"
	"github.com/soundwire/netjam/internal/version"
	"github.com/soundwire/netjam/pkg/audio/process"
	"github.com/soundwire/netjam/pkg/protocol"
)

// ErrListenerBind is fatal: the well-known port could not be bound
var ErrListenerBind = errors.New("failed to bind listening port")

const (
	acceptPollInterval = 100 * time.Millisecond
	maxHandshakePacket = 512
)

// BackendFactory builds the audio side of a new session
type BackendFactory func(id int, hs protocol.Handshake, log *logrus.Entry) (backend.Backend, []process.Processor, error)

// Config holds server configuration
type Config struct {
	Name string
	// Host is the bind address; empty listens on every interface
	Host       string
	ListenPort int
	// SessionPortBase is the port of session 0. Zero means ListenPort+1,
	// or ephemeral ports when ListenPort is also zero.
	SessionPortBase int
	MaxSessions     int

	InboundSlots     int
	OutboundSlots    int
	PeerTimeout      time.Duration
	StatsInterval    time.Duration
	RepeatOnUnderrun bool

	// NewBackend defaults to a clock backend that mirrors in mirror mode
	// and plays silence otherwise
	NewBackend BackendFactory

	// ControlAddr serves /metrics and /status; empty disables it
	ControlAddr    string
	StatusInterval time.Duration
	EnableMDNS     bool
	UseTUI         bool

	Metrics *metrics.Metrics
	Logger  *logrus.Entry
}

// Server represents the netjam hub
type Server struct {
	config   Config
	serverID string
	log      *logrus.Entry
	metrics  *metrics.Metrics

	pool     *Pool
	listener *net.UDPConn

	upgrader   websocket.Upgrader
	httpServer *http.Server

	mdnsManager *discovery.Manager
	tui         *ServerTUI
	startTime   time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Status is a snapshot of the pool
type Status struct {
	ServerID   string
	Name       string
	ListenPort int
	Capacity   int
	Active     int
	Spawning   bool
	Uptime     time.Duration
	Entries    []EntryStatus
}

// DefaultBackendFactory drives every session from a clock
func DefaultBackendFactory(_ int, hs protocol.Handshake, log *logrus.Entry) (backend.Backend, []process.Processor, error) {
	return backend.NewClock(backend.Options{
		Format: hs.Format(),
		Mirror: hs.ConnectionMode == protocol.ModeMirror,
		Logger: log,
	}), nil, nil
}

// New creates a server; nothing is bound until Listen or Start
func New(config Config) (*Server, error) {
	if config.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", config.MaxSessions)
	}
	if config.NewBackend == nil {
		config.NewBackend = DefaultBackendFactory
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Second
	}
	if config.Logger == nil {
		config.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	log := config.Logger.WithField("component", "server")
	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      log,
		metrics:  config.Metrics,
		pool:     NewPool(config.MaxSessions, log),
		upgrader: websocket.Upgrader{
			// the control endpoint is meant for trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}, nil
}

// ServerID is this instance's random id
func (s *Server) ServerID() string {
	return s.serverID
}

// Pool exposes the session pool
func (s *Server) Pool() *Pool {
	return s.pool
}

// Listen binds the well-known handshake port
func (s *Server) Listen() error {
	addr := &net.UDPAddr{Port: s.config.ListenPort}
	if s.config.Host != "" {
		addr.IP = net.ParseIP(s.config.Host)
		if addr.IP == nil {
			return fmt.Errorf("%w: invalid host %q", ErrListenerBind, s.config.Host)
		}
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrListenerBind, s.config.ListenPort, err)
	}
	s.listener = conn
	s.log.WithField("addr", conn.LocalAddr().String()).Info("Listening for handshakes")
	return nil
}

// Addr is the bound handshake address
func (s *Server) Addr() *net.UDPAddr {
	if s.listener == nil {
		return nil
	}
	return s.listener.LocalAddr().(*net.UDPAddr)
}

// Start runs the whole hub and blocks until Stop, the TUI quits, ctx ends
// or a fatal error occurs
func (s *Server) Start(ctx context.Context) error {
	if s.config.UseTUI {
		s.tui = NewServerTUI()
		s.attachTUI(s.tui)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.ListenPort, s.config.MaxSessions); err != nil {
				s.log.WithError(err).Warn("TUI exited with error")
			}
		}()
		time.Sleep(100 * time.Millisecond)
	}

	s.log.WithFields(logrus.Fields{
		"name": s.config.Name,
		"id":   s.serverID,
	}).Info("Server starting")

	if err := s.Listen(); err != nil {
		s.stopTUI()
		return err
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			InstanceName: s.config.Name,
			Port:         s.Addr().Port,
			ServerID:     s.serverID,
			Capacity:     s.config.MaxSessions,
			Version:      version.Version,
			Logger:       s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS advertisement")
		}
	}

	httpErr := make(chan error, 1)
	if s.config.ControlAddr != "" {
		s.httpServer = &http.Server{
			Addr:    s.config.ControlAddr,
			Handler: s.ControlHandler(),
		}
		go func() {
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
		s.log.WithField("addr", s.config.ControlAddr).Info("Control endpoint listening")
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- s.Serve(serveCtx)
	}()

	var tuiQuit <-chan struct{}
	if s.tui != nil {
		tuiQuit = s.tui.QuitChan()
	}

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("Server shutting down...")
	case <-ctx.Done():
		s.log.Info("Server shutting down...")
	case <-tuiQuit:
		s.log.Info("TUI quit requested, shutting down...")
	case err := <-httpErr:
		s.log.WithError(err).Error("Control endpoint failed")
		serverErr = err
	case err := <-serveDone:
		serveDone = nil
		serverErr = err
	}

	cancel()
	s.Stop()
	if serveDone != nil {
		if err := <-serveDone; err != nil && serverErr == nil {
			serverErr = err
		}
	}

	s.stopTUI()
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}
	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("Control endpoint shutdown error")
		}
	}

	s.wg.Wait()
	s.log.Info("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("server failed: %w", serverErr)
	}
	return nil
}

func (s *Server) stopTUI() {
	if s.tui != nil {
		s.tui.Stop()
	}
}

// Serve accepts handshakes on the bound listener until ctx ends or Stop.
// Every session is released before it returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("serve called before listen")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	var workers sync.WaitGroup
	err := s.acceptLoop(ctx, &workers)

	cancel()
	workers.Wait()
	s.listener.Close()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, workers *sync.WaitGroup) error {
	buf := make([]byte, maxHandshakePacket)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = s.listener.SetReadDeadline(time.Now().Add(acceptPollInterval))
		n, addr, err := s.listener.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("handshake receive failed: %w", err)
		}

		s.handleHandshake(ctx, buf[:n], addr, workers)
	}
}

// handleHandshake runs on the acceptor goroutine and never blocks on a session
func (s *Server) handleHandshake(ctx context.Context, data []byte, peer *net.UDPAddr, workers *sync.WaitGroup) {
	log := s.log.WithField("peer", peer.String())

	hs, err := protocol.ParseHandshake(data)
	if err == nil {
		if ferr := hs.Format().Validate(); ferr != nil {
			err = fmt.Errorf("%w: %v", protocol.ErrMalformedHandshake, ferr)
		}
	}
	if err != nil {
		log.WithError(err).Warn("Rejecting malformed handshake")
		s.reply(peer, protocol.HandshakeReply{Status: protocol.StatusRejectedMalformed})
		return
	}

	// a retried handshake whose reply got lost
	if id, state, port, ok := s.pool.byPeer(peer); ok {
		if state == StateActive {
			s.reply(peer, protocol.HandshakeReply{
				Status:      protocol.StatusAccepted,
				SessionPort: uint16(port),
				SessionID:   uint32(id),
			})
		}
		return
	}

	e, err := s.pool.acquire(peer, hs)
	if err != nil {
		log.WithError(err).Warn("Rejecting handshake")
		s.reply(peer, protocol.HandshakeReply{Status: protocol.StatusRejectedPoolFull})
		return
	}

	conn, err := s.bindSession(e.id, hs)
	if err != nil {
		log.WithError(err).WithField("entry", e.id).Warn("Session bind failed")
		s.pool.release(e)
		s.reply(peer, protocol.HandshakeReply{Status: protocol.StatusRejectedBind})
		return
	}
	s.pool.setPort(e, conn.LocalAddr().(*net.UDPAddr).Port)

	log.WithFields(logrus.Fields{
		"entry":  e.id,
		"format": hs.Format().String(),
		"mode":   hs.ConnectionMode.String(),
	}).Debug("Spawning session")

	workers.Add(1)
	go func() {
		defer workers.Done()
		s.runWorker(ctx, e, hs, peer, conn)
	}()
}

func (s *Server) sessionPort(id int) int {
	switch {
	case s.config.SessionPortBase > 0:
		return s.config.SessionPortBase + id
	case s.config.ListenPort > 0:
		return s.config.ListenPort + 1 + id
	}
	return 0
}

func (s *Server) bindSession(id int, hs protocol.Handshake) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: s.sessionPort(id)}
	if s.config.Host != "" {
		addr.IP = net.ParseIP(s.config.Host)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind session port %d: %w", addr.Port, err)
	}

	slots := s.config.InboundSlots
	if slots <= 0 {
		slots = 4
	}
	if err := transport.Tune(conn, transport.BufferBytes(hs.Format().SlotSize(), slots)); err != nil {
		s.log.WithError(err).Debug("Socket tuning incomplete")
	}
	return conn, nil
}

// runWorker builds the session, answers the peer and streams until release
func (s *Server) runWorker(ctx context.Context, e *entry, hs protocol.Handshake, peer *net.UDPAddr, conn *net.UDPConn) {
	log := s.log.WithFields(logrus.Fields{"session": e.id, "peer": peer.String()})

	reject := func(err error) {
		log.WithError(err).Warn("Session setup failed")
		s.pool.release(e)
		s.reply(peer, protocol.HandshakeReply{Status: protocol.StatusRejectedBind})
	}

	be, procs, err := s.config.NewBackend(e.id, hs, log)
	if err != nil {
		conn.Close()
		reject(fmt.Errorf("audio backend: %w", err))
		return
	}

	sess, err := session.New(session.Config{
		ID:               e.id,
		Format:           hs.Format(),
		Mode:             hs.ConnectionMode,
		Conn:             conn,
		PeerHost:         peer.IP,
		InboundSlots:     s.config.InboundSlots,
		OutboundSlots:    s.config.OutboundSlots,
		PeerTimeout:      s.config.PeerTimeout,
		StatsInterval:    s.config.StatsInterval,
		Backend:          be,
		Processors:       procs,
		RepeatOnUnderrun: s.config.RepeatOnUnderrun,
		Metrics:          s.metrics,
		Logger:           s.log,
	})
	if err != nil {
		reject(err)
		return
	}

	if err := s.pool.activate(e, sess); err != nil {
		reject(err)
		return
	}
	s.metrics.SessionStarted()

	port := sess.LocalAddr().Port
	s.reply(peer, protocol.HandshakeReply{
		Status:      protocol.StatusAccepted,
		SessionPort: uint16(port),
		SessionID:   uint32(e.id),
	})
	log.WithFields(logrus.Fields{
		"port":   port,
		"format": hs.Format().String(),
		"mode":   hs.ConnectionMode.String(),
	}).Info("Session spawned")
	s.updateTUI()

	err = sess.Run(ctx)

	reason := "stopped"
	switch {
	case errors.Is(err, transport.ErrPeerTimeout):
		reason = "timeout"
	case err != nil:
		reason = "error"
	}
	s.metrics.SessionReleased(reason)
	s.pool.release(e)

	log.WithField("reason", reason).Info("Session released")
	s.updateTUI()
}

func (s *Server) reply(peer *net.UDPAddr, r protocol.HandshakeReply) {
	s.metrics.Handshake(r.Status.String())
	if _, err := s.listener.WriteToUDP(r.Marshal(), peer); err != nil {
		s.log.WithError(err).WithField("peer", peer.String()).Warn("Failed to send handshake reply")
	}
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// StopSession delivers an explicit stop to an active session
func (s *Server) StopSession(id int) error {
	sess, err := s.pool.session(id)
	if err != nil {
		return err
	}
	s.log.WithField("session", id).Info("Stopping session on request")
	sess.Stop()
	return nil
}

// IsSpawning reports whether a session is being built
func (s *Server) IsSpawning() bool {
	return s.pool.IsSpawning()
}

// Status snapshots the pool
func (s *Server) Status() Status {
	entries := s.pool.snapshot()
	active := 0
	for _, e := range entries {
		if e.State == StateActive {
			active++
		}
	}

	listenPort := s.config.ListenPort
	if addr := s.Addr(); addr != nil {
		listenPort = addr.Port
	}

	return Status{
		ServerID:   s.serverID,
		Name:       s.config.Name,
		ListenPort: listenPort,
		Capacity:   s.pool.Capacity(),
		Active:     active,
		Spawning:   s.pool.IsSpawning(),
		Uptime:     time.Since(s.startTime),
		Entries:    entries,
	}
}

func (e EntryStatus) label() string {
	if e.Peer == "" {
		return "entry " + strconv.Itoa(e.ID)
	}
	return e.Peer
}
