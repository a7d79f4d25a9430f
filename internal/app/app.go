// ABOUTME: Client orchestration for the transmit and receive modes
// ABOUTME: Wires config, handshake, backend, processors, session and the client TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/backend"
	"github.com/soundwire/netjam/internal/client"
	"github.com/soundwire/netjam/internal/config"
	"github.com/soundwire/netjam/internal/discovery"
	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/internal/server"
	"github.com/soundwire/netjam/internal/session"
	"github.com/soundwire/netjam/internal/transport"
	"github.com/soundwire/netjam/internal/ui"
	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/process"
	"github.com/soundwire/netjam/pkg/audio/source"
	"github.com/soundwire/netjam/pkg/protocol"
)

const statusInterval = 500 * time.Millisecond

// App runs one transmit or receive endpoint
type App struct {
	config  *config.Config
	metrics *metrics.Metrics
	log     *logrus.Entry

	gain  *process.Gain
	meter atomic.Pointer[process.Meter]

	// exactly one of these is set while streaming
	session atomic.Pointer[session.Session]
	server  atomic.Pointer[server.Server]
	remote  atomic.Pointer[string]

	tuiProg *tea.Program
	volCtrl *ui.VolumeControl
}

// New creates an app for cfg.Mode, which must be transmit or receive
func New(cfg *config.Config, m *metrics.Metrics, log *logrus.Entry) (*App, error) {
	if cfg.Mode != config.ModeTransmit && cfg.Mode != config.ModeReceive {
		return nil, fmt.Errorf("%w: app runs transmit or receive, not %s", config.ErrInvalid, cfg.Mode)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if m == nil {
		m = metrics.New()
	}

	return &App{
		config:  cfg,
		metrics: m,
		log:     log.WithField("mode", string(cfg.Mode)),
		gain:    process.NewGain(cfg.Gain),
	}, nil
}

// Run streams until ctx is cancelled, the user quits, or the session ends
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.UseTUI {
		a.volCtrl = ui.NewVolumeControl()
		a.tuiProg = ui.Run(a.volCtrl, a.gain.Volume())
		go func() {
			if _, err := a.tuiProg.Run(); err != nil {
				a.log.WithError(err).Error("TUI error")
			}
			cancel()
		}()
		defer a.tuiProg.Quit()

		go a.handleControls(ctx, cancel)
		go a.statusLoop(ctx)
		a.publish(ui.StatusMsg{Mode: string(a.config.Mode), Backend: a.config.Backend})
	}

	var err error
	switch a.config.Mode {
	case config.ModeTransmit:
		err = a.transmit(ctx)
	case config.ModeReceive:
		err = a.receive(ctx)
	}

	if errors.Is(err, transport.ErrPeerTimeout) {
		a.log.Warn("Server went silent, session ended")
		return nil
	}
	return err
}

// transmit handshakes with a server and streams on the session it assigns
func (a *App) transmit(ctx context.Context) error {
	format := a.config.Format()

	serverAddr, err := a.resolveServer(ctx)
	if err != nil {
		return err
	}
	a.setRemote(serverAddr.String())
	a.publish(ui.StatusMsg{State: "handshaking with " + serverAddr.String()})

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("failed to open client socket: %w", err)
	}
	if err := transport.Tune(conn, transport.BufferBytes(format.SlotSize(), a.config.InboundSlots())); err != nil {
		a.log.WithError(err).Debug("Socket tuning incomplete")
	}

	reply, sessionAddr, err := client.Handshake(ctx, conn, client.HandshakeConfig{
		Server:  serverAddr,
		Format:  format,
		Mode:    a.config.ConnectionMode(),
		Timeout: a.config.HandshakeTimeout,
		Logger:  a.log,
	})
	if err != nil {
		conn.Close()
		return err
	}

	a.log.WithFields(logrus.Fields{
		"session": reply.SessionID,
		"port":    reply.SessionPort,
	}).Info("Handshake accepted")

	be, procs, err := a.newBackend(format, a.config.ConnectionMode(), a.log)
	if err != nil {
		conn.Close()
		return err
	}

	sess, err := session.New(session.Config{
		ID:               int(reply.SessionID),
		Format:           format,
		Mode:             a.config.ConnectionMode(),
		Conn:             conn,
		Peer:             sessionAddr,
		InboundSlots:     a.config.InboundSlots(),
		OutboundSlots:    a.config.OutboundSlots(),
		PeerTimeout:      a.config.PeerTimeout,
		StatsInterval:    a.config.StatsInterval,
		Backend:          be,
		Processors:       procs,
		RepeatOnUnderrun: a.config.RepeatOnUnderrun,
		Metrics:          a.metrics,
		Logger:           a.log,
	})
	if err != nil {
		_ = be.Stop()
		return err
	}

	a.setRemote(sessionAddr.String())
	a.session.Store(sess)
	defer a.session.Store(nil)

	a.publishConnected(true, int(reply.SessionID))
	defer a.publishConnected(false, int(reply.SessionID))

	return sess.Run(ctx)
}

// receive listens for one transmitter at a time and plays what it sends
func (a *App) receive(ctx context.Context) error {
	cfg := ServerConfig(a.config, a.metrics, a.log)
	cfg.MaxSessions = 1
	cfg.UseTUI = false
	cfg.NewBackend = func(_ int, hs protocol.Handshake, log *logrus.Entry) (backend.Backend, []process.Processor, error) {
		return a.newBackend(hs.Format(), hs.ConnectionMode, log)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	a.server.Store(srv)
	defer a.server.Store(nil)

	a.publish(ui.StatusMsg{State: fmt.Sprintf("waiting for a transmitter on port %d", cfg.ListenPort)})
	return srv.Start(ctx)
}

// resolveServer uses the configured host, or browses mDNS when there is none
func (a *App) resolveServer(ctx context.Context) (*net.UDPAddr, error) {
	if a.config.RemoteHost != "" {
		return client.ResolveServer(a.config.RemoteHost, a.config.ListenPort())
	}

	a.publish(ui.StatusMsg{State: "discovering servers"})
	info, err := discovery.Discover(ctx, a.config.HandshakeTimeout, a.log)
	if err != nil {
		return nil, fmt.Errorf("no server found: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"name": info.Name,
		"addr": info.Addr(),
	}).Info("Discovered server")
	return client.ResolveServer(info.Host, info.Port)
}

// newBackend builds the configured backend and this endpoint's processors for format
func (a *App) newBackend(format audio.Format, mode protocol.ConnectionMode, log *logrus.Entry) (backend.Backend, []process.Processor, error) {
	mirror := mode == protocol.ModeMirror && a.config.Mode == config.ModeReceive

	var src source.Source
	if a.config.Backend == config.BackendClock && !mirror {
		var err error
		src, err = source.Open(a.config.InputFile, format.SampleRate, format.Channels)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open input: %w", err)
		}
	}

	closeSource := func() {
		if src != nil {
			_ = src.Close()
		}
	}

	be, err := backend.New(a.config.Backend, backend.Options{
		Format: format,
		Source: src,
		Mirror: mirror,
		Logger: log,
	})
	if err != nil {
		closeSource()
		return nil, nil, err
	}

	procs, err := a.processors(format)
	if err != nil {
		closeSource()
		return nil, nil, err
	}

	a.publish(ui.StatusMsg{Format: format.String(), Backend: be.Name()})
	return be, procs, nil
}

// processors returns gain, the optional low-pass and a fresh meter
func (a *App) processors(format audio.Format) ([]process.Processor, error) {
	procs := []process.Processor{a.gain}

	if a.config.LowPass < 1 {
		lp, err := process.NewLowPass(a.config.LowPass, format.Channels)
		if err != nil {
			return nil, err
		}
		procs = append(procs, lp)
	}

	meter := process.NewMeter(format.Channels)
	a.meter.Store(meter)
	return append(procs, meter), nil
}

// Stats returns the current session's stats, or nil when nothing is streaming
func (a *App) Stats() *session.Stats {
	if sess := a.session.Load(); sess != nil {
		st := sess.Stats()
		return &st
	}
	if srv := a.server.Load(); srv != nil {
		for _, e := range srv.Status().Entries {
			if e.Stats != nil {
				a.setRemote(e.Peer)
				return e.Stats
			}
		}
	}
	return nil
}

// Gain returns the output gain the TUI controls
func (a *App) Gain() *process.Gain {
	return a.gain
}

func (a *App) setRemote(addr string) {
	a.remote.Store(&addr)
}

func (a *App) remoteAddr() string {
	if addr := a.remote.Load(); addr != nil {
		return *addr
	}
	return ""
}
