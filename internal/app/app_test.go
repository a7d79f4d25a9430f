// ABOUTME: Tests for transmit and receive orchestration
// ABOUTME: Runs real sessions over loopback UDP against an in-process server
package app

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundwire/netjam/internal/client"
	"github.com/soundwire/netjam/internal/config"
	"github.com/soundwire/netjam/internal/server"
	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/protocol"
)

func testConfig(mode config.Mode) *config.Config {
	cfg := config.Default()
	cfg.Mode = mode
	cfg.Name = "test"
	cfg.FramesPerBlock = 64
	cfg.UseTUI = false
	cfg.ControlAddr = ""
	cfg.PeerTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.StatsInterval = time.Second
	return cfg
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

// freeOffset finds a port offset whose listen and first session port are free
func freeOffset(t *testing.T) int {
	t.Helper()
	for i := 0; i < 20; i++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		port := conn.LocalAddr().(*net.UDPAddr).Port
		conn.Close()

		if port <= config.BasePort || port+2 > 65535 {
			continue
		}
		next, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
		if err != nil {
			continue
		}
		next.Close()
		return port - config.BasePort
	}
	t.Skip("no free port pair found")
	return 0
}

func TestNewRejectsServerMode(t *testing.T) {
	_, err := New(testConfig(config.ModeServer), nil, nil)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestProcessors(t *testing.T) {
	format := audio.Format{SampleRate: 48000, FramesPerBlock: 64, Channels: 2, BitResolution: audio.Bit16}

	tests := []struct {
		name    string
		lowPass float64
		want    []string
	}{
		{"lowpass disabled", 1, []string{"gain", "meter"}},
		{"lowpass enabled", 0.5, []string{"gain", "lowpass(0.50)", "meter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.ModeTransmit)
			cfg.LowPass = tt.lowPass
			a, err := New(cfg, nil, testLogger())
			require.NoError(t, err)

			procs, err := a.processors(format)
			require.NoError(t, err)

			var names []string
			for _, p := range procs {
				names = append(names, p.Name())
			}
			assert.Equal(t, tt.want, names)
			assert.NotNil(t, a.meter.Load())
		})
	}
}

func TestServerConfig(t *testing.T) {
	cfg := testConfig(config.ModeServer)
	cfg.PortOffset = 10
	cfg.QueueLength = 3
	cfg.Redundancy = 2
	cfg.ControlAddr = ":9000"

	sc := ServerConfig(cfg, nil, testLogger())
	assert.Equal(t, 4474, sc.ListenPort)
	assert.Equal(t, 6, sc.InboundSlots)
	assert.Equal(t, cfg.MaxSessions, sc.MaxSessions)
	assert.Equal(t, ":9000", sc.ControlAddr)
	assert.Nil(t, sc.NewBackend)
}

func TestTransmitMirrorRoundTrip(t *testing.T) {
	srv, err := server.New(server.Config{
		Name:          "hub",
		Host:          "127.0.0.1",
		MaxSessions:   2,
		PeerTimeout:   2 * time.Second,
		StatsInterval: time.Second,
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	srvCtx, srvCancel := context.WithCancel(context.Background())
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve(srvCtx) }()
	defer func() {
		srvCancel()
		<-srvDone
	}()

	cfg := testConfig(config.ModeTransmit)
	cfg.RemoteHost = "127.0.0.1"
	cfg.PortOffset = srv.Addr().Port - config.BasePort
	cfg.InputFile = "tone"
	cfg.ServerConnectionMode = "mirror"

	a, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var peak float32
	require.Eventually(t, func() bool {
		st := a.Stats()
		if st == nil || st.Transport.RxPackets == 0 {
			return false
		}
		for _, p := range a.meter.Load().Peaks() {
			if p > peak {
				peak = p
			}
		}
		return peak > 0.05
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, srv.Status().Active)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Nil(t, a.Stats())
}

func TestTransmitRejected(t *testing.T) {
	srv, err := server.New(server.Config{
		Name:        "hub",
		Host:        "127.0.0.1",
		MaxSessions: 1,
		PeerTimeout: 5 * time.Second,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	srvCtx, srvCancel := context.WithCancel(context.Background())
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve(srvCtx) }()
	defer func() {
		srvCancel()
		<-srvDone
	}()

	// occupy the only slot
	busy, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(config.ModeTransmit)
	cfg.RemoteHost = "127.0.0.1"
	cfg.PortOffset = srv.Addr().Port - config.BasePort

	_, _, err = client.Handshake(context.Background(), busy, client.HandshakeConfig{
		Server:  srv.Addr(),
		Format:  cfg.Format(),
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)

	a, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.ErrorIs(t, err, client.ErrRejected)
}

func TestReceiveAcceptsOneTransmitter(t *testing.T) {
	cfg := testConfig(config.ModeReceive)
	cfg.PortOffset = freeOffset(t)

	a, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	serverAddr, err := client.ResolveServer("127.0.0.1", cfg.ListenPort())
	require.NoError(t, err)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	reply, sessionAddr, err := client.Handshake(ctx, conn, client.HandshakeConfig{
		Server:  serverAddr,
		Format:  cfg.Format(),
		Mode:    protocol.ModeNormal,
		Timeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(cfg.SessionPort(0)), reply.SessionPort)

	slot := make([]byte, cfg.Format().SlotSize())
	_, err = conn.WriteToUDP(slot, sessionAddr)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := a.Stats()
		return st != nil && st.Transport.RxPackets > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}
}
