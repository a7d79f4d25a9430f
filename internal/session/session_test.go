// ABOUTME: Tests for session assembly and teardown
// ABOUTME: Runs client and server sessions over loopback UDP
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundwire/netjam/internal/backend"
	"github.com/soundwire/netjam/internal/transport"
	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/audio/process"
	"github.com/soundwire/netjam/pkg/audio/source"
	"github.com/soundwire/netjam/pkg/protocol"
)

var testFormat = audio.Format{
	SampleRate:     48000,
	FramesPerBlock: 96,
	Channels:       2,
	BitResolution:  audio.Bit16,
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn
}

func runAsync(s *Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func TestMirrorRoundTrip(t *testing.T) {
	srvConn := listen(t)
	cliConn := listen(t)

	server, err := New(Config{
		ID:            0,
		Format:        testFormat,
		Mode:          protocol.ModeMirror,
		Conn:          srvConn,
		PeerTimeout:   300 * time.Millisecond,
		StatsInterval: time.Second,
		Backend:       backend.NewClock(backend.Options{Format: testFormat, Mirror: true}),
	})
	require.NoError(t, err)

	meter := process.NewMeter(testFormat.Channels)
	client, err := New(Config{
		ID:            1,
		Format:        testFormat,
		Conn:          cliConn,
		Peer:          srvConn.LocalAddr().(*net.UDPAddr),
		InboundSlots:  8,
		PeerTimeout:   2 * time.Second,
		StatsInterval: time.Second,
		Backend: backend.NewClock(backend.Options{
			Format: testFormat,
			Source: source.NewTone(440, testFormat.SampleRate, 1),
		}),
		Processors: []process.Processor{meter},
	})
	require.NoError(t, err)

	srvDone := runAsync(server)
	cliDone := runAsync(client)

	require.Eventually(t, server.HasPeer, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return client.Stats().Transport.RxPackets > 20
	}, 3*time.Second, 10*time.Millisecond)

	// the tone comes back through the mirror
	require.Eventually(t, func() bool {
		for _, p := range meter.Peaks() {
			if p > 0.1 {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	st := server.Stats()
	assert.Equal(t, protocol.ModeMirror, st.Mode)
	assert.Equal(t, "clock(mirror)", st.Backend)
	assert.NotEmpty(t, st.Transport.Peer)
	assert.Positive(t, st.Uptime)

	client.Stop()
	assert.NoError(t, waitErr(t, cliDone))

	// once the client stops sending the server notices the silence
	assert.ErrorIs(t, waitErr(t, srvDone), transport.ErrPeerTimeout)
}

func TestStopWithoutPeer(t *testing.T) {
	conn := listen(t)
	s, err := New(Config{
		Format:  testFormat,
		Conn:    conn,
		Backend: backend.NewClock(backend.Options{Format: testFormat}),
	})
	require.NoError(t, err)
	assert.False(t, s.HasPeer())

	done := runAsync(s)
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	require.NoError(t, waitErr(t, done))

	_, err = conn.WriteToUDP([]byte{0}, conn.LocalAddr().(*net.UDPAddr))
	assert.ErrorIs(t, err, net.ErrClosed, "teardown closes the socket")

	assert.Error(t, s.Run(context.Background()), "a session runs once")
}

func TestContextCancelEndsSession(t *testing.T) {
	s, err := New(Config{
		Format:  testFormat,
		Conn:    listen(t),
		Backend: backend.NewClock(backend.Options{Format: testFormat}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.NoError(t, waitErr(t, done))
}

type failingBackend struct {
	startErr error
	done     chan error
	stopped  bool
}

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) Start(backend.Callback) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.done <- fmt.Errorf("%w: device unplugged", backend.ErrBackendShutdown)
	return nil
}

func (b *failingBackend) Stop() error {
	b.stopped = true
	return nil
}

func (b *failingBackend) Done() <-chan error { return b.done }

func TestBackendShutdownEndsSession(t *testing.T) {
	b := &failingBackend{done: make(chan error, 1)}
	s, err := New(Config{Format: testFormat, Conn: listen(t), Backend: b})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, backend.ErrBackendShutdown)
	assert.True(t, b.stopped)
}

func TestBackendStartFailure(t *testing.T) {
	b := &failingBackend{startErr: errors.New("no device"), done: make(chan error, 1)}
	s, err := New(Config{Format: testFormat, Conn: listen(t), Backend: b})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "no device")
}

func TestNewValidation(t *testing.T) {
	conn := listen(t)
	_, err := New(Config{Format: testFormat, Conn: conn})
	assert.ErrorContains(t, err, "backend")

	_, err = conn.WriteToUDP([]byte{0}, conn.LocalAddr().(*net.UDPAddr))
	assert.ErrorIs(t, err, net.ErrClosed, "failed construction closes the socket")

	_, err = New(Config{Format: testFormat, Backend: backend.NewClock(backend.Options{Format: testFormat})})
	assert.Error(t, err)

	bad := testFormat
	bad.BitResolution = 12
	_, err = New(Config{Format: bad, Conn: listen(t), Backend: backend.NewClock(backend.Options{Format: testFormat})})
	assert.ErrorIs(t, err, audio.ErrUnsupportedResolution)
}
