// ABOUTME: Tests for the client handshake
// ABOUTME: Uses a fake listener that answers on a chosen attempt
package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/protocol"
)

var testFormat = audio.Format{
	SampleRate:     44100,
	FramesPerBlock: 256,
	Channels:       1,
	BitResolution:  audio.Bit24,
}

func udp(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// fakeListener answers the n-th handshake it sees (1-based) with reply
func fakeListener(t *testing.T, answerOn int, reply protocol.HandshakeReply) (*net.UDPConn, <-chan protocol.Handshake) {
	t.Helper()
	conn := udp(t)
	seen := make(chan protocol.Handshake, 16)

	go func() {
		buf := make([]byte, 64)
		for count := 1; ; count++ {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			hs, err := protocol.ParseHandshake(buf[:n])
			if err != nil {
				continue
			}
			seen <- hs
			if count >= answerOn {
				conn.WriteToUDP(reply.Marshal(), from)
			}
		}
	}()
	return conn, seen
}

func TestHandshakeAccepted(t *testing.T) {
	listener, seen := fakeListener(t, 1, protocol.HandshakeReply{
		Status:      protocol.StatusAccepted,
		SessionPort: 4466,
		SessionID:   1,
	})

	reply, addr, err := Handshake(context.Background(), udp(t), HandshakeConfig{
		Server: listener.LocalAddr().(*net.UDPAddr),
		Format: testFormat,
		Mode:   protocol.ModeMirror,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reply.SessionID)
	assert.Equal(t, "127.0.0.1:4466", addr.String())

	hs := <-seen
	assert.Equal(t, testFormat, hs.Format())
	assert.Equal(t, protocol.ModeMirror, hs.ConnectionMode)
}

func TestHandshakeRetriesUntilAnswered(t *testing.T) {
	listener, seen := fakeListener(t, 3, protocol.HandshakeReply{Status: protocol.StatusAccepted, SessionPort: 5000})

	start := time.Now()
	_, _, err := Handshake(context.Background(), udp(t), HandshakeConfig{
		Server:        listener.LocalAddr().(*net.UDPAddr),
		Format:        testFormat,
		Timeout:       2 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestHandshakeRejected(t *testing.T) {
	listener, _ := fakeListener(t, 1, protocol.HandshakeReply{Status: protocol.StatusRejectedPoolFull})

	reply, addr, err := Handshake(context.Background(), udp(t), HandshakeConfig{
		Server: listener.LocalAddr().(*net.UDPAddr),
		Format: testFormat,
	})
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "pool_full")
	assert.Equal(t, protocol.StatusRejectedPoolFull, reply.Status)
	assert.Nil(t, addr)
}

func TestHandshakeTimeout(t *testing.T) {
	silent := udp(t)

	_, _, err := Handshake(context.Background(), udp(t), HandshakeConfig{
		Server:        silent.LocalAddr().(*net.UDPAddr),
		Format:        testFormat,
		Timeout:       200 * time.Millisecond,
		RetryInterval: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestHandshakeIgnoresStrangers(t *testing.T) {
	silent := udp(t)
	stranger := udp(t)
	conn := udp(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		reply := protocol.HandshakeReply{Status: protocol.StatusAccepted}
		stranger.WriteToUDP(reply.Marshal(), conn.LocalAddr().(*net.UDPAddr))
	}()

	_, _, err := Handshake(context.Background(), conn, HandshakeConfig{
		Server:        silent.LocalAddr().(*net.UDPAddr),
		Format:        testFormat,
		Timeout:       200 * time.Millisecond,
		RetryInterval: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestHandshakeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Handshake(ctx, udp(t), HandshakeConfig{
		Server: udp(t).LocalAddr().(*net.UDPAddr),
		Format: testFormat,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandshakeRejectsBadFormat(t *testing.T) {
	bad := testFormat
	bad.BitResolution = 20
	_, _, err := Handshake(context.Background(), udp(t), HandshakeConfig{
		Server: udp(t).LocalAddr().(*net.UDPAddr),
		Format: bad,
	})
	assert.Error(t, err)
}

func TestResolveServer(t *testing.T) {
	addr, err := ResolveServer("127.0.0.1", 4464)
	require.NoError(t, err)
	assert.Equal(t, 4464, addr.Port)
}
