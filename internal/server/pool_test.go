// ABOUTME: Tests for the worker pool entry state machine
// ABOUTME: Covers the idle/spawning/active/released cycle and exhaustion
package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundwire/netjam/pkg/protocol"
)

func peerAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
}

func TestPoolEntryLifecycle(t *testing.T) {
	p := NewPool(2, nil)
	hs := protocol.Handshake{BufferSize: 128, SamplingRate: 48000, BitResolution: 16, Channels: 2}

	e, err := p.acquire(peerAddr(1000), hs)
	require.NoError(t, err)
	assert.Equal(t, 0, e.id)
	assert.Equal(t, StateSpawning, e.state())
	assert.True(t, p.IsSpawning())
	assert.Zero(t, p.Active())

	p.setPort(e, 4465)
	id, state, port, ok := p.byPeer(peerAddr(1000))
	require.True(t, ok)
	assert.Equal(t, 0, id)
	assert.Equal(t, StateSpawning, state)
	assert.Equal(t, 4465, port)

	require.NoError(t, p.activate(e, nil))
	assert.Equal(t, StateActive, e.state())
	assert.False(t, p.IsSpawning())
	assert.Equal(t, 1, p.Active())

	_, err = p.session(0)
	assert.Error(t, err, "active entry without a session object")

	p.release(e)
	assert.Equal(t, StateIdle, e.state())
	_, _, _, ok = p.byPeer(peerAddr(1000))
	assert.False(t, ok)

	snap := p.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, StateIdle, snap[0].State)
	assert.Empty(t, snap[0].Peer)
	assert.Zero(t, snap[0].Port)
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(2, nil)
	hs := protocol.Handshake{}

	a, err := p.acquire(peerAddr(1), hs)
	require.NoError(t, err)
	_, err = p.acquire(peerAddr(2), hs)
	require.NoError(t, err)

	_, err = p.acquire(peerAddr(3), hs)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	// releasing while spawning also frees the entry and the spawning count
	p.release(a)
	assert.Equal(t, []string{StateIdle, StateSpawning}, p.States())

	c, err := p.acquire(peerAddr(3), hs)
	require.NoError(t, err)
	assert.Equal(t, 0, c.id, "lowest idle entry is reused")
}

func TestPoolInvalidTransitions(t *testing.T) {
	p := NewPool(1, nil)
	e := p.entries[0]

	assert.Error(t, p.activate(e, nil), "idle entry cannot activate")
	p.release(e)
	assert.Equal(t, StateIdle, e.state(), "release of an idle entry is ignored")
	assert.False(t, p.IsSpawning())
}
