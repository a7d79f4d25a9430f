// ABOUTME: Tests for Prometheus collectors
// ABOUTME: Reads counter values back through testutil
package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionReleased("peer_timeout")
	m.Handshake("accepted")
	m.Handshake("rejected_pool_full")
	m.Handshake("accepted")
	m.AddPackets(DirectionRx, 10)
	m.AddPackets(DirectionRx, 0)
	m.AddUnderruns(RingInbound, 3)
	m.AddOverflows(RingOutbound, 2)
	m.PeerTimeout()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsReleased.WithLabelValues("peer_timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.handshakes.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handshakes.WithLabelValues("rejected_pool_full")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.packets.WithLabelValues(DirectionRx)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.underruns.WithLabelValues(RingInbound)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.overflows.WithLabelValues(RingOutbound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peerTimeouts))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionReleased("stop")
		m.Handshake("accepted")
		m.AddPackets(DirectionTx, 1)
		m.AddUnderruns(RingInbound, 1)
		m.AddOverflows(RingInbound, 1)
		m.PeerTimeout()
	})
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.AddUnderruns(RingInbound, 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `netjam_ring_underruns_total{ring="inbound"} 5`), body)
}
