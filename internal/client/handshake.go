// ABOUTME: Client side of the session handshake
// ABOUTME: Sends the handshake to the listener and waits for its reply, retrying on loss
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/protocol"
)

var (
	// ErrHandshakeTimeout means the listener never answered
	ErrHandshakeTimeout = errors.New("handshake timed out")
	// ErrRejected wraps every non-accepted reply
	ErrRejected = errors.New("handshake rejected")
)

// DefaultRetryInterval is how often an unanswered handshake is resent
const DefaultRetryInterval = 500 * time.Millisecond

// HandshakeConfig describes one handshake attempt
type HandshakeConfig struct {
	Server        *net.UDPAddr
	Format        audio.Format
	Mode          protocol.ConnectionMode
	Timeout       time.Duration
	RetryInterval time.Duration
	Logger        *logrus.Entry
}

// ResolveServer resolves the listener address of host
func ResolveServer(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addr, nil
}

// Handshake negotiates a session over conn, which must be the socket the
// audio will later flow from. It returns the reply and the session address.
func Handshake(ctx context.Context, conn *net.UDPConn, cfg HandshakeConfig) (protocol.HandshakeReply, *net.UDPAddr, error) {
	var none protocol.HandshakeReply

	if cfg.Server == nil {
		return none, nil, fmt.Errorf("handshake needs a server address")
	}
	hs, err := protocol.HandshakeFromFormat(cfg.Format, cfg.Mode)
	if err != nil {
		return none, nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	packet := hs.Marshal()
	buf := make([]byte, 64)
	deadline := time.Now().Add(cfg.Timeout)
	defer conn.SetReadDeadline(time.Time{})

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return none, nil, err
		}
		if !time.Now().Before(deadline) {
			return none, nil, fmt.Errorf("%w after %s (%d attempts)", ErrHandshakeTimeout, cfg.Timeout, attempt-1)
		}

		if _, err := conn.WriteToUDP(packet, cfg.Server); err != nil {
			return none, nil, fmt.Errorf("send handshake: %w", err)
		}
		log.WithFields(logrus.Fields{
			"server":  cfg.Server.String(),
			"attempt": attempt,
		}).Debug("Handshake sent")

		wait := time.Now().Add(cfg.RetryInterval)
		if wait.After(deadline) {
			wait = deadline
		}

		reply, ok, err := awaitReply(conn, cfg.Server, buf, wait)
		if err != nil {
			return none, nil, err
		}
		if !ok {
			continue
		}

		if !reply.Accepted() {
			return reply, nil, fmt.Errorf("%w: %s", ErrRejected, reply.Status)
		}
		session := &net.UDPAddr{IP: cfg.Server.IP, Port: int(reply.SessionPort), Zone: cfg.Server.Zone}
		log.WithFields(logrus.Fields{
			"session": reply.SessionID,
			"addr":    session.String(),
		}).Info("Handshake accepted")
		return reply, session, nil
	}
}

// awaitReply reads until a valid reply from server arrives or until
// deadline; ok is false on timeout
func awaitReply(conn *net.UDPConn, server *net.UDPAddr, buf []byte, deadline time.Time) (protocol.HandshakeReply, bool, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return protocol.HandshakeReply{}, false, err
	}

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return protocol.HandshakeReply{}, false, nil
			}
			return protocol.HandshakeReply{}, false, fmt.Errorf("await handshake reply: %w", err)
		}
		if !from.IP.Equal(server.IP) || from.Port != server.Port {
			continue
		}
		reply, err := protocol.ParseReply(buf[:n])
		if err != nil {
			continue
		}
		return reply, true, nil
	}
}
