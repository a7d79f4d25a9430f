// ABOUTME: WebSocket client for a server's /status control endpoint
// ABOUTME: Streams pool snapshots and sends administrative commands
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/pkg/protocol"
)

// StatusClient follows one server's status feed
type StatusClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
	log  *logrus.Entry

	// Message channels
	Status  chan protocol.StatusMessage
	Results chan protocol.CommandResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// DialStatus connects to ws://addr/status
func DialStatus(ctx context.Context, addr string, log *logrus.Entry) (*StatusClient, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/status"}
	log.Debugf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &StatusClient{
		conn:    conn,
		log:     log,
		Status:  make(chan protocol.StatusMessage, 10),
		Results: make(chan protocol.CommandResult, 10),
		ctx:     cctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readMessages()
	return c, nil
}

func (c *StatusClient) readMessages() {
	defer close(c.done)
	defer close(c.Status)
	defer close(c.Results)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("Status connection lost")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.WithError(err).Warn("Failed to parse status message")
			continue
		}

		switch env.Type {
		case protocol.TypeServerStatus:
			var st protocol.StatusMessage
			if err := json.Unmarshal(env.Payload, &st); err != nil {
				c.log.WithError(err).Warn("Malformed status payload")
				continue
			}
			// a newer snapshot supersedes one nobody has read yet
			select {
			case c.Status <- st:
			default:
			}
		case protocol.TypeCommandResult:
			var res protocol.CommandResult
			if err := json.Unmarshal(env.Payload, &res); err != nil {
				c.log.WithError(err).Warn("Malformed command result")
				continue
			}
			select {
			case c.Results <- res:
			case <-c.ctx.Done():
				return
			}
		default:
			c.log.WithField("type", env.Type).Debug("Ignoring unknown message type")
		}
	}
}

// StopSession asks the server to stop session id; the outcome arrives on Results
func (c *StatusClient) StopSession(id int) error {
	return c.send(protocol.Message{
		Type:    protocol.TypeServerCommand,
		Payload: protocol.ServerCommand{Command: protocol.CommandStopSession, SessionID: id},
	})
}

func (c *StatusClient) send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Done is closed when the feed ends
func (c *StatusClient) Done() <-chan struct{} {
	return c.done
}

// Close ends the feed
func (c *StatusClient) Close() error {
	c.cancel()
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
