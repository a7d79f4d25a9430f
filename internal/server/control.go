// ABOUTME: HTTP control endpoint: Prometheus metrics and a status websocket
// ABOUTME: /status pushes pool snapshots and accepts administrative commands
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/version"
	"github.com/soundwire/netjam/pkg/protocol"
)

const writeDeadline = 10 * time.Second

// ControlHandler routes /metrics and /status
func (s *Server) ControlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// StatusMessage converts Status into its wire form
func (s *Server) StatusMessage() protocol.StatusMessage {
	st := s.Status()

	msg := protocol.StatusMessage{
		ServerID:   st.ServerID,
		Name:       st.Name,
		Version:    version.Version,
		ListenPort: st.ListenPort,
		Capacity:   st.Capacity,
		Active:     st.Active,
		Spawning:   st.Spawning,
		Timestamp:  time.Now().UnixMilli(),
		Sessions:   make([]protocol.SessionStatus, 0, len(st.Entries)),
	}

	for _, e := range st.Entries {
		ss := protocol.SessionStatus{
			ID:    e.ID,
			State: e.State,
			Peer:  e.Peer,
			Port:  e.Port,
		}
		if e.State != StateIdle {
			f := e.Handshake.Format()
			ss.Mode = e.Handshake.ConnectionMode.String()
			ss.Format = &protocol.AudioFormat{
				SampleRate:     f.SampleRate,
				FramesPerBlock: f.FramesPerBlock,
				Channels:       f.Channels,
				BitResolution:  int(f.BitResolution),
			}
		}
		if e.Stats != nil {
			ss.Underruns = e.Stats.Inbound.Underruns
			ss.Overflows = e.Stats.Inbound.Overflows + e.Stats.Outbound.Overflows
			ss.RxPackets = e.Stats.Transport.RxPackets
			ss.TxPackets = e.Stats.Transport.TxPackets
			ss.Uptime = e.Stats.Uptime.Milliseconds()
		}
		msg.Sessions = append(msg.Sessions, ss)
	}
	return msg
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Status websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("Status client connected")

	results := make(chan protocol.CommandResult, 8)
	readDone := make(chan struct{})
	writeDone := make(chan struct{})
	defer close(writeDone)
	go func() {
		defer close(readDone)
		s.readCommands(conn, results, writeDone, log)
	}()

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	if err := s.writeJSON(conn, protocol.TypeServerStatus, s.StatusMessage()); err != nil {
		return
	}

	for {
		select {
		case <-readDone:
			log.Debug("Status client disconnected")
			return
		case <-s.stopChan:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(time.Second))
			return
		case res := <-results:
			if err := s.writeJSON(conn, protocol.TypeCommandResult, res); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeJSON(conn, protocol.TypeServerStatus, s.StatusMessage()); err != nil {
				return
			}
		}
	}
}

// readCommands runs until the client goes away
func (s *Server) readCommands(conn *websocket.Conn, results chan<- protocol.CommandResult, writeDone <-chan struct{}, log *logrus.Entry) {
	send := func(res protocol.CommandResult) bool {
		select {
		case results <- res:
			return true
		case <-writeDone:
			return false
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Status websocket read error")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Warn("Ignoring unparseable control message")
			continue
		}
		if env.Type != protocol.TypeServerCommand {
			log.WithField("type", env.Type).Warn("Unknown control message type")
			continue
		}

		var cmd protocol.ServerCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			if !send(protocol.CommandResult{OK: false, Error: "malformed command"}) {
				return
			}
			continue
		}
		if !send(s.execute(cmd)) {
			return
		}
	}
}

func (s *Server) execute(cmd protocol.ServerCommand) protocol.CommandResult {
	res := protocol.CommandResult{Command: cmd.Command}

	var err error
	switch cmd.Command {
	case protocol.CommandStopSession:
		err = s.StopSession(cmd.SessionID)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Command)
	}

	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func (s *Server) writeJSON(conn *websocket.Conn, msgType string, payload interface{}) error {
	data, err := json.Marshal(protocol.Message{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.WithError(err).Debug("Status websocket write failed")
		return err
	}
	return nil
}
