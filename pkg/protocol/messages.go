// ABOUTME: Control-plane message type definitions
// ABOUTME: JSON messages pushed over the server's /status websocket
package protocol

import "encoding/json"

// Control-plane message types
const (
	TypeServerStatus  = "server/status"
	TypeServerCommand = "server/command"
	TypeCommandResult = "server/command_result"
)

// Command names accepted in a ServerCommand
const (
	CommandStopSession = "stop_session"
)

// Message is the top-level wrapper for all control-plane messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is used to read a Message whose payload type is not yet known
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StatusMessage is a snapshot of a server's session pool
type StatusMessage struct {
	ServerID   string          `json:"server_id"`
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	ListenPort int             `json:"listen_port"`
	Capacity   int             `json:"capacity"`
	Active     int             `json:"active"`
	Spawning   bool            `json:"spawning"`
	Timestamp  int64           `json:"timestamp"` // Unix milliseconds
	Sessions   []SessionStatus `json:"sessions"`
}

// SessionStatus describes one worker-pool entry
type SessionStatus struct {
	ID        int          `json:"id"`
	State     string       `json:"state"` // "idle", "spawning", "active", "released"
	Peer      string       `json:"peer,omitempty"`
	Port      int          `json:"port,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	Format    *AudioFormat `json:"format,omitempty"`
	Underruns uint64       `json:"underruns"`
	Overflows uint64       `json:"overflows"`
	RxPackets uint64       `json:"rx_packets"`
	TxPackets uint64       `json:"tx_packets"`
	Uptime    int64        `json:"uptime_ms,omitempty"`
}

// AudioFormat describes a session's negotiated audio format
type AudioFormat struct {
	SampleRate     int `json:"sample_rate"`
	FramesPerBlock int `json:"frames_per_block"`
	Channels       int `json:"channels"`
	BitResolution  int `json:"bit_resolution"`
}

// ServerCommand is an administrative command sent to the server
type ServerCommand struct {
	Command   string `json:"command"`
	SessionID int    `json:"session_id"`
}

// CommandResult answers a ServerCommand
type CommandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
