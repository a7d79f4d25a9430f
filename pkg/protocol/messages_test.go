// ABOUTME: Tests for control-plane message types
// ABOUTME: Verifies the JSON shape clients depend on
package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStatusMessageShape(t *testing.T) {
	status := StatusMessage{
		ServerID:   "abc",
		ListenPort: 4464,
		Capacity:   2,
		Active:     1,
		Sessions: []SessionStatus{
			{
				ID:        0,
				State:     "active",
				Peer:      "10.0.0.2:50000",
				Port:      4465,
				Format:    &AudioFormat{SampleRate: 48000, FramesPerBlock: 128, Channels: 2, BitResolution: 16},
				Underruns: 3,
			},
			{ID: 1, State: "idle"},
		},
	}

	data, err := json.Marshal(Message{Type: TypeServerStatus, Payload: status})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, want := range []string{`"type":"server/status"`, `"listen_port":4464`, `"underruns":3`, `"bit_resolution":16`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
	if strings.Contains(string(data), `"peer":""`) {
		t.Errorf("idle session should omit peer: %s", data)
	}
}

func TestEnvelopeDecodesPayloadLater(t *testing.T) {
	data := []byte(`{"type":"server/command","payload":{"command":"stop_session","session_id":3}}`)

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if env.Type != TypeServerCommand {
		t.Fatalf("expected type %s, got %s", TypeServerCommand, env.Type)
	}

	var cmd ServerCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if cmd.Command != CommandStopSession || cmd.SessionID != 3 {
		t.Errorf("unexpected command: %+v", cmd)
	}
}
