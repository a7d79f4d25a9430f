// ABOUTME: Bubbletea model for the client TUI
// ABOUTME: Shows session state, stream health and level meters; keys drive gain and mute
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const volumeStep = 5

// Model represents the TUI state
type Model struct {
	// Session
	connected bool
	mode      string
	server    string
	sessionID int
	state     string

	// Stream
	format   string
	backend  string
	pipeline string

	// Gain
	volume int
	muted  bool

	// Health
	received  uint64
	sent      uint64
	underruns uint64
	overflows uint64
	repeats   uint64
	peaks     []float32

	showDebug  bool
	volumeCtrl *VolumeControl

	width  int
	height int
}

// VolumeChangeMsg reports a gain change made in the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg asks the app to shut down
type QuitMsg struct{}

// StatusMsg updates TUI state; zero fields leave the current value alone
type StatusMsg struct {
	Connected *bool
	Mode      string
	Server    string
	SessionID *int
	State     string
	Format    string
	Backend   string
	Pipeline  string
	Received  uint64
	Sent      uint64
	Underruns uint64
	Overflows uint64
	Repeats   uint64
	Peaks     []float32
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderStream()
	s += m.renderControls()
	s += m.renderMeters()
	s += m.renderStats()
	if m.showDebug {
		s += m.renderDebug()
	}
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	status := "Disconnected"
	if m.connected {
		status = fmt.Sprintf("Session %d on %s", m.sessionID, m.server)
	}

	return fmt.Sprintf(`┌─ netjam %-9s ──────────────────────────────────┐
│ Status: %-45s │
│ State:  %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(m.mode, 9), truncate(status, 45), truncate(m.state, 45))
}

func (m Model) renderStream() string {
	if m.format == "" {
		return "│ No stream                                            │\n"
	}
	return fmt.Sprintf("│ Format:  %-43s │\n│ Backend: %-43s │\n",
		truncate(m.format, 43), truncate(m.backend, 43))
}

func (m Model) renderControls() string {
	mute := ""
	if m.muted {
		mute = " (muted)"
	}
	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %3d%%%-22s │\n",
		renderBar(m.volume, 100, 10), m.volume, mute)
}

func (m Model) renderMeters() string {
	if len(m.peaks) == 0 {
		return ""
	}
	var b strings.Builder
	for ch, peak := range m.peaks {
		level := int(peak * 100)
		if level > 100 {
			level = 100
		}
		b.WriteString(fmt.Sprintf("│ %-7s [%s] %3d%%%-13s │\n",
			channelName(ch, len(m.peaks)), renderBar(level, 100, 20), level, ""))
	}
	return b.String()
}

func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ RX: %-10d TX: %-10d                        │
│ Underruns: %-8d Overflows: %-8d Held: %-6d │
`, m.received, m.sent, m.underruns, m.overflows, m.repeats)
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG pipeline: %-36s │\n", truncate(m.pipeline, 36))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+volumeStep, 100)
		m.notifyVolume()
	case "down":
		m.volume = max(m.volume-volumeStep, 0)
		m.notifyVolume()
	case "m":
		m.muted = !m.muted
		m.notifyVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) notifyVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.Mode != "" {
		m.mode = msg.Mode
	}
	if msg.Server != "" {
		m.server = msg.Server
	}
	if msg.SessionID != nil {
		m.sessionID = *msg.SessionID
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Format != "" {
		m.format = msg.Format
	}
	if msg.Backend != "" {
		m.backend = msg.Backend
	}
	if msg.Pipeline != "" {
		m.pipeline = msg.Pipeline
	}
	if msg.Received != 0 || msg.Sent != 0 {
		m.received = msg.Received
		m.sent = msg.Sent
	}
	if msg.Underruns != 0 {
		m.underruns = msg.Underruns
	}
	if msg.Overflows != 0 {
		m.overflows = msg.Overflows
	}
	if msg.Repeats != 0 {
		m.repeats = msg.Repeats
	}
	if msg.Peaks != nil {
		m.peaks = msg.Peaks
	}
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(ch, total int) string {
	switch {
	case total == 1:
		return "Mono"
	case total == 2 && ch == 0:
		return "Left"
	case total == 2 && ch == 1:
		return "Right"
	}
	return fmt.Sprintf("Ch %d", ch+1)
}
