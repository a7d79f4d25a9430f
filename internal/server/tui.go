// ABOUTME: Server TUI showing the session pool and per-session health
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}
	stopOnce sync.Once

	// fetch refreshes the view on every tick; onStop handles the stop key
	fetch  func() Status
	onStop func(id int) error
}

type tuiModel struct {
	status    Status
	name      string
	port      int
	capacity  int
	selected  int
	notice    string
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
	fetch     func() Status
	onStop    func(id int) error
}

type tickMsg time.Time
type statusMsg Status

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < m.capacity-1 {
				m.selected++
			}
		case "s":
			if m.onStop != nil {
				if err := m.onStop(m.selected); err != nil {
					m.notice = err.Error()
				} else {
					m.notice = fmt.Sprintf("stopping session %d", m.selected)
				}
			}
		}

	case tickMsg:
		if m.fetch != nil {
			m.status = m.fetch()
		}
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	selectStyle  = lipgloss.NewStyle().Reverse(true)

	stateStyles = map[string]lipgloss.Style{
		StateIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StateSpawning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		StateActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StateReleased: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("netjam server"))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(headerStyle.Render(label + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.name)
	field("Port", fmt.Sprintf("%d", m.port))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	spawning := ""
	if m.status.Spawning {
		spawning = " (spawning)"
	}
	field("Sessions", fmt.Sprintf("%d/%d active%s", m.status.Active, m.capacity, spawning))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Pool"))
	b.WriteString("\n\n")

	if len(m.status.Entries) == 0 {
		b.WriteString(valueStyle.Render("  waiting for first status update"))
		b.WriteString("\n")
	}
	for _, e := range m.status.Entries {
		line := entryLine(e)
		if e.ID == m.selected {
			line = selectStyle.Render(line)
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(valueStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("↑/↓ select  s stop session  q quit"))

	return b.String()
}

func entryLine(e EntryStatus) string {
	style, ok := stateStyles[e.State]
	if !ok {
		style = valueStyle
	}
	line := fmt.Sprintf("#%-2d %s", e.ID, style.Render(fmt.Sprintf("%-9s", e.State)))
	if e.State == StateIdle {
		return line
	}

	line += fmt.Sprintf(" %-21s :%-5d %s", e.label(), e.Port, e.Handshake.Format())
	if e.Stats != nil {
		line += fmt.Sprintf("  rx %d tx %d  underruns %d overflows %d",
			e.Stats.Transport.RxPackets, e.Stats.Transport.TxPackets,
			e.Stats.Inbound.Underruns, e.Stats.Inbound.Overflows+e.Stats.Outbound.Overflows)
	}
	return line
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits or Stop is called
func (t *ServerTUI) Start(serverName string, port, capacity int) error {
	m := tuiModel{
		name:      serverName,
		port:      port,
		capacity:  capacity,
		startTime: time.Now(),
		quitChan:  t.quitChan,
		fetch:     t.fetch,
		onStop:    t.onStop,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.stopOnce.Do(func() {
		if t.program != nil {
			t.program.Quit()
		}
		close(t.updates)
	})
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
