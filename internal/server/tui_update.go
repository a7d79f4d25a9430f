// ABOUTME: TUI update helpers for server
// ABOUTME: Wires the pool snapshot and session stop into the server TUI
package server

// updateTUI pushes the current pool state to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.Status())
}

// attachTUI lets the TUI poll status and stop sessions
func (s *Server) attachTUI(t *ServerTUI) {
	t.fetch = s.Status
	t.onStop = s.StopSession
}
