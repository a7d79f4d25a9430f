// ABOUTME: Client TUI plumbing for the app
// ABOUTME: Forwards gain keys to the processor and pushes session stats to the screen
package app

import (
	"context"
	"time"

	"github.com/soundwire/netjam/internal/ui"
)

// handleControls applies TUI gain changes and turns a TUI quit into cancellation
func (a *App) handleControls(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case vol := <-a.volCtrl.Changes:
			a.log.Debugf("Volume change: %d%%, muted=%v", vol.Volume, vol.Muted)
			a.gain.SetVolume(vol.Volume)
			a.gain.SetMuted(vol.Muted)
		case <-a.volCtrl.Quit:
			a.log.Info("Received quit signal from TUI")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// statusLoop periodically pushes stream health to the TUI
func (a *App) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.publish(a.statusMsg())
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) statusMsg() ui.StatusMsg {
	st := a.Stats()
	if st == nil {
		connected := false
		return ui.StatusMsg{Connected: &connected}
	}

	connected := true
	id := st.ID
	msg := ui.StatusMsg{
		Connected: &connected,
		SessionID: &id,
		Server:    a.remoteAddr(),
		State:     "streaming " + st.Mode.String(),
		Format:    st.Format.String(),
		Backend:   st.Backend,
		Pipeline:  st.Pipeline,
		Received:  st.Transport.RxPackets,
		Sent:      st.Transport.TxPackets,
		Underruns: st.Inbound.Underruns,
		Overflows: st.Inbound.Overflows + st.Outbound.Overflows,
		Repeats:   st.Bridge.Repeats,
	}
	if meter := a.meter.Load(); meter != nil {
		msg.Peaks = meter.Peaks()
	}
	return msg
}

func (a *App) publishConnected(connected bool, id int) {
	a.publish(ui.StatusMsg{Connected: &connected, SessionID: &id, Server: a.remoteAddr()})
}

// publish is a no-op without a TUI
func (a *App) publish(msg ui.StatusMsg) {
	if a.tuiProg != nil {
		a.tuiProg.Send(msg)
	}
}
