// ABOUTME: Mapping from the process parameter set to a server configuration
// ABOUTME: Shared by server mode, the hub binary and receive mode
package app

import (
	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/config"
	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/internal/server"
)

// ServerConfig maps cfg onto a server configuration. Sessions use the
// server's default clock backend.
func ServerConfig(cfg *config.Config, m *metrics.Metrics, log *logrus.Entry) server.Config {
	return server.Config{
		Name:             cfg.Name,
		ListenPort:       cfg.ListenPort(),
		MaxSessions:      cfg.MaxSessions,
		InboundSlots:     cfg.InboundSlots(),
		OutboundSlots:    cfg.OutboundSlots(),
		PeerTimeout:      cfg.PeerTimeout,
		StatsInterval:    cfg.StatsInterval,
		RepeatOnUnderrun: cfg.RepeatOnUnderrun,
		ControlAddr:      cfg.ControlAddr,
		EnableMDNS:       cfg.EnableMDNS,
		UseTUI:           cfg.UseTUI,
		Metrics:          m,
		Logger:           log,
	}
}
