// ABOUTME: Entry point for the netjam hub
// ABOUTME: Runs the session listener and worker pool with the control endpoint
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/app"
	"github.com/soundwire/netjam/internal/config"
	"github.com/soundwire/netjam/internal/metrics"
	"github.com/soundwire/netjam/internal/server"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}
	cfg.Mode = config.ModeServer

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if cfg.UseTUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	log := logrus.WithField("name", cfg.Name)
	log.Infof("Starting netjam server: %s on port %d (%d sessions)", cfg.Name, cfg.ListenPort(), cfg.MaxSessions)
	if cfg.Debug {
		log.Info("Debug logging enabled")
	}
	log.Infof("Logging to: %s", cfg.LogFile)

	srv, err := server.New(app.ServerConfig(cfg, metrics.New(), log))
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Infof("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Info("Server stopped")
}
