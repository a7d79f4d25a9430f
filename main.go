// ABOUTME: Entry point for netjam
// ABOUTME: Parses flags and runs transmit, receive or server mode
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
	"github.com/soundwire/netjam/internal/version"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}

	f := setupLogging(cfg)
	defer func() { _ = f.Close() }()

	log := logrus.WithField("name", cfg.Name)
	log.WithFields(logrus.Fields{
		"version": version.String(),
		"mode":    string(cfg.Mode),
		"format":  cfg.Format().String(),
	}).Info("Starting netjam")
	if !cfg.UseTUI {
		log.Infof("Logging to: %s", cfg.LogFile)
		log.Info("Press Ctrl-C to stop")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	switch cfg.Mode {
	case config.ModeServer:
		var srv *server.Server
		srv, err = server.New(app.ServerConfig(cfg, m, log))
		if err == nil {
			err = srv.Start(ctx)
		}
	default:
		var a *app.App
		a, err = app.New(cfg, m, log)
		if err == nil {
			err = a.Run(ctx)
		}
	}

	if err != nil {
		log.WithError(err).Error("netjam stopped with error")
		_ = f.Close()
		os.Exit(1)
	}
	log.Info("netjam stopped")
}

// setupLogging logs to the file only while a TUI owns the terminal,
// otherwise to both stdout and the file
func setupLogging(cfg *config.Config) *os.File {
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}

	if cfg.UseTUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return f
}
