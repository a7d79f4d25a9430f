// ABOUTME: Status client for a running netjam server
// ABOUTME: Prints pool snapshots from the control endpoint and can stop a session
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/client"
	"github.com/soundwire/netjam/pkg/protocol"
)

var (
	addr    = flag.String("addr", "localhost:8464", "Server control endpoint host:port")
	stop    = flag.Int("stop", -1, "Stop the session with this id and exit")
	once    = flag.Bool("once", false, "Print one snapshot and exit")
	timeout = flag.Duration("timeout", 5*time.Second, "Connect and reply timeout")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("addr", *addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, *timeout)
	sc, err := client.DialStatus(dialCtx, *addr, log)
	dialCancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer sc.Close()

	if *stop >= 0 {
		os.Exit(stopSession(sc, *stop))
	}

	for {
		select {
		case status := <-sc.Status:
			printStatus(status)
			if *once {
				return
			}
		case <-time.After(*timeout):
			if *once {
				log.Fatal("No status received")
			}
		case <-sc.Done():
			log.Info("Server closed the connection")
			return
		case <-ctx.Done():
			return
		}
	}
}

func stopSession(sc *client.StatusClient, id int) int {
	if err := sc.StopSession(id); err != nil {
		fmt.Fprintf(os.Stderr, "stop_session: %v\n", err)
		return 1
	}

	select {
	case res := <-sc.Results:
		if !res.OK {
			fmt.Fprintf(os.Stderr, "stop_session %d: %s\n", id, res.Error)
			return 1
		}
		fmt.Printf("Session %d stopped\n", id)
		return 0
	case <-sc.Done():
		fmt.Fprintln(os.Stderr, "connection closed before reply")
		return 1
	case <-time.After(*timeout):
		fmt.Fprintln(os.Stderr, "no reply from server")
		return 1
	}
}

func printStatus(s protocol.StatusMessage) {
	fmt.Printf("%s (%s) v%s  port %d  %d/%d active",
		s.Name, s.ServerID, s.Version, s.ListenPort, s.Active, s.Capacity)
	if s.Spawning {
		fmt.Print("  spawning")
	}
	fmt.Println()

	for _, sess := range s.Sessions {
		if sess.State == "idle" {
			fmt.Printf("  [%d] idle\n", sess.ID)
			continue
		}
		format := "-"
		if sess.Format != nil {
			format = fmt.Sprintf("%dch %dHz %d-bit x%d",
				sess.Format.Channels, sess.Format.SampleRate, sess.Format.BitResolution, sess.Format.FramesPerBlock)
		}
		fmt.Printf("  [%d] %-8s %-21s port %-5d %-6s %s  rx %d tx %d  under %d over %d\n",
			sess.ID, sess.State, sess.Peer, sess.Port, sess.Mode, format,
			sess.RxPackets, sess.TxPackets, sess.Underruns, sess.Overflows)
	}
}
