// ABOUTME: Structured parameter set for every run mode
// ABOUTME: Defaults, NETJAM_* env file loading, flag binding and validation
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/protocol"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Mode is the role this process plays
type Mode string

const (
	ModeTransmit Mode = "transmit"
	ModeReceive  Mode = "receive"
	ModeServer   Mode = "server"
)

// ParseMode accepts full names and the single-letter forms t, r and s
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "transmit", "t":
		return ModeTransmit, nil
	case "receive", "r":
		return ModeReceive, nil
	case "server", "s":
		return ModeServer, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q (transmit, receive, server)", ErrInvalid, s)
}

// Backend names
const (
	BackendClock     = "clock"
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
)

const (
	// BasePort is the well-known listening port before PortOffset
	BasePort = 4464

	envPrefix = "NETJAM_"
)

// Config holds every tunable of a netjam process
type Config struct {
	Mode       Mode
	RemoteHost string
	Name       string

	SampleRate     int
	FramesPerBlock int
	Channels       int
	BitResolution  int

	PortOffset  int
	Redundancy  int
	QueueLength int
	MaxSessions int

	PeerTimeout      time.Duration
	HandshakeTimeout time.Duration
	StatsInterval    time.Duration

	Backend              string
	InputFile            string
	ServerConnectionMode string

	Gain             int
	LowPass          float64
	RepeatOnUnderrun bool

	ControlAddr string
	EnableMDNS  bool
	UseTUI      bool
	Debug       bool
	LogFile     string
	EnvFile     string
}

// Default returns 48 kHz, 128 frames,
// stereo, 16-bit, port 4464, a four-packet queue and no redundancy.
func Default() *Config {
	return &Config{
		Mode:                 ModeServer,
		SampleRate:           48000,
		FramesPerBlock:       128,
		Channels:             2,
		BitResolution:        16,
		Redundancy:           1,
		QueueLength:          4,
		MaxSessions:          8,
		PeerTimeout:          10 * time.Second,
		HandshakeTimeout:     5 * time.Second,
		StatsInterval:        5 * time.Second,
		Backend:              BackendClock,
		InputFile:            "",
		ServerConnectionMode: "normal",
		Gain:                 100,
		LowPass:              1,
		ControlAddr:          ":8464",
		UseTUI:               true,
		LogFile:              "netjam.log",
		EnvFile:              ".env",
	}
}

// RegisterFlags binds every field to a flag on fs, using the current values as defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Func("mode", "Run mode: transmit, receive or server (default "+string(c.Mode)+")", func(s string) error {
		m, err := ParseMode(s)
		if err != nil {
			return err
		}
		c.Mode = m
		return nil
	})
	fs.StringVar(&c.RemoteHost, "host", c.RemoteHost, "Remote host to transmit to (empty: discover via mDNS)")
	fs.StringVar(&c.Name, "name", c.Name, "Friendly name for mDNS and status (default: hostname-netjam)")

	fs.IntVar(&c.SampleRate, "sample-rate", c.SampleRate, "Sample rate in Hz")
	fs.IntVar(&c.FramesPerBlock, "frames", c.FramesPerBlock, "Frames per audio block")
	fs.IntVar(&c.Channels, "channels", c.Channels, "Number of audio channels")
	fs.IntVar(&c.BitResolution, "bits", c.BitResolution, "Wire bit resolution: 8, 16, 24 or 32")

	fs.IntVar(&c.PortOffset, "port-offset", c.PortOffset, "Offset added to the base port 4464")
	fs.IntVar(&c.Redundancy, "redundancy", c.Redundancy, "Packet redundancy factor (scales the inbound queue)")
	fs.IntVar(&c.QueueLength, "queue", c.QueueLength, "Inbound queue length in packets")
	fs.IntVar(&c.MaxSessions, "max-sessions", c.MaxSessions, "Maximum concurrent sessions (server mode)")

	fs.DurationVar(&c.PeerTimeout, "peer-timeout", c.PeerTimeout, "End a session after this much peer silence")
	fs.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "Give up on the handshake reply after this long")
	fs.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "Interval between overflow/underrun summaries")

	fs.StringVar(&c.Backend, "backend", c.Backend, "Audio backend: clock, portaudio, malgo or oto")
	fs.StringVar(&c.InputFile, "input", c.InputFile, "Clock backend input: silence, tone, or an .mp3/.flac file")
	fs.StringVar(&c.ServerConnectionMode, "connection-mode", c.ServerConnectionMode, "Session mode requested from the server: normal or mirror")

	fs.IntVar(&c.Gain, "gain", c.Gain, "Output volume 0-100")
	fs.Float64Var(&c.LowPass, "lowpass", c.LowPass, "One-pole low-pass coefficient (0, 1]; 1 disables")
	fs.BoolVar(&c.RepeatOnUnderrun, "repeat-on-underrun", c.RepeatOnUnderrun, "Replay the last good block instead of silence on underrun")

	fs.StringVar(&c.ControlAddr, "control-addr", c.ControlAddr, "Status/metrics HTTP address (empty disables)")
	fs.BoolVar(&c.EnableMDNS, "mdns", c.EnableMDNS, "Advertise (server) or discover (transmit) via mDNS")
	fs.BoolFunc("no-tui", "Disable TUI, use streaming logs instead", func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		c.UseTUI = !v
		return nil
	})
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Log file path")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "File of NETJAM_* settings applied beneath flags")
}

// Load parses args into a Config. Precedence is defaults, then the env file
// (overridden by the process environment), then flags given on the command line.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	c := Default()
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	env, err := readEnv(c.EnvFile, explicit["env-file"])
	if err != nil {
		return nil, err
	}

	var setErr error
	fs.VisitAll(func(f *flag.Flag) {
		if setErr != nil || explicit[f.Name] || f.Name == "env-file" {
			return
		}
		value, ok := env[EnvKey(f.Name)]
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			setErr = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvKey(f.Name), value, err)
		}
	})
	if setErr != nil {
		return nil, setErr
	}

	if c.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.Name = hostname + "-netjam"
	}

	return c, c.Validate()
}

// EnvKey maps a flag name to its environment key, e.g. sample-rate -> NETJAM_SAMPLE_RATE
func EnvKey(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func readEnv(path string, required bool) (map[string]string, error) {
	env := map[string]string{}
	if path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			env = values
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, envPrefix) {
			env[key] = value
		}
	}
	return env, nil
}

// Validate rejects settings no session could run with
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == ModeTransmit && c.RemoteHost == "" && !c.EnableMDNS {
		return fmt.Errorf("%w: transmit mode needs -host or -mdns", ErrInvalid)
	}
	if _, err := audio.ParseBitResolution(c.BitResolution); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.SampleRate <= 0 || uint64(c.SampleRate) > math.MaxUint32 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.SampleRate)
	}
	if c.FramesPerBlock <= 0 || uint64(c.FramesPerBlock) > math.MaxUint32 {
		return fmt.Errorf("%w: frames per block %d", ErrInvalid, c.FramesPerBlock)
	}
	if c.Channels <= 0 || c.Channels > math.MaxUint8 {
		return fmt.Errorf("%w: channels must be 1-255, got %d", ErrInvalid, c.Channels)
	}
	if size := c.Format().SlotSize(); size > audio.MaxDatagramPayload {
		return fmt.Errorf("%w: block of %d bytes exceeds the %d-byte datagram limit", ErrInvalid, size, audio.MaxDatagramPayload)
	}
	if c.Redundancy <= 0 || c.QueueLength <= 0 {
		return fmt.Errorf("%w: redundancy and queue length must be positive", ErrInvalid)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("%w: max sessions must be positive", ErrInvalid)
	}
	if c.PortOffset < 0 || c.ListenPort()+c.MaxSessions > math.MaxUint16 {
		return fmt.Errorf("%w: port offset %d leaves no room for %d session ports", ErrInvalid, c.PortOffset, c.MaxSessions)
	}
	if c.PeerTimeout <= 0 || c.HandshakeTimeout <= 0 || c.StatsInterval <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	switch c.Backend {
	case BackendClock, BackendPortAudio, BackendMalgo, BackendOto:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if _, err := protocol.ParseConnectionMode(c.ServerConnectionMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Gain < 0 || c.Gain > 100 {
		return fmt.Errorf("%w: gain must be 0-100, got %d", ErrInvalid, c.Gain)
	}
	if c.LowPass <= 0 || c.LowPass > 1 {
		return fmt.Errorf("%w: lowpass must be in (0, 1], got %v", ErrInvalid, c.LowPass)
	}
	return nil
}

// Format returns the audio format this process streams
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate:     c.SampleRate,
		FramesPerBlock: c.FramesPerBlock,
		Channels:       c.Channels,
		BitResolution:  audio.BitResolution(c.BitResolution),
	}
}

// ConnectionMode returns the parsed ServerConnectionMode
func (c *Config) ConnectionMode() protocol.ConnectionMode {
	m, _ := protocol.ParseConnectionMode(c.ServerConnectionMode)
	return m
}

// ListenPort is the well-known port the server listens on
func (c *Config) ListenPort() int {
	return BasePort + c.PortOffset
}

// SessionPort is the dedicated port of session id
func (c *Config) SessionPort(id int) int {
	return c.ListenPort() + 1 + id
}

// InboundSlots is the network input queue length in audio blocks
func (c *Config) InboundSlots() int {
	return c.QueueLength * c.Redundancy
}

// OutboundSlots is the send queue length in audio blocks
func (c *Config) OutboundSlots() int {
	return 4
}
