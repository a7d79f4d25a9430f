// ABOUTME: Tests for the parameter set
// ABOUTME: Covers defaults, env file precedence, flags and validation
package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundwire/netjam/pkg/audio"
	"github.com/soundwire/netjam/pkg/protocol"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestDefaults(t *testing.T) {
	c, err := Load(newFlagSet(), []string{"-env-file", ""})
	require.NoError(t, err)

	assert.Equal(t, ModeServer, c.Mode)
	assert.Equal(t, audio.Format{SampleRate: 48000, FramesPerBlock: 128, Channels: 2, BitResolution: audio.Bit16}, c.Format())
	assert.Equal(t, 4464, c.ListenPort())
	assert.Equal(t, 4465, c.SessionPort(0))
	assert.Equal(t, 4, c.InboundSlots())
	assert.Equal(t, 4, c.OutboundSlots())
	assert.Equal(t, 10*time.Second, c.PeerTimeout)
	assert.True(t, c.UseTUI)
	assert.NotEmpty(t, c.Name)
	assert.Equal(t, protocol.ModeNormal, c.ConnectionMode())
}

func TestFlags(t *testing.T) {
	c, err := Load(newFlagSet(), []string{
		"-env-file", noEnvFile(t),
		"-mode", "t",
		"-host", "10.0.0.9",
		"-bits", "24",
		"-channels", "8",
		"-port-offset", "10",
		"-queue", "6",
		"-redundancy", "2",
		"-connection-mode", "mirror",
		"-no-tui",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeTransmit, c.Mode)
	assert.Equal(t, "10.0.0.9", c.RemoteHost)
	assert.Equal(t, audio.Bit24, c.Format().BitResolution)
	assert.Equal(t, 4474, c.ListenPort())
	assert.Equal(t, 12, c.InboundSlots())
	assert.Equal(t, protocol.ModeMirror, c.ConnectionMode())
	assert.False(t, c.UseTUI)
}

func TestEnvFileBelowFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netjam.env")
	require.NoError(t, os.WriteFile(path, []byte("NETJAM_SAMPLE_RATE=96000\nNETJAM_CHANNELS=4\nNETJAM_MODE=receive\n"), 0o644))

	c, err := Load(newFlagSet(), []string{"-env-file", path, "-channels", "6"})
	require.NoError(t, err)

	assert.Equal(t, 96000, c.SampleRate)
	assert.Equal(t, 6, c.Channels, "flag must win over env file")
	assert.Equal(t, ModeReceive, c.Mode)
}

func TestProcessEnvOverridesEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netjam.env")
	require.NoError(t, os.WriteFile(path, []byte("NETJAM_FRAMES=256\n"), 0o644))
	t.Setenv("NETJAM_FRAMES", "64")

	c, err := Load(newFlagSet(), []string{"-env-file", path})
	require.NoError(t, err)
	assert.Equal(t, 64, c.FramesPerBlock)
}

func TestMissingExplicitEnvFile(t *testing.T) {
	_, err := Load(newFlagSet(), []string{"-env-file", noEnvFile(t)})
	assert.Error(t, err)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("NETJAM_CHANNELS", "many")
	_, err := Load(newFlagSet(), []string{"-env-file", ""})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "relay" }},
		{"transmit without host", func(c *Config) { c.Mode = ModeTransmit }},
		{"bad bits", func(c *Config) { c.BitResolution = 12 }},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero frames", func(c *Config) { c.FramesPerBlock = 0 }},
		{"too many channels", func(c *Config) { c.Channels = 256 }},
		{"slot too large", func(c *Config) { c.FramesPerBlock = 8192; c.BitResolution = 32 }},
		{"zero queue", func(c *Config) { c.QueueLength = 0 }},
		{"zero redundancy", func(c *Config) { c.Redundancy = 0 }},
		{"no sessions", func(c *Config) { c.MaxSessions = 0 }},
		{"port overflow", func(c *Config) { c.PortOffset = 61070 }},
		{"unknown backend", func(c *Config) { c.Backend = "jack" }},
		{"unknown connection mode", func(c *Config) { c.ServerConnectionMode = "echo" }},
		{"gain", func(c *Config) { c.Gain = 101 }},
		{"lowpass", func(c *Config) { c.LowPass = 0 }},
		{"timeout", func(c *Config) { c.PeerTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	transmit := Default()
	transmit.Mode = ModeTransmit
	transmit.EnableMDNS = true
	assert.NoError(t, transmit.Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "NETJAM_SAMPLE_RATE", EnvKey("sample-rate"))
	assert.Equal(t, "NETJAM_NO_TUI", EnvKey("no-tui"))
}
