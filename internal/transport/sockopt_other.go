//go:build !linux

// ABOUTME: Socket option stub for non-Linux platforms
// ABOUTME: QoS marking is skipped outside Linux
package transport

func setVoiceOptions(fd, dscp int) error {
	return nil
}
