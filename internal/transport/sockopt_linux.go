//go:build linux

// ABOUTME: Linux socket options for session sockets
// ABOUTME: Marks outgoing audio as low-latency voice traffic
package transport

import "golang.org/x/sys/unix"

// setVoiceOptions marks the socket for interactive audio
func setVoiceOptions(fd, dscp int) error {
	tos := dscp << 2
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
		return err
	}
	// IPv6 traffic class and priority are best effort (containers often refuse them)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
	return nil
}
