// ABOUTME: Session socket creation and tuning for low-latency audio
package transport

import (
	"fmt"
	"net"
)

// BufferBytes is the kernel buffer size Tune requests for a session
// carrying slotSize datagrams with queue slots of headroom
func BufferBytes(slotSize, queue int) int {
	return slotSize * queue * 4
}

// DSCPExpedited is the Expedited Forwarding code point used for audio
const DSCPExpedited = 46

// Tune sizes the kernel buffers and marks outgoing packets for QoS.
// Failures leave a usable socket; callers log them and carry on.
func Tune(conn *net.UDPConn, bufferBytes int) error {
	if bufferBytes < 64*1024 {
		bufferBytes = 64 * 1024
	}
	if err := conn.SetReadBuffer(bufferBytes); err != nil {
		return fmt.Errorf("failed to set receive buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(bufferBytes); err != nil {
		return fmt.Errorf("failed to set send buffer: %w", err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw socket: %w", err)
	}
	var optErr error
	if err := raw.Control(func(fd uintptr) {
		optErr = setVoiceOptions(int(fd), DSCPExpedited)
	}); err != nil {
		return fmt.Errorf("socket control failed: %w", err)
	}
	return optErr
}
