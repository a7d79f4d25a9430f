// ABOUTME: netjam wire protocol package
// ABOUTME: Defines the UDP handshake packets and control-plane messages
// Package protocol implements the netjam wire protocol.
//
// A connecting peer sends one fixed 11-byte Handshake to the server's
// well-known UDP port and receives a 7-byte HandshakeReply naming the
// session port it should stream to. Audio datagrams that follow carry
// exactly one Slot each, with no header.
//
// The control plane is JSON over a websocket: the server pushes a
// StatusMessage once per second and accepts ServerCommand messages.
//
// Example:
//
//	hs, err := protocol.HandshakeFromFormat(format, protocol.ModeNormal)
//	conn.Write(hs.Marshal())
//	n, _ := conn.Read(buf)
//	reply, err := protocol.ParseReply(buf[:n])
package protocol
