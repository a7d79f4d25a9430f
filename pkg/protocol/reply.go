// ABOUTME: Handshake reply sent by the acceptor on the well-known port
// ABOUTME: Tells the peer whether it was accepted and where its session lives
package protocol

import (
	"encoding/binary"
	"fmt"
)

// ReplySize is the fixed wire size of a handshake reply:
// status u8, session_port u16, session_id u32
const ReplySize = 1 + 2 + 4

// ReplyStatus is the acceptor's verdict on a handshake
type ReplyStatus uint8

const (
	StatusAccepted          ReplyStatus = 0
	StatusRejectedPoolFull  ReplyStatus = 1
	StatusRejectedMalformed ReplyStatus = 2
	StatusRejectedBind      ReplyStatus = 3
)

func (s ReplyStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejectedPoolFull:
		return "rejected_pool_full"
	case StatusRejectedMalformed:
		return "rejected_malformed"
	case StatusRejectedBind:
		return "rejected_bind"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// HandshakeReply answers exactly one handshake
type HandshakeReply struct {
	Status      ReplyStatus
	SessionPort uint16
	SessionID   uint32
}

// Accepted reports whether the peer got a session
func (r HandshakeReply) Accepted() bool {
	return r.Status == StatusAccepted
}

// Marshal serializes the reply into its fixed wire layout
func (r HandshakeReply) Marshal() []byte {
	buf := make([]byte, ReplySize)
	buf[0] = uint8(r.Status)
	binary.LittleEndian.PutUint16(buf[1:3], r.SessionPort)
	binary.LittleEndian.PutUint32(buf[3:7], r.SessionID)
	return buf
}

// ParseReply decodes a handshake reply
func ParseReply(data []byte) (HandshakeReply, error) {
	if len(data) != ReplySize {
		return HandshakeReply{}, fmt.Errorf("invalid reply: %d bytes, need %d", len(data), ReplySize)
	}
	r := HandshakeReply{
		Status:      ReplyStatus(data[0]),
		SessionPort: binary.LittleEndian.Uint16(data[1:3]),
		SessionID:   binary.LittleEndian.Uint32(data[3:7]),
	}
	if r.Status > StatusRejectedBind {
		return HandshakeReply{}, fmt.Errorf("invalid reply status: %d", r.Status)
	}
	return r, nil
}
