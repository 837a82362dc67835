package wire

import "fmt"

// PacketType is the first element of every frame payload.
type PacketType uint64

// Core packet types handled by the session itself
const (
	HelloPacket PacketType = iota
	DisconnectPacket
	PingPacket
	PongPacket
	GetPeersPacket
	PeersPacket

	// UserPacket is the first code available to capabilities. Codes between
	// PeersPacket and UserPacket are reserved.
	UserPacket PacketType = 0x10
)

// MaxPacketType bounds the code space shared by all capabilities of a session
const MaxPacketType PacketType = 1<<16 - 1

const (
	// HeaderSize is the length of the big-endian frame length prefix
	HeaderSize = 4

	// MaxPayloadSize is the largest RLP payload a frame may carry
	MaxPayloadSize = 1<<24 - 1

	// MaxFrameSize is the largest frame accepted on the wire
	MaxFrameSize = HeaderSize + MaxPayloadSize

	// MaxPeersPerPacket caps the entries of a single Peers packet
	MaxPeersPerPacket = 10
)

// IsCore reports whether the code belongs to the reserved connection range
func (p PacketType) IsCore() bool {
	return p < UserPacket
}

func (p PacketType) String() string {
	switch p {
	case HelloPacket:
		return "hello"
	case DisconnectPacket:
		return "disconnect"
	case PingPacket:
		return "ping"
	case PongPacket:
		return "pong"
	case GetPeersPacket:
		return "get-peers"
	case PeersPacket:
		return "peers"
	}

	if p.IsCore() {
		return fmt.Sprintf("reserved(%d)", uint64(p))
	}

	return fmt.Sprintf("user(%d)", uint64(p))
}
