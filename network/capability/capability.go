package capability

import (
	"errors"
	"fmt"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/wire"
)

var (
	ErrZeroPacketCount     = errors.New("capability declares no packets")
	ErrCodeSpaceOverflow   = errors.New("capability range overflows the packet code space")
	ErrDuplicateCapability = errors.New("capability already bound")
	ErrOverlappingRange    = errors.New("capability range overlaps a bound range")
	ErrTableSealed         = errors.New("capability table is sealed")
	ErrCodeOutOfRange      = errors.New("packet code outside the capability range")
	ErrPacketCountMismatch = errors.New("capability packet count differs from its factory")
	ErrUnknownCapability   = errors.New("unknown capability")
)

// Desc identifies a capability by name and version
type Desc = wire.Cap

// Capability is the per-session instance of a sub-protocol
type Capability interface {
	Name() string
	Version() uint
	PacketCount() uint64

	// HandlePacket receives every packet in the capability's range, in wire
	// order. code is relative to the range base. A returned error is treated
	// as a protocol violation by the remote.
	HandlePacket(code uint64, packet *wire.Packet) error
}

// DescOf returns the identity of a capability
func DescOf(c Capability) Desc {
	return Desc{Name: c.Name(), Version: c.Version()}
}

// Conn is the view of its session a capability holds. It never owns the
// session.
type Conn interface {
	ID() enode.ID
	Send(frame []byte) error
	AddRating(delta int64)
	AddNote(key, value string)
	Disconnect(reason wire.DiscReason)

	// Capabilities returns the negotiated table, nil before the handshake
	Capabilities() *Table
}

// Range is the contiguous block of packet codes owned by one capability
type Range struct {
	Base  wire.PacketType
	Count uint64
}

// End is the first code after the range
func (r Range) End() wire.PacketType {
	return r.Base + wire.PacketType(r.Count)
}

func (r Range) Contains(code wire.PacketType) bool {
	return code >= r.Base && code < r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", uint64(r.Base), uint64(r.End()))
}

// Prep starts a frame for a code relative to the range
func (r Range) Prep(code uint64, argc int) (*wire.Builder, error) {
	if code >= r.Count {
		return nil, fmt.Errorf("%w: %d not below %d", ErrCodeOutOfRange, code, r.Count)
	}

	return wire.Prep(r.Base+wire.PacketType(code), argc), nil
}
