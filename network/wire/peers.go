package wire

import (
	"fmt"
	"math"
	"net"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/umbracle/fastrlp"
)

var ErrTooManyPeers = fmt.Errorf("peers packet carries more than %d entries", MaxPeersPerPacket)

// PeerEndpoint is one entry of a peers packet
type PeerEndpoint struct {
	IP   net.IP
	Port uint16
	ID   enode.ID
}

// Node converts the entry into a node record
func (p PeerEndpoint) Node() *enode.Node {
	return enode.New(p.ID, p.IP, p.Port)
}

// EncodeEmpty seals a packet without arguments (ping, pong, get-peers)
func EncodeEmpty(code PacketType) ([]byte, error) {
	return Prep(code, 0).Seal()
}

// EncodePeers seals a peers packet
func EncodePeers(peers []PeerEndpoint) ([]byte, error) {
	if len(peers) > MaxPeersPerPacket {
		return nil, fmt.Errorf("%w: %d", ErrTooManyPeers, len(peers))
	}

	b := Prep(PeersPacket, len(peers))
	ar := b.Arena()

	for _, p := range peers {
		ip := p.IP.To4()
		if ip == nil {
			ip = p.IP.To16()
		}

		if ip == nil {
			b.Discard()

			return nil, fmt.Errorf("peer %s has no ip address", p.ID.TerminalString())
		}

		entry := ar.NewArray()
		entry.Set(ar.NewBytes(ip))
		entry.Set(ar.NewUint(uint64(p.Port)))
		entry.Set(ar.NewBytes(p.ID[:]))
		b.Append(entry)
	}

	return b.Seal()
}

// DecodePeers reads the entries of a peers packet
func DecodePeers(p *Packet) ([]PeerEndpoint, error) {
	if p.Type != PeersPacket {
		return nil, fmt.Errorf("%w: expected peers, found %s", ErrInvalidPacketType, p.Type)
	}

	var peers []PeerEndpoint

	err := p.Unmarshal(func(_ *fastrlp.Parser, args []*fastrlp.Value) error {
		if len(args) > MaxPeersPerPacket {
			return fmt.Errorf("%w: %d", ErrTooManyPeers, len(args))
		}

		peers = make([]PeerEndpoint, 0, len(args))

		for i, arg := range args {
			entry, err := unmarshalPeer(arg)
			if err != nil {
				return fmt.Errorf("peer entry %d: %w", i, err)
			}

			peers = append(peers, entry)
		}

		return nil
	})

	return peers, err
}

func unmarshalPeer(v *fastrlp.Value) (PeerEndpoint, error) {
	var entry PeerEndpoint

	elems, err := v.GetElems()
	if err != nil {
		return entry, err
	}

	if len(elems) != 3 {
		return entry, fmt.Errorf("expected 3 elements but found %d", len(elems))
	}

	ip, err := elems[0].GetBytes(nil)
	if err != nil {
		return entry, err
	}

	if len(ip) != net.IPv4len && len(ip) != net.IPv6len {
		return entry, fmt.Errorf("invalid ip length %d", len(ip))
	}

	port, err := elems[1].GetUint64()
	if err != nil {
		return entry, err
	}

	if port > math.MaxUint16 {
		return entry, fmt.Errorf("port %d out of range", port)
	}

	id, err := elems[2].GetBytes(nil)
	if err != nil {
		return entry, err
	}

	if entry.ID, err = enode.BytesToID(id); err != nil {
		return entry, err
	}

	entry.IP = net.IP(ip)
	entry.Port = uint16(port)

	return entry, nil
}
