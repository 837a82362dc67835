package wire

import (
	"fmt"

	"github.com/umbracle/fastrlp"
)

// DiscReason is the reason code carried by a disconnect packet
type DiscReason uint64

const (
	DiscRequested DiscReason = iota
	DiscNetworkError
	DiscProtocolError
	DiscUselessPeer
	DiscTooManyPeers
	DiscDuplicatePeer
	DiscIncompatibleVersion
	DiscInvalidIdentity
	DiscClientQuit
	DiscUnexpectedIdentity
	DiscSelfConnect
	DiscPingTimeout

	DiscUnknown DiscReason = 0x0f
)

var discReasonToString = map[DiscReason]string{
	DiscRequested:           "disconnect requested",
	DiscNetworkError:        "network error",
	DiscProtocolError:       "breach of protocol",
	DiscUselessPeer:         "useless peer",
	DiscTooManyPeers:        "too many peers",
	DiscDuplicatePeer:       "already connected",
	DiscIncompatibleVersion: "incompatible p2p protocol version",
	DiscInvalidIdentity:     "invalid node identity",
	DiscClientQuit:          "client quitting",
	DiscUnexpectedIdentity:  "unexpected identity",
	DiscSelfConnect:         "connected to self",
	DiscPingTimeout:         "ping timeout",
	DiscUnknown:             "unknown reason",
}

func (d DiscReason) String() string {
	str, ok := discReasonToString[d]
	if !ok {
		return fmt.Sprintf("unknown disconnect reason %d", uint64(d))
	}

	return str
}

func (d DiscReason) Error() string {
	return d.String()
}

// Normalize maps any code outside the table to DiscUnknown
func (d DiscReason) Normalize() DiscReason {
	if _, ok := discReasonToString[d]; !ok {
		return DiscUnknown
	}

	return d
}

// EncodeDisconnect seals a disconnect packet carrying the reason
func EncodeDisconnect(reason DiscReason) ([]byte, error) {
	b := Prep(DisconnectPacket, 1)
	b.AppendUint(uint64(reason))

	return b.Seal()
}

// DecodeDisconnect reads the reason out of a disconnect packet. A missing or
// unparseable reason yields DiscUnknown.
func DecodeDisconnect(p *Packet) DiscReason {
	reason := DiscUnknown

	_ = p.Unmarshal(func(_ *fastrlp.Parser, args []*fastrlp.Value) error {
		if len(args) == 0 {
			return nil
		}

		code, err := args[0].GetUint64()
		if err != nil {
			return err
		}

		reason = DiscReason(code).Normalize()

		return nil
	})

	return reason
}
