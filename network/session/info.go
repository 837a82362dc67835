package session

import (
	"time"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/wire"
)

// PeerInfo is a snapshot of what the session knows about its peer
type PeerInfo struct {
	ID             enode.ID          `json:"id"`
	ClientID       string            `json:"client"`
	Host           string            `json:"host"`
	Port           uint16            `json:"port"`
	Caps           wire.Caps         `json:"caps"`
	LastPing       time.Duration     `json:"last_ping"`
	LastSeen       time.Time         `json:"last_seen"`
	ConnectedAt    time.Time         `json:"connected_at"`
	DisconnectedAt time.Time         `json:"disconnected_at,omitempty"`
	ConnID         string            `json:"conn_id"`
	Mode           string            `json:"mode"`
	State          string            `json:"state"`
	Rating         int64             `json:"rating"`
	Notes          map[string]string `json:"notes"`
}

func (p PeerInfo) copy() PeerInfo {
	out := p

	out.Caps = append(wire.Caps{}, p.Caps...)
	out.Notes = make(map[string]string, len(p.Notes))

	for k, v := range p.Notes {
		out.Notes[k] = v
	}

	return out
}
