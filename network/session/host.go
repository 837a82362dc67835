package session

import (
	"github.com/0xPolygon/edge-p2p/network/capability"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/knownnodes"
	"github.com/0xPolygon/edge-p2p/network/wire"
)

// Host is the collaborator that owns sessions: it supplies the local
// identity and capabilities, admits peers and keeps the node table.
// Callbacks run on the session loop and must not block on the session.
type Host interface {
	ID() enode.ID
	ProtocolVersion() uint64
	ClientID() string
	ListenPort() uint16
	Capabilities() *capability.Registry

	// Admit is called once the remote hello passed the session checks.
	// Returning false rejects the peer with the given reason.
	Admit(s *Session) (wire.DiscReason, bool)

	// Candidates lists node-table entries that may be gossiped to s
	Candidates(s *Session) []knownnodes.Candidate

	// NoteNodes hands over entries learnt from a peers packet
	NoteNodes(s *Session, peers []wire.PeerEndpoint)

	// OnDropped is called exactly once per session, after the socket is
	// closed and no goroutine of the session is left running
	OnDropped(s *Session, reason wire.DiscReason)
}
