package session

// State is the lifecycle stage of a session
type State int32

const (
	Connecting State = iota
	Active
	Disconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Disconnecting:
		return "disconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionMode decides how the remote hello identity is verified
type ConnectionMode int

const (
	// ExpectedIdentity rejects a remote whose id differs from the dialed node
	ExpectedIdentity ConnectionMode = iota

	// IdentityOverride dials a known node but accepts whatever id the remote
	// presents. Reserved for operator pinned peers.
	IdentityOverride

	// ManualEndpoint knows only an address; the identity comes from the
	// remote hello. Inbound connections use it too.
	ManualEndpoint
)

func (m ConnectionMode) String() string {
	switch m {
	case ExpectedIdentity:
		return "expected"
	case IdentityOverride:
		return "override"
	case ManualEndpoint:
		return "manual"
	default:
		return "unknown"
	}
}
