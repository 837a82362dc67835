package dial

import (
	"fmt"
	"net"
	"strconv"

	"github.com/0xPolygon/edge-p2p/network/enode"
)

type Priority uint64

const (
	PriorityRequestedDial Priority = 1
	PriorityRandomDial    Priority = 10
)

// Target is an endpoint worth dialing. Node is nil for manual peers whose
// identity is learned from the handshake.
type Target struct {
	Node   *enode.Node
	Addr   string
	Pinned bool
}

// NodeTarget dials n expecting its identity
func NodeTarget(n *enode.Node) *Target {
	return &Target{Node: n, Addr: n.TCPAddr().String()}
}

// PinnedTarget dials n and accepts a different identity behind its endpoint
func PinnedTarget(n *enode.Node) *Target {
	return &Target{Node: n, Addr: n.TCPAddr().String(), Pinned: true}
}

// AddrTarget dials a host:port with no identity expectation
func AddrTarget(addr string) (*Target, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	if host == "" {
		return nil, fmt.Errorf("missing host in %q", addr)
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return nil, fmt.Errorf("invalid port in %q", addr)
	}

	return &Target{Addr: addr}, nil
}

// Key identifies the target in the queue: the node id when known, the
// address otherwise
func (t *Target) Key() string {
	if t.Node != nil {
		return t.Node.ID.String()
	}

	return "tcp://" + t.Addr
}

func (t *Target) String() string {
	if t.Node != nil {
		return t.Node.String()
	}

	return t.Addr
}
