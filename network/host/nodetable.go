package host

import (
	"sync"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/knownnodes"
	"github.com/0xPolygon/edge-p2p/network/wire"
)

// NodeTable holds every node the host has learned about. Each node gets a
// stable index on first insertion; sessions track exchanged nodes by it.
type NodeTable struct {
	lock  sync.RWMutex
	nodes []*enode.Node
	byID  map[enode.ID]uint
}

func NewNodeTable() *NodeTable {
	return &NodeTable{byID: map[enode.ID]uint{}}
}

// Add inserts n or refreshes its endpoint. It returns the node index and
// whether the node was new. Nodes that cannot be dialed are refused.
func (t *NodeTable) Add(n *enode.Node) (uint, bool) {
	if n == nil || n.ID.IsZero() || !n.IsDialable() {
		return 0, false
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if idx, ok := t.byID[n.ID]; ok {
		t.nodes[idx] = n

		return idx, false
	}

	idx := uint(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.byID[n.ID] = idx

	return idx, true
}

// Index returns the index of the node with the given id
func (t *NodeTable) Index(id enode.ID) (uint, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	idx, ok := t.byID[id]

	return idx, ok
}

// Get returns the node at idx
func (t *NodeTable) Get(idx uint) (*enode.Node, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if idx >= uint(len(t.nodes)) {
		return nil, false
	}

	return t.nodes[idx], true
}

func (t *NodeTable) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return len(t.nodes)
}

// Nodes returns every node in index order
func (t *NodeTable) Nodes() []*enode.Node {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return append([]*enode.Node{}, t.nodes...)
}

// Candidates returns every node except exclude as gossip candidates
func (t *NodeTable) Candidates(exclude enode.ID) []knownnodes.Candidate {
	t.lock.RLock()
	defer t.lock.RUnlock()

	out := make([]knownnodes.Candidate, 0, len(t.nodes))

	for idx, n := range t.nodes {
		if n.ID == exclude {
			continue
		}

		out = append(out, knownnodes.Candidate{
			Index: uint(idx),
			Peer:  wire.PeerEndpoint{IP: n.IP, Port: n.TCP, ID: n.ID},
		})
	}

	return out
}
