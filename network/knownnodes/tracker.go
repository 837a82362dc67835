package knownnodes

import (
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/bits-and-blooms/bitset"
)

// Candidate is a node-table entry that may be advertised to a remote
type Candidate struct {
	Index uint
	Peer  wire.PeerEndpoint
}

// Tracker remembers which node-table indices were already exchanged with one
// remote. Indices are only ever added. It is not safe for concurrent use;
// the owning session serializes every call.
type Tracker struct {
	known *bitset.BitSet

	// weRequested is set while a get-peers we sent is unanswered
	weRequested bool

	// theyRequested is set while a get-peers from the remote is unanswered
	theyRequested bool
}

func New() *Tracker {
	return &Tracker{
		known: bitset.New(0),
	}
}

// MarkKnown records idx without sending anything
func (t *Tracker) MarkKnown(idx uint) {
	t.known.Set(idx)
}

func (t *Tracker) IsKnown(idx uint) bool {
	return t.known.Test(idx)
}

// Count returns the number of known indices
func (t *Tracker) Count() uint {
	return t.known.Count()
}

// Indices returns the known indices in ascending order
func (t *Tracker) Indices() []uint {
	out := make([]uint, 0, t.known.Count())

	for i, ok := t.known.NextSet(0); ok; i, ok = t.known.NextSet(i + 1) {
		out = append(out, i)
	}

	return out
}

// Requested reports whether our get-peers is outstanding
func (t *Tracker) Requested() bool {
	return t.weRequested
}

// Pending reports whether the remote is waiting for a peers answer
func (t *Tracker) Pending() bool {
	return t.theyRequested
}

// EnsureRequested calls request unless a request is already outstanding. It
// reports whether request was called and succeeded.
func (t *Tracker) EnsureRequested(request func() error) (bool, error) {
	if t.weRequested {
		return false, nil
	}

	if err := request(); err != nil {
		return false, err
	}

	t.weRequested = true

	return true, nil
}

// ResponseReceived clears the outstanding request
func (t *Tracker) ResponseReceived() {
	t.weRequested = false
}

// NoteRequest records that the remote asked for peers
func (t *Tracker) NoteRequest() {
	t.theyRequested = true
}

// ServiceRequest sends up to limit candidates the remote does not know yet
// and marks each of them known. With nothing to send the request stays
// pending so it can be retried once new candidates exist.
func (t *Tracker) ServiceRequest(
	candidates []Candidate,
	limit int,
	send func([]wire.PeerEndpoint) error,
) ([]Candidate, error) {
	picked := make([]Candidate, 0, limit)
	seen := bitset.New(0)

	for _, c := range candidates {
		if len(picked) >= limit {
			break
		}

		if t.known.Test(c.Index) || seen.Test(c.Index) {
			continue
		}

		seen.Set(c.Index)
		picked = append(picked, c)
	}

	if len(picked) == 0 {
		t.theyRequested = true

		return nil, nil
	}

	peers := make([]wire.PeerEndpoint, len(picked))
	for i, c := range picked {
		peers[i] = c.Peer
	}

	if err := send(peers); err != nil {
		return nil, err
	}

	t.known.InPlaceUnion(seen)
	t.theyRequested = false

	return picked, nil
}
