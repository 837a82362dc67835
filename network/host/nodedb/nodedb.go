package nodedb

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/0xPolygon/edge-p2p/helper/keccak"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/umbracle/fastrlp"
)

var (
	ErrNotFound       = errors.New("node not found")
	ErrUnknownBackend = errors.New("unknown node store backend")
)

// Backend names accepted by Open
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

var nodePrefix = []byte("n:")

// Record is the persisted view of a known node
type Record struct {
	ID         enode.ID
	IP         net.IP
	Port       uint16
	LastSeen   time.Time
	LastReason wire.DiscReason
	// Dropped is set once the node has disconnected at least once
	Dropped bool
}

// Node returns the dialable node described by r
func (r *Record) Node() *enode.Node {
	return enode.New(r.ID, r.IP, r.Port)
}

// Store persists known nodes keyed by the keccak256 of their id
type Store interface {
	Put(r *Record) error
	Get(id enode.ID) (*Record, error)
	Delete(id enode.ID) error
	// Iterate calls fn for every record until fn returns false
	Iterate(fn func(r *Record) bool) error
	Close() error
}

// Open opens the store for backend. File backends live under dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendLevelDB:
		return NewLevelDBStore(filepath.Join(dir, "nodes"))
	case BackendBolt:
		return NewBoltStore(filepath.Join(dir, "nodes.db"))
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

func nodeKey(id enode.ID) []byte {
	key := make([]byte, 0, len(nodePrefix)+32)
	key = append(key, nodePrefix...)

	return keccak.Keccak256(key, id[:])
}

// MarshalRLPWith appends the record to an arena list
func (r *Record) MarshalRLPWith(ar *fastrlp.Arena) *fastrlp.Value {
	ip := r.IP.To4()
	if ip == nil {
		ip = r.IP.To16()
	}

	v := ar.NewArray()
	v.Set(ar.NewBytes(r.ID[:]))
	v.Set(ar.NewBytes(ip))
	v.Set(ar.NewUint(uint64(r.Port)))

	if r.LastSeen.IsZero() {
		v.Set(ar.NewUint(0))
	} else {
		v.Set(ar.NewUint(uint64(r.LastSeen.Unix())))
	}

	v.Set(ar.NewUint(uint64(r.LastReason)))
	v.Set(ar.NewBool(r.Dropped))

	return v
}

// MarshalRLP encodes the record
func (r *Record) MarshalRLP() []byte {
	ar := fastrlp.DefaultArenaPool.Get()
	defer fastrlp.DefaultArenaPool.Put(ar)

	return r.MarshalRLPWith(ar).MarshalTo(nil)
}

// UnmarshalRLP decodes a record written by MarshalRLP
func (r *Record) UnmarshalRLP(buf []byte) error {
	pr := fastrlp.DefaultParserPool.Get()
	defer fastrlp.DefaultParserPool.Put(pr)

	v, err := pr.Parse(buf)
	if err != nil {
		return err
	}

	return r.UnmarshalRLPFrom(pr, v)
}

// UnmarshalRLPFrom reads the record fields from a parsed list
func (r *Record) UnmarshalRLPFrom(_ *fastrlp.Parser, v *fastrlp.Value) error {
	elems, err := v.GetElems()
	if err != nil {
		return err
	}

	if len(elems) != 6 {
		return fmt.Errorf("incorrect number of elements to decode node record, expected 6 but found %d", len(elems))
	}

	id, err := elems[0].GetBytes(nil)
	if err != nil {
		return err
	}

	if r.ID, err = enode.BytesToID(id); err != nil {
		return err
	}

	ip, err := elems[1].GetBytes(nil)
	if err != nil {
		return err
	}

	r.IP = net.IP(ip)

	port, err := elems[2].GetUint64()
	if err != nil {
		return err
	}

	r.Port = uint16(port)

	seen, err := elems[3].GetUint64()
	if err != nil {
		return err
	}

	r.LastSeen = time.Time{}
	if seen != 0 {
		r.LastSeen = time.Unix(int64(seen), 0).UTC()
	}

	reason, err := elems[4].GetUint64()
	if err != nil {
		return err
	}

	r.LastReason = wire.DiscReason(reason).Normalize()

	if r.Dropped, err = elems[5].GetBool(); err != nil {
		return err
	}

	return nil
}
