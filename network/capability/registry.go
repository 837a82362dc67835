package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/0xPolygon/edge-p2p/network/wire"
)

// Factory creates the instance of a capability for one session
type Factory interface {
	Desc() Desc
	PacketCount() uint64
	New(conn Conn, rng Range) (Capability, error)
}

// Definition is a Factory built from a constructor function
type Definition struct {
	Cap     Desc
	Packets uint64
	Create  func(conn Conn, rng Range) (Capability, error)
}

func (d *Definition) Desc() Desc {
	return d.Cap
}

func (d *Definition) PacketCount() uint64 {
	return d.Packets
}

func (d *Definition) New(conn Conn, rng Range) (Capability, error) {
	return d.Create(conn, rng)
}

// Registry holds the capabilities a host offers
type Registry struct {
	lock      sync.RWMutex
	factories map[Desc]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[Desc]Factory{},
	}
}

// Register adds a factory
func (r *Registry) Register(f Factory) error {
	desc := f.Desc()

	if f.PacketCount() == 0 {
		return fmt.Errorf("%w: %s", ErrZeroPacketCount, desc)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.factories[desc]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, desc)
	}

	r.factories[desc] = f

	return nil
}

// Descs lists the registered capabilities sorted
func (r *Registry) Descs() wire.Caps {
	r.lock.RLock()
	defer r.lock.RUnlock()

	descs := make(wire.Caps, 0, len(r.factories))
	for desc := range r.factories {
		descs = append(descs, desc)
	}

	sort.Sort(descs)

	return descs
}

// Shared returns the sorted, de-duplicated capabilities both sides offer
func (r *Registry) Shared(remote wire.Caps) wire.Caps {
	r.lock.RLock()
	defer r.lock.RUnlock()

	seen := map[Desc]struct{}{}
	shared := wire.Caps{}

	for _, desc := range remote {
		if _, ok := seen[desc]; ok {
			continue
		}

		seen[desc] = struct{}{}

		if _, ok := r.factories[desc]; ok {
			shared = append(shared, desc)
		}
	}

	sort.Sort(shared)

	return shared
}

// Negotiate instantiates every shared capability for conn and binds them
// in sorted order from UserPacket. The returned table is sealed.
func (r *Registry) Negotiate(conn Conn, remote wire.Caps) (*Table, error) {
	table := NewTable()

	for _, desc := range r.Shared(remote) {
		r.lock.RLock()
		f, ok := r.factories[desc]
		r.lock.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, desc)
		}

		want := Range{Base: table.Ceiling(), Count: f.PacketCount()}

		c, err := f.New(conn, want)
		if err != nil {
			return nil, fmt.Errorf("failed to create capability %s: %w", desc, err)
		}

		got, err := table.Bind(c, want.Base)
		if err != nil {
			return nil, err
		}

		if got != want {
			return nil, fmt.Errorf("%w: %s bound %s, expected %s", ErrPacketCountMismatch, desc, got, want)
		}
	}

	table.Seal()

	return table, nil
}
