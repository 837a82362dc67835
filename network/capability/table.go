package capability

import (
	"fmt"
	"sort"

	"github.com/0xPolygon/edge-p2p/network/wire"
)

// Kind is the result of a table lookup
type Kind int

const (
	// Core codes are interpreted by the session itself
	Core Kind = iota
	// Bound codes belong to a capability
	Bound
	// Unbound codes fall outside every range
	Unbound
)

type binding struct {
	cap Capability
	rng Range
}

// Table maps packet codes to the capabilities bound on one session. It is
// written during negotiation only; after Seal it is read-only and safe for
// concurrent lookups.
type Table struct {
	bindings []binding // ordered by range base
	byDesc   map[Desc]int
	sealed   bool
}

func NewTable() *Table {
	return &Table{
		byDesc: map[Desc]int{},
	}
}

// Ceiling is the first code not owned by any bound capability
func (t *Table) Ceiling() wire.PacketType {
	if len(t.bindings) == 0 {
		return wire.UserPacket
	}

	return t.bindings[len(t.bindings)-1].rng.End()
}

// Bind assigns c the range starting at ceiling with the width of its packet
// count
func (t *Table) Bind(c Capability, ceiling wire.PacketType) (Range, error) {
	desc := DescOf(c)
	count := c.PacketCount()

	switch {
	case t.sealed:
		return Range{}, ErrTableSealed
	case count == 0:
		return Range{}, fmt.Errorf("%w: %s", ErrZeroPacketCount, desc)
	case ceiling < t.Ceiling():
		return Range{}, fmt.Errorf("%w: %s at %d, ceiling is %d", ErrOverlappingRange, desc, ceiling, t.Ceiling())
	case ceiling > wire.MaxPacketType, count > uint64(wire.MaxPacketType)+1-uint64(ceiling):
		return Range{}, fmt.Errorf("%w: %s needs %d codes from %d", ErrCodeSpaceOverflow, desc, count, ceiling)
	}

	if _, ok := t.byDesc[desc]; ok {
		return Range{}, fmt.Errorf("%w: %s", ErrDuplicateCapability, desc)
	}

	rng := Range{Base: ceiling, Count: count}

	t.byDesc[desc] = len(t.bindings)
	t.bindings = append(t.bindings, binding{cap: c, rng: rng})

	return rng, nil
}

// Seal freezes the table
func (t *Table) Seal() {
	t.sealed = true
}

// Lookup finds the owner of an absolute packet code. Codes below the first
// bound range are core packets.
func (t *Table) Lookup(code wire.PacketType) (Capability, Range, Kind) {
	first := wire.UserPacket
	if len(t.bindings) > 0 {
		first = t.bindings[0].rng.Base
	}

	if code < first {
		return nil, Range{}, Core
	}

	i := sort.Search(len(t.bindings), func(i int) bool {
		return t.bindings[i].rng.End() > code
	})

	if i < len(t.bindings) && t.bindings[i].rng.Contains(code) {
		return t.bindings[i].cap, t.bindings[i].rng, Bound
	}

	return nil, Range{}, Unbound
}

// Dispatch hands a packet to c with its code made relative to rng
func (t *Table) Dispatch(c Capability, rng Range, packet *wire.Packet) error {
	if !rng.Contains(packet.Type) {
		return fmt.Errorf("%w: %s not in %s", ErrCodeOutOfRange, packet.Type, rng)
	}

	if err := c.HandlePacket(uint64(packet.Type-rng.Base), packet); err != nil {
		return fmt.Errorf("%s: %w", DescOf(c), err)
	}

	return nil
}

// Get returns the capability bound under desc
func (t *Table) Get(desc Desc) (Capability, bool) {
	i, ok := t.byDesc[desc]
	if !ok {
		return nil, false
	}

	return t.bindings[i].cap, true
}

// RangeOf returns the range bound to desc
func (t *Table) RangeOf(desc Desc) (Range, bool) {
	i, ok := t.byDesc[desc]
	if !ok {
		return Range{}, false
	}

	return t.bindings[i].rng, true
}

// Descs lists the bound capabilities in range order
func (t *Table) Descs() wire.Caps {
	descs := make(wire.Caps, 0, len(t.bindings))
	for _, b := range t.bindings {
		descs = append(descs, DescOf(b.cap))
	}

	return descs
}

func (t *Table) Len() int {
	return len(t.bindings)
}

// Of returns the first bound capability of type T. A nil table or no match
// yields false.
func Of[T Capability](t *Table) (T, bool) {
	var zero T

	if t == nil {
		return zero, false
	}

	for _, b := range t.bindings {
		if c, ok := b.cap.(T); ok {
			return c, true
		}
	}

	return zero, false
}
