package capability

import (
	"errors"
	"testing"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type mockCap struct {
	name    string
	version uint
	count   uint64

	handled []uint64
	err     error
}

func (m *mockCap) Name() string        { return m.name }
func (m *mockCap) Version() uint       { return m.version }
func (m *mockCap) PacketCount() uint64 { return m.count }

func (m *mockCap) HandlePacket(code uint64, _ *wire.Packet) error {
	m.handled = append(m.handled, code)

	return m.err
}

// syncCap is a distinct type for typed lookups
type syncCap struct {
	mockCap
}

type nullConn struct{}

func (nullConn) ID() enode.ID               { return enode.ID{} }
func (nullConn) Send([]byte) error          { return nil }
func (nullConn) AddRating(int64)            {}
func (nullConn) AddNote(string, string)     {}
func (nullConn) Disconnect(wire.DiscReason) {}
func (nullConn) Capabilities() *Table       { return nil }

func TestTable_BindContiguous(t *testing.T) {
	table := NewTable()

	eth := &mockCap{name: "eth", version: 63, count: 17}
	shh := &mockCap{name: "shh", version: 2, count: 8}

	r1, err := table.Bind(eth, table.Ceiling())
	require.NoError(t, err)
	assert.Equal(t, Range{Base: wire.UserPacket, Count: 17}, r1)

	r2, err := table.Bind(shh, table.Ceiling())
	require.NoError(t, err)
	assert.Equal(t, r1.End(), r2.Base)
	assert.Equal(t, wire.UserPacket+25, table.Ceiling())

	assert.Equal(t, wire.Caps{{Name: "eth", Version: 63}, {Name: "shh", Version: 2}}, table.Descs())
}

func TestTable_BindErrors(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(*Table)
		cap     *mockCap
		ceiling wire.PacketType
		err     error
	}{
		{
			name:    "zero packet count",
			cap:     &mockCap{name: "a", count: 0},
			ceiling: wire.UserPacket,
			err:     ErrZeroPacketCount,
		},
		{
			name:    "overflows the code space",
			cap:     &mockCap{name: "a", count: 2},
			ceiling: wire.MaxPacketType,
			err:     ErrCodeSpaceOverflow,
		},
		{
			name:    "ceiling beyond the code space",
			cap:     &mockCap{name: "a", count: 1},
			ceiling: wire.MaxPacketType + 5,
			err:     ErrCodeSpaceOverflow,
		},
		{
			name: "overlaps a bound range",
			prepare: func(tb *Table) {
				_, _ = tb.Bind(&mockCap{name: "a", count: 4}, wire.UserPacket)
			},
			cap:     &mockCap{name: "b", count: 1},
			ceiling: wire.UserPacket + 2,
			err:     ErrOverlappingRange,
		},
		{
			name:    "overlaps the core range",
			cap:     &mockCap{name: "b", count: 1},
			ceiling: wire.PingPacket,
			err:     ErrOverlappingRange,
		},
		{
			name: "duplicate",
			prepare: func(tb *Table) {
				_, _ = tb.Bind(&mockCap{name: "a", version: 1, count: 4}, wire.UserPacket)
			},
			cap:     &mockCap{name: "a", version: 1, count: 4},
			ceiling: wire.UserPacket + 4,
			err:     ErrDuplicateCapability,
		},
		{
			name:    "sealed",
			prepare: func(tb *Table) { tb.Seal() },
			cap:     &mockCap{name: "a", count: 1},
			ceiling: wire.UserPacket,
			err:     ErrTableSealed,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			table := NewTable()
			if c.prepare != nil {
				c.prepare(table)
			}

			_, err := table.Bind(c.cap, c.ceiling)
			assert.ErrorIs(t, err, c.err)
		})
	}
}

func TestTable_LookupAndDispatch(t *testing.T) {
	table := NewTable()

	eth := &mockCap{name: "eth", version: 63, count: 3}
	shh := &mockCap{name: "shh", version: 2, count: 2}

	_, err := table.Bind(eth, table.Ceiling())
	require.NoError(t, err)

	_, err = table.Bind(shh, table.Ceiling())
	require.NoError(t, err)

	table.Seal()

	_, _, kind := table.Lookup(wire.PingPacket)
	assert.Equal(t, Core, kind)

	_, _, kind = table.Lookup(wire.PacketType(0x0f))
	assert.Equal(t, Core, kind)

	c, rng, kind := table.Lookup(wire.UserPacket + 4)
	require.Equal(t, Bound, kind)
	assert.Equal(t, shh, c)

	require.NoError(t, table.Dispatch(c, rng, &wire.Packet{Type: wire.UserPacket + 4}))
	assert.Equal(t, []uint64{1}, shh.handled)

	_, _, kind = table.Lookup(wire.UserPacket + 5)
	assert.Equal(t, Unbound, kind)

	assert.ErrorIs(t, table.Dispatch(eth, rng, &wire.Packet{Type: wire.UserPacket}), ErrCodeOutOfRange)
}

func TestTable_DispatchError(t *testing.T) {
	errBad := errors.New("bad block")
	eth := &mockCap{name: "eth", version: 63, count: 3, err: errBad}

	table := NewTable()
	rng, err := table.Bind(eth, table.Ceiling())
	require.NoError(t, err)

	err = table.Dispatch(eth, rng, &wire.Packet{Type: wire.UserPacket + 2})
	assert.ErrorIs(t, err, errBad)
	assert.Contains(t, err.Error(), "eth/63")
}

func TestTable_LookupEmpty(t *testing.T) {
	table := NewTable()

	_, _, kind := table.Lookup(wire.PeersPacket)
	assert.Equal(t, Core, kind)

	_, _, kind = table.Lookup(wire.UserPacket)
	assert.Equal(t, Unbound, kind)
}

func TestTable_RangesDisjoint(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		counts := rapid.SliceOfN(rapid.Uint64Range(1, 64), 1, 20).Draw(t, "counts")

		table := NewTable()
		ranges := make([]Range, 0, len(counts))

		for i, count := range counts {
			rng, err := table.Bind(&mockCap{name: string(rune('a' + i)), count: count}, table.Ceiling())
			require.NoError(t, err)

			ranges = append(ranges, rng)
		}

		require.Equal(t, wire.UserPacket, ranges[0].Base)

		for i := 1; i < len(ranges); i++ {
			require.Equal(t, ranges[i-1].End(), ranges[i].Base, "ranges must be contiguous")
		}

		code := wire.PacketType(rapid.Uint64Range(0, uint64(table.Ceiling())+8).Draw(t, "code"))
		c, rng, kind := table.Lookup(code)

		owners := 0
		for _, r := range ranges {
			if r.Contains(code) {
				owners++

				require.Equal(t, r, rng)
			}
		}

		switch {
		case code < wire.UserPacket:
			require.Equal(t, Core, kind)
		case owners == 1:
			require.Equal(t, Bound, kind)
			require.NotNil(t, c)
		default:
			require.Zero(t, owners)
			require.Equal(t, Unbound, kind)
		}
	})
}

func TestOf(t *testing.T) {
	table := NewTable()

	_, ok := Of[*syncCap](table)
	assert.False(t, ok)

	_, ok = Of[*syncCap](nil)
	assert.False(t, ok)

	sc := &syncCap{mockCap{name: "sync", version: 1, count: 1}}

	_, err := table.Bind(&mockCap{name: "eth", version: 63, count: 1}, table.Ceiling())
	require.NoError(t, err)

	_, err = table.Bind(sc, table.Ceiling())
	require.NoError(t, err)

	found, ok := Of[*syncCap](table)
	require.True(t, ok)
	assert.Same(t, sc, found)

	got, ok := table.Get(Desc{Name: "sync", Version: 1})
	require.True(t, ok)
	assert.Same(t, sc, got)
}

func TestRange_Prep(t *testing.T) {
	rng := Range{Base: wire.UserPacket + 3, Count: 2}

	b, err := rng.Prep(1, 0)
	require.NoError(t, err)

	frame, err := b.Seal()
	require.NoError(t, err)

	p, err := wire.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, wire.UserPacket+4, p.Type)

	_, err = rng.Prep(2, 0)
	assert.ErrorIs(t, err, ErrCodeOutOfRange)
}

func definition(name string, version uint, count uint64) *Definition {
	return &Definition{
		Cap:     Desc{Name: name, Version: version},
		Packets: count,
		Create: func(_ Conn, rng Range) (Capability, error) {
			return &mockCap{name: name, version: version, count: rng.Count}, nil
		},
	}
}

func TestRegistry_Negotiate(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(definition("shh", 2, 8)))
	require.NoError(t, registry.Register(definition("eth", 63, 17)))
	require.NoError(t, registry.Register(definition("les", 2, 21)))

	assert.ErrorIs(t, registry.Register(definition("eth", 63, 17)), ErrDuplicateCapability)
	assert.ErrorIs(t, registry.Register(definition("bzz", 1, 0)), ErrZeroPacketCount)

	remote := wire.Caps{{Name: "shh", Version: 2}, {Name: "eth", Version: 63}, {Name: "eth", Version: 62}, {Name: "shh", Version: 2}}

	table, err := registry.Negotiate(nullConn{}, remote)
	require.NoError(t, err)

	assert.Equal(t, wire.Caps{{Name: "eth", Version: 63}, {Name: "shh", Version: 2}}, table.Descs())

	ethRange, ok := table.RangeOf(Desc{Name: "eth", Version: 63})
	require.True(t, ok)
	assert.Equal(t, Range{Base: wire.UserPacket, Count: 17}, ethRange)

	shhRange, ok := table.RangeOf(Desc{Name: "shh", Version: 2})
	require.True(t, ok)
	assert.Equal(t, Range{Base: wire.UserPacket + 17, Count: 8}, shhRange)

	_, err = table.Bind(&mockCap{name: "x", count: 1}, table.Ceiling())
	assert.ErrorIs(t, err, ErrTableSealed)
}

func TestRegistry_NegotiateCountMismatch(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&Definition{
		Cap:     Desc{Name: "eth", Version: 63},
		Packets: 4,
		Create: func(Conn, Range) (Capability, error) {
			return &mockCap{name: "eth", version: 63, count: 5}, nil
		},
	}))

	_, err := registry.Negotiate(nullConn{}, wire.Caps{{Name: "eth", Version: 63}})
	assert.ErrorIs(t, err, ErrPacketCountMismatch)
}

func TestRegistry_Descs(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(definition("shh", 2, 1)))
	require.NoError(t, registry.Register(definition("eth", 63, 1)))

	assert.Equal(t, wire.Caps{{Name: "eth", Version: 63}, {Name: "shh", Version: 2}}, registry.Descs())
}
