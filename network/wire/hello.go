package wire

import (
	"fmt"
	"math"
	"sort"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/umbracle/fastrlp"
)

// Cap is a capability advertised in the hello packet
type Cap struct {
	Name    string
	Version uint
}

func (c Cap) String() string {
	return fmt.Sprintf("%s/%d", c.Name, c.Version)
}

// Less orders capabilities by name, then version
func (c Cap) Less(other Cap) bool {
	if c.Name == other.Name {
		return c.Version < other.Version
	}

	return c.Name < other.Name
}

// Caps is a sortable capability list
type Caps []Cap

func (c Caps) Len() int           { return len(c) }
func (c Caps) Less(i, j int) bool { return c[i].Less(c[j]) }
func (c Caps) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }

// Sorted returns a sorted copy
func (c Caps) Sorted() Caps {
	out := make(Caps, len(c))
	copy(out, c)
	sort.Sort(out)

	return out
}

// Hello is the handshake packet each side sends first
type Hello struct {
	Version    uint64
	ClientID   string
	Caps       Caps
	ListenPort uint16
	ID         enode.ID
}

const helloArgs = 5

// Encode seals the hello packet
func (h *Hello) Encode() ([]byte, error) {
	b := Prep(HelloPacket, helloArgs)
	ar := b.Arena()

	b.AppendUint(h.Version)
	b.AppendString(h.ClientID)

	if len(h.Caps) == 0 {
		b.Append(ar.NewNullArray())
	} else {
		caps := ar.NewArray()

		for _, c := range h.Caps {
			entry := ar.NewArray()
			entry.Set(ar.NewString(c.Name))
			entry.Set(ar.NewUint(uint64(c.Version)))
			caps.Set(entry)
		}

		b.Append(caps)
	}

	b.AppendUint(uint64(h.ListenPort))
	b.AppendBytes(h.ID[:])

	return b.Seal()
}

// DecodeHello reads a hello packet. Extra trailing arguments are ignored.
func DecodeHello(p *Packet) (*Hello, error) {
	if p.Type != HelloPacket {
		return nil, fmt.Errorf("%w: expected hello, found %s", ErrInvalidPacketType, p.Type)
	}

	h := &Hello{}
	if err := p.Unmarshal(h.unmarshalArgs); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Hello) unmarshalArgs(_ *fastrlp.Parser, args []*fastrlp.Value) error {
	if len(args) < helloArgs {
		return fmt.Errorf("incorrect number of elements to decode hello, expected %d but found %d", helloArgs, len(args))
	}

	var err error

	if h.Version, err = args[0].GetUint64(); err != nil {
		return fmt.Errorf("hello version: %w", err)
	}

	if h.ClientID, err = args[1].GetString(); err != nil {
		return fmt.Errorf("hello client id: %w", err)
	}

	caps, err := args[2].GetElems()
	if err != nil {
		return fmt.Errorf("hello caps: %w", err)
	}

	h.Caps = make(Caps, 0, len(caps))

	for _, c := range caps {
		elems, err := c.GetElems()
		if err != nil {
			return fmt.Errorf("hello cap: %w", err)
		}

		if len(elems) != 2 {
			return fmt.Errorf("hello cap: expected 2 elements but found %d", len(elems))
		}

		name, err := elems[0].GetString()
		if err != nil {
			return fmt.Errorf("hello cap name: %w", err)
		}

		version, err := elems[1].GetUint64()
		if err != nil {
			return fmt.Errorf("hello cap version: %w", err)
		}

		h.Caps = append(h.Caps, Cap{Name: name, Version: uint(version)})
	}

	port, err := args[3].GetUint64()
	if err != nil {
		return fmt.Errorf("hello listen port: %w", err)
	}

	if port > math.MaxUint16 {
		return fmt.Errorf("hello listen port %d out of range", port)
	}

	h.ListenPort = uint16(port)

	id, err := args[4].GetBytes(nil)
	if err != nil {
		return fmt.Errorf("hello id: %w", err)
	}

	if h.ID, err = enode.BytesToID(id); err != nil {
		return err
	}

	return nil
}
