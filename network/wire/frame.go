package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/umbracle/fastrlp"
)

var (
	ErrShortFrame        = errors.New("frame shorter than its header")
	ErrFrameTooLarge     = errors.New("frame exceeds maximum size")
	ErrLengthMismatch    = errors.New("declared length does not match payload")
	ErrMalformedPayload  = errors.New("payload is not a well-formed rlp list")
	ErrInvalidPacketType = errors.New("invalid packet type")
	ErrArgCount          = errors.New("argument count mismatch")
	ErrSealed            = errors.New("frame already sealed")
)

// Builder accumulates the arguments of one outbound packet. It is single
// use: Seal releases the underlying arena.
type Builder struct {
	arena *fastrlp.Arena
	list  *fastrlp.Value

	code   PacketType
	argc   int
	added  int
	sealed bool
}

// Prep starts a frame of the given type that will carry argc arguments
func Prep(code PacketType, argc int) *Builder {
	arena := fastrlp.DefaultArenaPool.Get()

	list := arena.NewArray()
	list.Set(arena.NewUint(uint64(code)))

	return &Builder{
		arena: arena,
		list:  list,
		code:  code,
		argc:  argc,
	}
}

// Arena exposes the arena so callers can build nested values
func (b *Builder) Arena() *fastrlp.Arena {
	return b.arena
}

// Append adds an already built value as the next argument
func (b *Builder) Append(v *fastrlp.Value) *Builder {
	b.list.Set(v)
	b.added++

	return b
}

func (b *Builder) AppendUint(v uint64) *Builder {
	return b.Append(b.arena.NewUint(v))
}

func (b *Builder) AppendBytes(v []byte) *Builder {
	return b.Append(b.arena.NewBytes(v))
}

func (b *Builder) AppendString(v string) *Builder {
	return b.Append(b.arena.NewString(v))
}

// Discard releases a builder that will not be sealed
func (b *Builder) Discard() {
	if b.sealed {
		return
	}

	b.sealed = true
	fastrlp.DefaultArenaPool.Put(b.arena)
}

// Seal writes the length prefix and returns the finished frame
func (b *Builder) Seal() ([]byte, error) {
	if b.sealed {
		return nil, ErrSealed
	}

	b.sealed = true
	defer fastrlp.DefaultArenaPool.Put(b.arena)

	if b.added != b.argc {
		return nil, fmt.Errorf("%w: %s declared %d, appended %d", ErrArgCount, b.code, b.argc, b.added)
	}

	frame := b.list.MarshalTo(make([]byte, HeaderSize, 64))

	size := len(frame) - HeaderSize
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(size))

	return frame, nil
}

// Validate checks the size and shape rules of a single raw frame
func Validate(frame []byte) error {
	_, err := validate(frame)

	return err
}

// IsValid is Validate as a predicate
func IsValid(frame []byte) bool {
	return Validate(frame) == nil
}

func validate(frame []byte) (PacketType, error) {
	if len(frame) < HeaderSize {
		return 0, ErrShortFrame
	}

	if len(frame) > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	declared := binary.BigEndian.Uint32(frame[:HeaderSize])
	if int(declared) != len(frame)-HeaderSize {
		return 0, fmt.Errorf("%w: declared %d, found %d", ErrLengthMismatch, declared, len(frame)-HeaderSize)
	}

	return packetType(frame[HeaderSize:])
}

func packetType(payload []byte) (PacketType, error) {
	content, rest, err := rlp.SplitList(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if len(rest) != 0 {
		return 0, fmt.Errorf("%w: %d trailing bytes after list", ErrLengthMismatch, len(rest))
	}

	if _, err := rlp.CountValues(content); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	code, _, err := rlp.SplitUint64(content)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacketType, err)
	}

	if PacketType(code) > MaxPacketType {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPacketType, code)
	}

	return PacketType(code), nil
}

// Next splits the first complete frame off the head of buf. A nil frame with
// a nil error means more bytes are needed. A frame that can already be told
// apart as invalid (oversize prefix, or a payload list that ends before the
// declared length) is reported without waiting for the remaining bytes.
func Next(buf []byte) (frame []byte, rest []byte, err error) {
	if len(buf) < HeaderSize {
		return nil, buf, nil
	}

	size := binary.BigEndian.Uint32(buf[:HeaderSize])
	if size > MaxPayloadSize {
		return nil, buf, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, size)
	}

	total := HeaderSize + int(size)
	if len(buf) < total {
		return nil, buf, checkPartial(buf[HeaderSize:], size)
	}

	return buf[:total], buf[total:], nil
}

func checkPartial(payload []byte, declared uint32) error {
	if len(payload) == 0 {
		return nil
	}

	_, rest, err := rlp.SplitList(payload)

	switch {
	case err == nil:
		return fmt.Errorf(
			"%w: declared %d, list ends after %d",
			ErrLengthMismatch, declared, len(payload)-len(rest),
		)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, rlp.ErrValueTooLarge):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
}

// Packet is a validated inbound frame
type Packet struct {
	Type PacketType

	// Payload is the rlp list [type, args...]
	Payload []byte
}

// Decode validates a frame and returns its packet. The payload is copied so
// the frame buffer can be reused.
func Decode(frame []byte) (*Packet, error) {
	code, err := validate(frame)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, len(frame)-HeaderSize)
	copy(payload, frame[HeaderSize:])

	return &Packet{Type: code, Payload: payload}, nil
}

// Unmarshal parses the packet arguments and hands them to fn. Values are
// only valid for the duration of the call.
func (p *Packet) Unmarshal(fn func(pr *fastrlp.Parser, args []*fastrlp.Value) error) error {
	pr := fastrlp.DefaultParserPool.Get()
	defer fastrlp.DefaultParserPool.Put(pr)

	v, err := pr.Parse(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	elems, err := v.GetElems()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if len(elems) == 0 {
		return ErrInvalidPacketType
	}

	return fn(pr, elems[1:])
}

// NumArgs returns the number of arguments following the packet type
func (p *Packet) NumArgs() int {
	content, _, err := rlp.SplitList(p.Payload)
	if err != nil {
		return 0
	}

	n, err := rlp.CountValues(content)
	if err != nil || n == 0 {
		return 0
	}

	return n - 1
}
