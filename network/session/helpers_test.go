package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xPolygon/edge-p2p/network/capability"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/knownnodes"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const (
	testVersion = 5
	waitTimeout = 5 * time.Second
)

var testCapDesc = capability.Desc{Name: "test", Version: 1}

func testConfig() *Config {
	return &Config{
		PingInterval:      time.Hour,
		PingTimeout:       time.Hour,
		HandshakeTimeout:  waitTimeout,
		WriteTimeout:      2 * time.Second,
		DisconnectTimeout: time.Second,
	}
}

func randomID(t *testing.T) enode.ID {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return enode.PubkeyToID(priv.PubKey())
}

// recordingCap records every packet it receives. Code 0 is answered with
// code 1. With dropAfter set, code 3 disconnects the peer once that much time
// has passed inside the handler.
type recordingCap struct {
	conn      capability.Conn
	rng       capability.Range
	fail      bool
	dropAfter time.Duration

	lock  sync.Mutex
	codes []uint64
}

func (c *recordingCap) Name() string        { return testCapDesc.Name }
func (c *recordingCap) Version() uint       { return testCapDesc.Version }
func (c *recordingCap) PacketCount() uint64 { return 4 }

func (c *recordingCap) HandlePacket(code uint64, _ *wire.Packet) error {
	c.lock.Lock()
	c.codes = append(c.codes, code)
	c.lock.Unlock()

	if c.fail {
		return errors.New("rejected by capability")
	}

	if code == 3 && c.dropAfter > 0 {
		time.Sleep(c.dropAfter)
		c.conn.Disconnect(wire.DiscUselessPeer)

		return nil
	}

	if code == 0 {
		b, err := c.rng.Prep(1, 0)
		if err != nil {
			return err
		}

		frame, err := b.Seal()
		if err != nil {
			return err
		}

		return c.conn.Send(frame)
	}

	return nil
}

func (c *recordingCap) handled() []uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([]uint64{}, c.codes...)
}

type mockHost struct {
	id       enode.ID
	version  uint64
	registry *capability.Registry

	lock       sync.Mutex
	reject     *wire.DiscReason
	candidates []knownnodes.Candidate
	noted      []wire.PeerEndpoint
	caps       []*recordingCap
	failCaps   bool
	dropAfter  time.Duration

	dropped   chan wire.DiscReason
	dropCount int32
}

func newMockHost(t *testing.T) *mockHost {
	t.Helper()

	h := &mockHost{
		id:       randomID(t),
		version:  testVersion,
		registry: capability.NewRegistry(),
		dropped:  make(chan wire.DiscReason, 8),
	}

	require.NoError(t, h.registry.Register(&capability.Definition{
		Cap:     testCapDesc,
		Packets: 4,
		Create: func(conn capability.Conn, rng capability.Range) (capability.Capability, error) {
			h.lock.Lock()
			defer h.lock.Unlock()

			c := &recordingCap{conn: conn, rng: rng, fail: h.failCaps, dropAfter: h.dropAfter}
			h.caps = append(h.caps, c)

			return c, nil
		},
	}))

	return h
}

func (h *mockHost) ID() enode.ID                       { return h.id }
func (h *mockHost) ProtocolVersion() uint64            { return h.version }
func (h *mockHost) ClientID() string                   { return "edge-p2p/test" }
func (h *mockHost) ListenPort() uint16                 { return 30303 }
func (h *mockHost) Capabilities() *capability.Registry { return h.registry }

func (h *mockHost) Admit(*Session) (wire.DiscReason, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.reject != nil {
		return *h.reject, false
	}

	return 0, true
}

func (h *mockHost) Candidates(*Session) []knownnodes.Candidate {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.candidates
}

func (h *mockHost) NoteNodes(_ *Session, peers []wire.PeerEndpoint) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.noted = append(h.noted, peers...)
}

func (h *mockHost) OnDropped(_ *Session, reason wire.DiscReason) {
	atomic.AddInt32(&h.dropCount, 1)
	h.dropped <- reason
}

func (h *mockHost) notedNodes() []wire.PeerEndpoint {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]wire.PeerEndpoint{}, h.noted...)
}

func (h *mockHost) capInstance(t *testing.T) *recordingCap {
	t.Helper()

	h.lock.Lock()
	defer h.lock.Unlock()

	require.Len(t, h.caps, 1)

	return h.caps[0]
}

func (h *mockHost) waitDropped(t *testing.T) wire.DiscReason {
	t.Helper()

	select {
	case reason := <-h.dropped:
		return reason
	case <-time.After(waitTimeout):
		require.FailNow(t, "session was not dropped")
	}

	return wire.DiscUnknown
}

// rawPeer speaks the wire protocol by hand on the far end of a pipe
type rawPeer struct {
	id      enode.ID
	conn    net.Conn
	packets chan *wire.Packet
}

func newRawPeer(t *testing.T, conn net.Conn) *rawPeer {
	t.Helper()

	r := &rawPeer{
		id:      randomID(t),
		conn:    conn,
		packets: make(chan *wire.Packet, 1024),
	}

	go r.readLoop()

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return r
}

func (r *rawPeer) readLoop() {
	defer close(r.packets)

	var incoming []byte

	buf := make([]byte, 4096)

	for {
		n, err := r.conn.Read(buf)
		incoming = append(incoming, buf[:n]...)

		for {
			frame, rest, ferr := wire.Next(incoming)
			if ferr != nil || frame == nil {
				break
			}

			p, derr := wire.Decode(frame)
			if derr != nil {
				break
			}

			incoming = rest
			r.packets <- p
		}

		if err != nil {
			return
		}
	}
}

func (r *rawPeer) send(t *testing.T, frame []byte) {
	t.Helper()

	require.NoError(t, r.conn.SetWriteDeadline(time.Now().Add(waitTimeout)))

	_, err := r.conn.Write(frame)
	require.NoError(t, err)
}

func (r *rawPeer) sendHello(t *testing.T, hello *wire.Hello) {
	t.Helper()

	frame, err := hello.Encode()
	require.NoError(t, err)

	r.send(t, frame)
}

func (r *rawPeer) sendEmpty(t *testing.T, code wire.PacketType) {
	t.Helper()

	frame, err := wire.EncodeEmpty(code)
	require.NoError(t, err)

	r.send(t, frame)
}

func (r *rawPeer) hello() *wire.Hello {
	return &wire.Hello{
		Version:    testVersion,
		ClientID:   "raw-peer",
		Caps:       wire.Caps{testCapDesc},
		ListenPort: 30305,
		ID:         r.id,
	}
}

// handshake waits for the session hello and answers with ours
func (r *rawPeer) handshake(t *testing.T) *wire.Hello {
	t.Helper()

	p := r.next(t)
	require.Equal(t, wire.HelloPacket, p.Type)

	hello, err := wire.DecodeHello(p)
	require.NoError(t, err)

	r.sendHello(t, r.hello())

	return hello
}

func (r *rawPeer) next(t *testing.T) *wire.Packet {
	t.Helper()

	select {
	case p, ok := <-r.packets:
		require.True(t, ok, "connection closed")

		return p
	case <-time.After(waitTimeout):
		require.FailNow(t, "no packet received")
	}

	return nil
}

// drain collects packets until the session closes the connection
func (r *rawPeer) drain(t *testing.T) []*wire.Packet {
	t.Helper()

	var out []*wire.Packet

	timeout := time.After(waitTimeout)

	for {
		select {
		case p, ok := <-r.packets:
			if !ok {
				return out
			}

			out = append(out, p)
		case <-timeout:
			require.FailNow(t, "connection was not closed")
		}
	}
}

func countType(packets []*wire.Packet, code wire.PacketType) int {
	n := 0

	for _, p := range packets {
		if p.Type == code {
			n++
		}
	}

	return n
}

// newTestSession returns a started manual session wired to a raw peer
func newTestSession(t *testing.T, host *mockHost, config *Config) (*Session, *rawPeer) {
	t.Helper()

	local, remote := net.Pipe()

	s := NewManual(hclog.NewNullLogger(), config, host, local, nil)
	peer := newRawPeer(t, remote)

	s.Start()

	return s, peer
}

func activeSession(t *testing.T, host *mockHost) (*Session, *rawPeer) {
	t.Helper()

	s, peer := newTestSession(t, host, testConfig())
	peer.handshake(t)

	require.Eventually(t, func() bool { return s.State() == Active }, waitTimeout, 5*time.Millisecond)

	return s, peer
}
