package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xPolygon/edge-p2p/network/capability"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/knownnodes"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/0xPolygon/edge-p2p/network/writequeue"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrHelloTwice      = errors.New("hello received twice")
	ErrNoHello         = errors.New("packet received before hello")
	ErrUnknownPacket   = errors.New("packet code not bound to any capability")
	ErrReservedPacket  = errors.New("reserved core packet code")
	ErrSessionNotReady = errors.New("session loop has exited")
)

// Session runs the protocol over one connection. All protocol state is
// owned by a single loop goroutine; other goroutines reach it through
// events. Outbound frames go through the write queue, which is the only
// lock shared with capabilities.
type Session struct {
	logger hclog.Logger
	config *Config
	host   Host

	conn     net.Conn
	connID   string
	mode     ConnectionMode
	expected *enode.Node

	queue *writequeue.Queue

	// owned by the loop
	tracker    *knownnodes.Tracker
	incoming   []byte
	helloSeen  bool
	reason     wire.DiscReason
	pingTicker *time.Ticker
	handshake  *time.Timer
	flush      *time.Timer

	state atomic.Int32
	table atomic.Pointer[capability.Table]

	events   chan event
	done     chan struct{} // closed when the loop returns
	readStop chan struct{} // closed when disconnecting starts
	drained  chan struct{} // closed when the write queue is idle after close
	started  atomic.Bool

	// Disconnect requests bypass a full event queue through disconnectCh
	disconnectReq   atomic.Bool
	requestedReason atomic.Uint64
	disconnectCh    chan struct{}

	// readers tracks the read goroutine
	readers       sync.WaitGroup
	willBeDeleted atomic.Bool

	rating atomic.Int64

	// timestamps in unix nanoseconds
	lastPingSent   atomic.Int64
	lastReceived   atomic.Int64
	disconnectedAt atomic.Int64

	infoLock sync.RWMutex
	info     PeerInfo
}

// NewExpected creates a session for a dialed node whose identity must match
// the remote hello
func NewExpected(logger hclog.Logger, config *Config, host Host, conn net.Conn, node *enode.Node) *Session {
	return newSession(logger, config, host, conn, ExpectedIdentity, node, node.TCPAddr())
}

// NewOverride creates a session for an operator pinned node. A remote hello
// carrying a different identity is accepted and logged.
func NewOverride(logger hclog.Logger, config *Config, host Host, conn net.Conn, node *enode.Node) *Session {
	return newSession(logger, config, host, conn, IdentityOverride, node, node.TCPAddr())
}

// NewManual creates a session for an endpoint whose identity is not known
// yet, including inbound connections
func NewManual(logger hclog.Logger, config *Config, host Host, conn net.Conn, endpoint *net.TCPAddr) *Session {
	return newSession(logger, config, host, conn, ManualEndpoint, nil, endpoint)
}

func newSession(
	logger hclog.Logger,
	config *Config,
	host Host,
	conn net.Conn,
	mode ConnectionMode,
	node *enode.Node,
	endpoint *net.TCPAddr,
) *Session {
	if config == nil {
		config = DefaultConfig()
	}

	connID := uuid.New().String()

	s := &Session{
		logger:   logger.Named("session").With("conn", connID, "mode", mode.String()),
		config:   config,
		host:     host,
		conn:         conn,
		connID:       connID,
		mode:         mode,
		expected:     node,
		tracker:      knownnodes.New(),
		events:       make(chan event, eventQueueSize),
		disconnectCh: make(chan struct{}, 1),
		done:         make(chan struct{}),
		readStop:     make(chan struct{}),
		drained:      make(chan struct{}),
		info: PeerInfo{
			ConnID:      connID,
			Mode:        mode.String(),
			ConnectedAt: time.Now().UTC(),
			Notes:       map[string]string{},
		},
	}

	if node != nil {
		s.info.ID = node.ID
	}

	if endpoint != nil {
		s.info.Host = endpoint.IP.String()
		s.info.Port = uint16(endpoint.Port)
	}

	s.queue = writequeue.New(s.logger, s.write, func(err error) {
		s.post(writeErrEvent{err: err})
	})

	go s.run()

	return s
}

// Start sends the local hello and begins reading. Calls after the first are
// no-ops.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.post(startEvent{})
}

// Disconnect requests a graceful shutdown. Only the first reason is used.
// It never blocks, so capabilities and host callbacks may call it from the
// session loop.
func (s *Session) Disconnect(reason wire.DiscReason) {
	if !s.disconnectReq.CompareAndSwap(false, true) {
		return
	}

	s.requestedReason.Store(uint64(reason))

	select {
	case s.events <- disconnectEvent{}:
	default:
		// the only send on disconnectCh, which has room for it
		s.disconnectCh <- struct{}{}
	}
}

// Ping enqueues a keep-alive and records when it was sent
func (s *Session) Ping() {
	frame, err := wire.EncodeEmpty(wire.PingPacket)
	if err != nil {
		s.logger.Error("failed to encode ping", "err", err)

		return
	}

	s.lastPingSent.Store(time.Now().UnixNano())
	_ = s.Send(frame)
}

// Send enqueues a sealed frame. Frames breaking the size or shape rules are
// refused; transport failures are never reported here.
func (s *Session) Send(frame []byte) error {
	if err := wire.Validate(frame); err != nil {
		s.logger.Warn("refusing to send invalid frame", "size", len(frame), "err", err)

		return err
	}

	if err := s.queue.Enqueue(frame); err != nil {
		s.logger.Trace("dropping frame on closed session", "size", len(frame))
	}

	return nil
}

// SealAndSend seals b and sends the frame
func (s *Session) SealAndSend(b *wire.Builder) error {
	frame, err := b.Seal()
	if err != nil {
		return err
	}

	return s.Send(frame)
}

// EnsureNodesRequested asks the peer for nodes unless a request is pending
func (s *Session) EnsureNodesRequested() {
	s.post(callEvent{fn: s.ensureNodesRequested})
}

// MarkKnown records that the peer already knows the node at idx
func (s *Session) MarkKnown(idx uint) {
	s.post(callEvent{fn: func() {
		s.tracker.MarkKnown(idx)
	}})
}

// ServicePending answers a get-peers request that found nothing to send
func (s *Session) ServicePending() {
	s.post(callEvent{fn: func() {
		if s.State() == Active && s.tracker.Pending() {
			s.serviceNodesRequest()
		}
	}})
}

// KnownNodes returns the node-table indices exchanged with the peer
func (s *Session) KnownNodes() ([]uint, error) {
	result := make(chan []uint, 1)

	if !s.post(callEvent{fn: func() { result <- s.tracker.Indices() }}) {
		return nil, ErrSessionNotReady
	}

	select {
	case indices := <-result:
		return indices, nil
	case <-s.done:
		return nil, ErrSessionNotReady
	}
}

func (s *Session) Rating() int64 {
	return s.rating.Load()
}

// AddRating adjusts the peer score by delta
func (s *Session) AddRating(delta int64) {
	s.rating.Add(delta)
}

// AddNote sets a free-form diagnostic note
func (s *Session) AddNote(key, value string) {
	s.infoLock.Lock()
	s.info.Notes[key] = value
	s.infoLock.Unlock()
}

// ID returns the remote identity: the expected one until the hello arrives
func (s *Session) ID() enode.ID {
	s.infoLock.RLock()
	defer s.infoLock.RUnlock()

	return s.info.ID
}

// Endpoint returns the address the peer can be dialed on
func (s *Session) Endpoint() *net.TCPAddr {
	s.infoLock.RLock()
	defer s.infoLock.RUnlock()

	return &net.TCPAddr{IP: net.ParseIP(s.info.Host), Port: int(s.info.Port)}
}

// Node returns the peer as a node record
func (s *Session) Node() *enode.Node {
	addr := s.Endpoint()

	return enode.New(s.ID(), addr.IP, uint16(addr.Port))
}

// Info returns a snapshot of the peer metadata
func (s *Session) Info() PeerInfo {
	s.infoLock.RLock()
	info := s.info.copy()
	s.infoLock.RUnlock()

	info.State = s.State().String()
	info.Rating = s.Rating()

	if seen := s.lastReceived.Load(); seen != 0 {
		info.LastSeen = time.Unix(0, seen).UTC()
	}

	if at := s.disconnectedAt.Load(); at != 0 {
		info.DisconnectedAt = time.Unix(0, at).UTC()
	}

	return info
}

func (s *Session) ConnID() string {
	return s.connID
}

func (s *Session) Mode() ConnectionMode {
	return s.mode
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Reason returns the disconnect reason. Only meaningful once Done is closed.
func (s *Session) Reason() wire.DiscReason {
	select {
	case <-s.done:
		return s.reason
	default:
		return wire.DiscUnknown
	}
}

// Done is closed when the session loop has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Capabilities returns the negotiated table, nil before the handshake
func (s *Session) Capabilities() *capability.Table {
	return s.table.Load()
}

// Cap returns the capability of type T bound on s
func Cap[T capability.Capability](s *Session) (T, bool) {
	return capability.Of[T](s.Capabilities())
}

// LocalAddr returns the local socket address
func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote socket address
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) String() string {
	return s.ID().TerminalString() + "@" + s.Endpoint().String()
}

func (s *Session) write(buf []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	if _, err := s.conn.Write(buf); err != nil {
		return err
	}

	reportFrameOut(len(buf))

	return nil
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}
