package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/0xPolygon/edge-p2p/network/capability"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/wire"
)

type event interface{}

type startEvent struct{}

type dataEvent struct {
	data []byte
}

type readErrEvent struct {
	err error
}

type writeErrEvent struct {
	err error
}

type disconnectEvent struct{}

type callEvent struct {
	fn func()
}

// post hands an event to the loop. It reports false once the loop is gone.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}

func (s *Session) run() {
	for s.State() != Closed {
		select {
		case ev := <-s.events:
			s.handle(ev)

		case <-s.disconnectCh:
			s.disconnect(wire.DiscReason(s.requestedReason.Load()))

		case <-tickerC(s.pingTicker):
			s.onPingTick()

		case <-timerC(s.handshake):
			s.handshake = nil

			s.logger.Debug("handshake timed out")
			s.disconnect(wire.DiscPingTimeout)

		case <-timerC(s.flush):
			s.flush = nil

			s.logger.Debug("flush timed out, dropping queued writes", "pending", s.queue.Len())
			s.queue.Discard()
			_ = s.conn.Close()

		case <-s.drained:
			s.close()
		}
	}

	close(s.done)

	s.readers.Wait()
	s.queue.Wait()

	if s.willBeDeleted.CompareAndSwap(false, true) {
		s.host.OnDropped(s, s.reason)
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case startEvent:
		s.start()

	case dataEvent:
		s.onData(ev.data)

	case readErrEvent:
		if s.State() >= Disconnecting {
			return
		}

		if errors.Is(ev.err, io.EOF) {
			s.logger.Debug("remote closed the connection")
		} else {
			s.logger.Debug("read failed", "err", ev.err)
		}

		s.disconnect(wire.DiscNetworkError)

	case writeErrEvent:
		if s.State() >= Disconnecting {
			return
		}

		s.logger.Debug("write failed", "err", ev.err)
		s.disconnect(wire.DiscNetworkError)

	case disconnectEvent:
		s.disconnect(wire.DiscReason(s.requestedReason.Load()))

	case callEvent:
		ev.fn()
	}
}

func (s *Session) start() {
	if s.State() != Connecting {
		return
	}

	hello := &wire.Hello{
		Version:    s.host.ProtocolVersion(),
		ClientID:   s.host.ClientID(),
		Caps:       s.host.Capabilities().Descs(),
		ListenPort: s.host.ListenPort(),
		ID:         s.host.ID(),
	}

	frame, err := hello.Encode()
	if err != nil {
		s.logger.Error("failed to encode hello", "err", err)
		s.disconnect(wire.DiscProtocolError)

		return
	}

	_ = s.Send(frame)

	s.lastReceived.Store(time.Now().UnixNano())

	if s.config.HandshakeTimeout > 0 {
		s.handshake = time.NewTimer(s.config.HandshakeTimeout)
	}

	s.readers.Add(1)

	go s.readLoop()
}

func (s *Session) readLoop() {
	defer s.readers.Done()

	buf := make([]byte, readBufferSize)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			if !s.post(dataEvent{data: data}) {
				return
			}
		}

		if err != nil {
			s.post(readErrEvent{err: err})

			return
		}

		select {
		case <-s.readStop:
			return
		default:
		}
	}
}

// onData appends a chunk to the accumulation buffer and interprets every
// complete frame at its head
func (s *Session) onData(data []byte) {
	if s.State() >= Disconnecting {
		return
	}

	s.lastReceived.Store(time.Now().UnixNano())
	s.incoming = append(s.incoming, data...)

	consumed := false

	defer func() {
		if consumed {
			s.incoming = append([]byte(nil), s.incoming...)
		}
	}()

	for s.State() < Disconnecting {
		frame, rest, err := wire.Next(s.incoming)
		if err != nil {
			s.violation("invalid frame", err)

			return
		}

		if frame == nil {
			return
		}

		packet, err := wire.Decode(frame)
		if err != nil {
			s.violation("invalid frame", err)

			return
		}

		s.incoming = rest
		consumed = true

		reportFrameIn(packet.Type, len(frame))

		if err := s.interpret(packet); err != nil {
			s.violation("failed to handle packet", err, "type", packet.Type.String())

			return
		}
	}
}

// violation disconnects for a remote fault. Errors carrying a DiscReason
// keep it; anything else is a protocol error.
func (s *Session) violation(msg string, err error, args ...interface{}) {
	reason := wire.DiscProtocolError

	var disc wire.DiscReason
	if errors.As(err, &disc) {
		reason = disc
	}

	s.logger.Debug(msg, append(args, "err", err, "reason", reason.String())...)
	s.disconnect(reason)
}

func (s *Session) interpret(p *wire.Packet) error {
	switch p.Type {
	case wire.HelloPacket:
		return s.onHello(p)

	case wire.DisconnectPacket:
		reason := wire.DecodeDisconnect(p)

		s.logger.Debug("remote disconnected", "reason", reason.String())
		s.disconnect(reason)

		return nil
	}

	if !s.helloSeen {
		return fmt.Errorf("%w: %s", ErrNoHello, p.Type)
	}

	switch p.Type {
	case wire.PingPacket:
		frame, err := wire.EncodeEmpty(wire.PongPacket)
		if err != nil {
			return err
		}

		return s.Send(frame)

	case wire.PongPacket:
		s.onPong()

		return nil

	case wire.GetPeersPacket:
		s.tracker.NoteRequest()
		s.serviceNodesRequest()

		return nil

	case wire.PeersPacket:
		return s.onPeers(p)
	}

	table := s.table.Load()

	c, rng, kind := table.Lookup(p.Type)

	switch kind {
	case capability.Core:
		return fmt.Errorf("%w: %s", ErrReservedPacket, p.Type)
	case capability.Unbound:
		return fmt.Errorf("%w: %s", ErrUnknownPacket, p.Type)
	}

	return table.Dispatch(c, rng, p)
}

func (s *Session) onHello(p *wire.Packet) error {
	if s.helloSeen {
		return ErrHelloTwice
	}

	hello, err := wire.DecodeHello(p)
	if err != nil {
		return err
	}

	switch {
	case hello.ID == s.host.ID():
		return wire.DiscSelfConnect
	case hello.ID.IsZero():
		return wire.DiscInvalidIdentity
	case s.expected != nil && hello.ID != s.expected.ID:
		if s.mode == ExpectedIdentity {
			s.logger.Debug("unexpected identity", "expected", s.expected.ID.TerminalString(), "got", hello.ID.TerminalString())

			return wire.DiscUnexpectedIdentity
		}

		s.logger.Warn("accepting different identity for pinned peer", "expected", s.expected.ID.TerminalString(), "got", hello.ID.TerminalString())
	}

	if hello.Version != s.host.ProtocolVersion() {
		s.logger.Debug("incompatible protocol version", "local", s.host.ProtocolVersion(), "remote", hello.Version)

		return wire.DiscIncompatibleVersion
	}

	table, err := s.host.Capabilities().Negotiate(s, hello.Caps)
	if err != nil {
		return err
	}

	s.table.Store(table)
	s.helloSeen = true

	s.infoLock.Lock()
	s.info.ID = hello.ID
	s.info.ClientID = hello.ClientID
	s.info.Caps = table.Descs()

	if tcp, ok := s.conn.RemoteAddr().(*net.TCPAddr); ok {
		s.info.Host = tcp.IP.String()
	}

	if hello.ListenPort != 0 {
		s.info.Port = hello.ListenPort
	}
	s.infoLock.Unlock()

	if reason, ok := s.host.Admit(s); !ok {
		return reason
	}

	s.setState(Active)

	if s.handshake != nil {
		s.handshake.Stop()
		s.handshake = nil
	}

	if s.config.PingInterval > 0 {
		s.pingTicker = time.NewTicker(s.config.PingInterval)
	}

	s.logger.Info("peer connected", "id", hello.ID.TerminalString(), "client", hello.ClientID, "caps", table.Len())

	return nil
}

func (s *Session) onPong() {
	sent := s.lastPingSent.Load()
	if sent == 0 {
		return
	}

	rtt := time.Since(time.Unix(0, sent))

	s.infoLock.Lock()
	s.info.LastPing = rtt
	s.infoLock.Unlock()

	reportPingRTT(float32(rtt.Microseconds()) / 1000)
}

func (s *Session) onPeers(p *wire.Packet) error {
	peers, err := wire.DecodePeers(p)
	if err != nil {
		return err
	}

	s.tracker.ResponseReceived()

	self := s.host.ID()
	accepted := make([]wire.PeerEndpoint, 0, len(peers))

	for _, peer := range peers {
		if peer.ID == self || peer.Port == 0 || !enode.IsRoutable(peer.IP) {
			continue
		}

		accepted = append(accepted, peer)
	}

	s.logger.Trace("received peers", "count", len(peers), "accepted", len(accepted))

	if len(accepted) > 0 {
		s.host.NoteNodes(s, accepted)
	}

	return nil
}

func (s *Session) ensureNodesRequested() {
	if s.State() != Active {
		return
	}

	_, err := s.tracker.EnsureRequested(func() error {
		frame, err := wire.EncodeEmpty(wire.GetPeersPacket)
		if err != nil {
			return err
		}

		return s.Send(frame)
	})
	if err != nil {
		s.logger.Error("failed to request peers", "err", err)
	}
}

func (s *Session) serviceNodesRequest() {
	picked, err := s.tracker.ServiceRequest(s.host.Candidates(s), wire.MaxPeersPerPacket, func(peers []wire.PeerEndpoint) error {
		frame, err := wire.EncodePeers(peers)
		if err != nil {
			return err
		}

		return s.Send(frame)
	})
	if err != nil {
		s.logger.Error("failed to answer peers request", "err", err)

		return
	}

	if len(picked) == 0 {
		s.AddNote("peers", "requested")

		return
	}

	s.AddNote("peers", "done")
}

func (s *Session) onPingTick() {
	silence := time.Since(time.Unix(0, s.lastReceived.Load()))
	if s.config.PingTimeout > 0 && silence > s.config.PingTimeout {
		s.logger.Debug("ping timeout", "silence", silence)
		s.disconnect(wire.DiscPingTimeout)

		return
	}

	s.Ping()
}

// disconnect moves to Disconnecting: the reason goes out as the last frame,
// reads stop and the socket closes once the queue drained
func (s *Session) disconnect(reason wire.DiscReason) {
	if s.State() >= Disconnecting {
		return
	}

	s.reason = reason
	s.disconnectedAt.Store(time.Now().UnixNano())
	s.setState(Disconnecting)

	close(s.readStop)

	if s.pingTicker != nil {
		s.pingTicker.Stop()
		s.pingTicker = nil
	}

	if s.handshake != nil {
		s.handshake.Stop()
		s.handshake = nil
	}

	s.logger.Debug("disconnecting", "reason", reason.String())
	reportDisconnect(reason)

	if frame, err := wire.EncodeDisconnect(reason); err == nil {
		_ = s.queue.Enqueue(frame)
	}

	if err := s.queue.Close(func() { close(s.drained) }); err != nil {
		// the queue was closed by a failed write and is idle
		close(s.drained)
	}

	if s.config.DisconnectTimeout > 0 {
		s.flush = time.NewTimer(s.config.DisconnectTimeout)
	}
}

func (s *Session) close() {
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Trace("failed to close connection", "err", err)
	}

	s.setState(Closed)
	s.logger.Debug("session closed", "reason", s.reason.String())
}
