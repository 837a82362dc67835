package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/0xPolygon/edge-p2p/network/capability"
	"github.com/0xPolygon/edge-p2p/network/dial"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/host/nodedb"
	"github.com/0xPolygon/edge-p2p/network/knownnodes"
	"github.com/0xPolygon/edge-p2p/network/session"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sethvargo/go-retry"
)

var (
	ErrHostClosed  = errors.New("host is closed")
	ErrHostStarted = errors.New("host already started")
)

// Host owns the listener, the dialer and every session. It implements
// session.Host: sessions call back into it to be admitted, to read gossip
// candidates and to report learnt nodes and drops.
type Host struct {
	logger hclog.Logger
	config *Config

	key *btcec.PrivateKey
	id  enode.ID

	registry *capability.Registry
	store    nodedb.Store
	table    *NodeTable
	dropped  *lru.Cache // enode.ID -> time.Time of the drop

	static    []*dial.Target
	dialQueue *dial.DialQueue
	slots     dial.Slots

	listener   net.Listener
	listenPort uint16

	peers     map[enode.ID]*session.Session // admitted sessions
	sessions  map[*session.Session]*dial.Target
	peersLock sync.Mutex
	started   bool
	closed    bool

	ctx     context.Context
	cancel  context.CancelFunc
	closeCh chan struct{}

	// loops tracks the accept, dial and maintenance goroutines
	loops sync.WaitGroup
	// live tracks sessions until their drop callback
	live sync.WaitGroup
}

// NewHost creates a host for key. A nil registry advertises no
// capabilities; a nil store keeps nodes in memory.
func NewHost(
	logger hclog.Logger,
	config *Config,
	key *btcec.PrivateKey,
	registry *capability.Registry,
	store nodedb.Store,
) (*Host, error) {
	if config == nil {
		config = DefaultConfig()
	}

	normalize(config)

	if registry == nil {
		registry = capability.NewRegistry()
	}

	if store == nil {
		store = nodedb.NewMemoryStore()
	}

	dropped, err := lru.New(config.DroppedCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Host{
		logger:    logger.Named("host"),
		config:    config,
		key:       key,
		id:        enode.PubkeyToID(key.PubKey()),
		registry:  registry,
		store:     store,
		table:     NewNodeTable(),
		dropped:   dropped,
		dialQueue: dial.NewDialQueue(),
		slots:     dial.NewSlots(config.MaxDials),
		peers:     map[enode.ID]*session.Session{},
		sessions:  map[*session.Session]*dial.Target{},
		ctx:       ctx,
		cancel:    cancel,
		closeCh:   make(chan struct{}),
	}

	if err := h.setupStaticTargets(); err != nil {
		cancel()

		return nil, err
	}

	if err := h.loadNodes(); err != nil {
		cancel()

		return nil, fmt.Errorf("failed to load known nodes: %w", err)
	}

	return h, nil
}

func normalize(config *Config) {
	defaults := DefaultConfig()

	if config.ProtocolVersion == 0 {
		config.ProtocolVersion = defaults.ProtocolVersion
	}

	if config.MaxPeers <= 0 {
		config.MaxPeers = defaults.MaxPeers
	}

	if config.MaxDials <= 0 {
		config.MaxDials = defaults.MaxDials
	}

	if config.DialBackoff <= 0 {
		config.DialBackoff = defaults.DialBackoff
	}

	if config.MaintenanceInterval <= 0 {
		config.MaintenanceInterval = defaults.MaintenanceInterval
	}

	if config.DroppedCacheSize <= 0 {
		config.DroppedCacheSize = defaults.DroppedCacheSize
	}

	if config.Session == nil {
		config.Session = defaults.Session
	}
}

// setupStaticTargets parses the bootnodes, pinned nodes and manual peers
func (h *Host) setupStaticTargets() error {
	for _, raw := range h.config.Bootnodes {
		n, err := enode.ParseURL(raw)
		if err != nil {
			return fmt.Errorf("failed to parse bootnode %s: %w", raw, err)
		}

		if n.ID == h.id {
			h.logger.Info("omitting bootnode with same id as host", "id", n.ID.TerminalString())

			continue
		}

		h.table.Add(n)
		h.static = append(h.static, dial.NodeTarget(n))
	}

	for _, raw := range h.config.Pinned {
		n, err := enode.ParseURL(raw)
		if err != nil {
			return fmt.Errorf("failed to parse pinned node %s: %w", raw, err)
		}

		h.static = append(h.static, dial.PinnedTarget(n))
	}

	for _, raw := range h.config.Peers {
		target, err := dial.AddrTarget(raw)
		if err != nil {
			return fmt.Errorf("failed to parse peer %s: %w", raw, err)
		}

		h.static = append(h.static, target)
	}

	return nil
}

func (h *Host) loadNodes() error {
	return h.store.Iterate(func(r *nodedb.Record) bool {
		if r.ID != h.id {
			h.table.Add(r.Node())
		}

		return true
	})
}

// Start opens the listener and runs the dial and maintenance loops
func (h *Host) Start() error {
	h.peersLock.Lock()

	if h.closed {
		h.peersLock.Unlock()

		return ErrHostClosed
	}

	if h.started {
		h.peersLock.Unlock()

		return ErrHostStarted
	}

	h.started = true
	h.peersLock.Unlock()

	if h.config.ListenAddr != "" {
		listener, err := net.Listen("tcp", h.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", h.config.ListenAddr, err)
		}

		h.listener = listener

		if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
			h.listenPort = uint16(tcp.Port)
		}

		h.loops.Add(1)

		go h.acceptLoop()
	}

	if h.config.AdvertisedPort != 0 {
		h.listenPort = h.config.AdvertisedPort
	}

	for _, target := range h.static {
		h.dialQueue.AddTask(target, dial.PriorityRequestedDial)
	}

	h.loops.Add(2)

	go h.runDial()
	go h.runMaintenance()

	h.logger.Info("host running", "node", h.Self().String(), "static", len(h.static), "known", h.table.Len())

	return nil
}

// Close disconnects every session with ClientQuit and waits for all of them
// to be dropped
func (h *Host) Close() error {
	h.peersLock.Lock()

	if h.closed {
		h.peersLock.Unlock()

		return nil
	}

	h.closed = true

	live := make([]*session.Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.peersLock.Unlock()

	var result *multierror.Error

	close(h.closeCh)
	h.cancel()
	h.dialQueue.Close()

	if h.listener != nil {
		if err := h.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("failed to close listener: %w", err))
		}
	}

	for _, s := range live {
		s.Disconnect(wire.DiscClientQuit)
	}

	h.loops.Wait()
	h.live.Wait()

	h.logger.Info("host closed", "sessions", len(live))

	return result.ErrorOrNil()
}

// Self returns the local node record
func (h *Host) Self() *enode.Node {
	ip := net.IPv4(127, 0, 0, 1)

	if h.listener != nil {
		if tcp, ok := h.listener.Addr().(*net.TCPAddr); ok && !tcp.IP.IsUnspecified() {
			ip = tcp.IP
		}
	}

	return enode.New(h.id, ip, h.listenPort)
}

// Table returns the node table
func (h *Host) Table() *NodeTable {
	return h.table
}

// Peers returns the admitted sessions ordered by identity
func (h *Host) Peers() []*session.Session {
	h.peersLock.Lock()
	defer h.peersLock.Unlock()

	out := make([]*session.Session, 0, len(h.peers))
	for _, s := range h.peers {
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})

	return out
}

// PeerInfos returns a snapshot of every admitted peer
func (h *Host) PeerInfos() []session.PeerInfo {
	peers := h.Peers()
	infos := make([]session.PeerInfo, 0, len(peers))

	for _, s := range peers {
		infos = append(infos, s.Info())
	}

	return infos
}

// Peer returns the admitted session for id
func (h *Host) Peer(id enode.ID) (*session.Session, bool) {
	h.peersLock.Lock()
	defer h.peersLock.Unlock()

	s, ok := h.peers[id]

	return s, ok
}

func (h *Host) numPeers() int {
	h.peersLock.Lock()
	defer h.peersLock.Unlock()

	return len(h.peers)
}

// AddPeer queues a dial to target ahead of random dials
func (h *Host) AddPeer(target *dial.Target) {
	h.dialQueue.AddTask(target, dial.PriorityRequestedDial)
}

// Dial connects to target and starts a session on the connection. The
// session is returned before the handshake completes.
func (h *Host) Dial(ctx context.Context, target *dial.Target) (*session.Session, error) {
	var conn net.Conn

	dialer := &net.Dialer{Timeout: h.config.DialTimeout}
	backoff := retry.WithMaxRetries(h.config.DialRetries, retry.NewExponential(h.config.DialBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := dialer.DialContext(ctx, "tcp", target.Addr)
		if err != nil {
			h.logger.Trace("dial attempt failed", "addr", target.Addr, "err", err)

			return retry.RetryableError(err)
		}

		conn = c

		return nil
	})
	if err != nil {
		reportDial(false)

		return nil, err
	}

	reportDial(true)

	var s *session.Session

	switch {
	case target.Node == nil:
		addr, _ := conn.RemoteAddr().(*net.TCPAddr)
		s = session.NewManual(h.logger, h.config.Session, h, conn, addr)
	case target.Pinned:
		s = session.NewOverride(h.logger, h.config.Session, h, conn, target.Node)
	default:
		s = session.NewExpected(h.logger, h.config.Session, h, conn, target.Node)
	}

	if !h.startSession(s, target) {
		return nil, ErrHostClosed
	}

	return s, nil
}

// startSession registers s and starts it. A closing host disconnects it
// right away.
func (h *Host) startSession(s *session.Session, target *dial.Target) bool {
	h.peersLock.Lock()
	h.sessions[s] = target
	h.live.Add(1)
	closed := h.closed
	h.peersLock.Unlock()

	if closed {
		s.Disconnect(wire.DiscClientQuit)

		return false
	}

	s.Start()

	return true
}

func (h *Host) acceptLoop() {
	defer h.loops.Done()

	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.closeCh:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			h.logger.Error("failed to accept connection", "err", err)

			continue
		}

		h.logger.Debug("inbound connection", "remote", conn.RemoteAddr().String())

		h.startSession(session.NewManual(h.logger, h.config.Session, h, conn, nil), nil)
	}
}

// runDial starts the host's dial loop.
// The host monitors the dial queue and fills free dial slots as tasks
// arrive.
func (h *Host) runDial() {
	defer h.loops.Done()

	for {
		if closed := h.dialQueue.Wait(h.ctx); closed {
			return
		}

		for {
			task := h.dialQueue.PopTask()
			if task == nil {
				break
			}

			target := task.GetTarget()

			if h.isLive(target) {
				continue
			}

			if target.Node != nil && !target.Pinned && h.numPeers() >= h.config.MaxPeers {
				continue
			}

			h.logger.Debug("waiting for a dialing slot", "target", target.String())

			if closed := h.slots.Take(h.ctx); closed {
				return
			}

			h.loops.Add(1)

			go func() {
				defer h.loops.Done()
				defer h.slots.Release()

				h.logger.Debug("dialing peer", "target", target.String())

				if _, err := h.Dial(h.ctx, target); err != nil && !errors.Is(err, context.Canceled) {
					h.logger.Debug("failed to dial", "target", target.String(), "err", err)
				}
			}()
		}
	}
}

// runMaintenance periodically asks peers for nodes, answers pending node
// requests and refills the dial queue
func (h *Host) runMaintenance() {
	defer h.loops.Done()

	ticker := time.NewTicker(h.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-h.closeCh:
			return
		}

		h.maintain()
	}
}

func (h *Host) maintain() {
	peers := h.Peers()

	for _, s := range peers {
		s.EnsureNodesRequested()
		s.ServicePending()
	}

	for _, target := range h.static {
		if !h.isLive(target) {
			h.dialQueue.AddTask(target, dial.PriorityRequestedDial)
		}
	}

	free := h.config.MaxPeers - len(peers) - h.dialQueue.Len()

	for _, n := range h.table.Nodes() {
		if free <= 0 {
			break
		}

		if _, connected := h.Peer(n.ID); connected || n.ID == h.id || h.recentlyDropped(n.ID) {
			continue
		}

		h.dialQueue.AddTask(dial.NodeTarget(n), dial.PriorityRandomDial)
		free--
	}
}

// isLive reports whether a session for target exists
func (h *Host) isLive(target *dial.Target) bool {
	h.peersLock.Lock()
	defer h.peersLock.Unlock()

	if target.Node != nil {
		if _, ok := h.peers[target.Node.ID]; ok {
			return true
		}
	}

	key := target.Key()

	for _, t := range h.sessions {
		if t != nil && t.Key() == key {
			return true
		}
	}

	return false
}

func (h *Host) recentlyDropped(id enode.ID) bool {
	v, ok := h.dropped.Get(id)
	if !ok {
		return false
	}

	at, ok := v.(time.Time)

	return ok && time.Since(at) < h.config.DroppedBackoff
}

// ID returns the local node identity
func (h *Host) ID() enode.ID {
	return h.id
}

func (h *Host) ProtocolVersion() uint64 {
	return h.config.ProtocolVersion
}

func (h *Host) ClientID() string {
	return h.config.ClientID
}

// ListenPort returns the port advertised in the hello
func (h *Host) ListenPort() uint16 {
	return h.listenPort
}

func (h *Host) Capabilities() *capability.Registry {
	return h.registry
}

// Admit enforces one session per identity and the peer limit
func (h *Host) Admit(s *session.Session) (wire.DiscReason, bool) {
	id := s.ID()

	h.peersLock.Lock()

	switch cur, ok := h.peers[id]; {
	case h.closed:
		h.peersLock.Unlock()

		return wire.DiscClientQuit, false
	case ok && cur != s:
		h.peersLock.Unlock()

		return wire.DiscDuplicatePeer, false
	case len(h.peers) >= h.config.MaxPeers:
		h.peersLock.Unlock()

		return wire.DiscTooManyPeers, false
	}

	h.peers[id] = s
	count := len(h.peers)
	h.peersLock.Unlock()

	reportPeers(count)

	n := s.Node()
	h.table.Add(n)
	h.dialQueue.DeleteTask(id.String())

	h.persist(n, func(r *nodedb.Record) {
		r.LastSeen = time.Now().UTC()
	})

	h.logger.Info("peer admitted", "peer", id.TerminalString(), "endpoint", n.TCPAddr().String(), "peers", count)

	return 0, true
}

// Candidates lists the node table without the peer itself
func (h *Host) Candidates(s *session.Session) []knownnodes.Candidate {
	return h.table.Candidates(s.ID())
}

// NoteNodes adds gossiped nodes to the table, queues dials while below the
// peer limit and marks the nodes known for s
func (h *Host) NoteNodes(s *session.Session, peers []wire.PeerEndpoint) {
	indices := make([]uint, 0, len(peers))
	free := h.config.MaxPeers - h.numPeers()

	for _, p := range peers {
		n := p.Node()
		if !n.IsDialable() || n.ID == h.id {
			continue
		}

		idx, added := h.table.Add(n)
		indices = append(indices, idx)

		if !added {
			continue
		}

		h.persist(n, nil)

		if free > 0 && !h.recentlyDropped(n.ID) {
			h.dialQueue.AddTask(dial.NodeTarget(n), dial.PriorityRandomDial)
			free--
		}
	}

	if len(indices) == 0 {
		return
	}

	// called on the session loop, which serves MarkKnown itself
	go func() {
		for _, idx := range indices {
			s.MarkKnown(idx)
		}
	}()
}

// OnDropped releases the session and records the disconnect
func (h *Host) OnDropped(s *session.Session, reason wire.DiscReason) {
	defer h.live.Done()

	id := s.ID()

	h.peersLock.Lock()
	delete(h.sessions, s)

	admitted := false
	if cur, ok := h.peers[id]; ok && cur == s {
		delete(h.peers, id)

		admitted = true
	}

	count := len(h.peers)
	h.peersLock.Unlock()

	if isFault(reason) && !id.IsZero() {
		h.dropped.Add(id, time.Now())
	}

	if !admitted {
		h.logger.Debug("session dropped before admission", "conn", s.ConnID(), "reason", reason.String())

		return
	}

	reportPeers(count)

	h.persist(s.Node(), func(r *nodedb.Record) {
		r.LastSeen = time.Now().UTC()
		r.LastReason = reason
		r.Dropped = true
	})

	h.logger.Info("peer disconnected", "peer", id.TerminalString(), "reason", reason.String(), "peers", count)
}

// persist stores n, keeping what is already known about it
func (h *Host) persist(n *enode.Node, update func(r *nodedb.Record)) {
	if !n.IsDialable() {
		return
	}

	r, err := h.store.Get(n.ID)
	if err != nil {
		if !errors.Is(err, nodedb.ErrNotFound) {
			h.logger.Warn("failed to read node record", "node", n.ID.TerminalString(), "err", err)
		}

		r = &nodedb.Record{ID: n.ID}
	}

	r.IP, r.Port = n.IP, n.TCP

	if update != nil {
		update(r)
	}

	if err := h.store.Put(r); err != nil {
		h.logger.Warn("failed to store node record", "node", n.ID.TerminalString(), "err", err)
	}
}

// isFault reports whether reason blames the remote
func isFault(reason wire.DiscReason) bool {
	switch reason {
	case wire.DiscProtocolError,
		wire.DiscUselessPeer,
		wire.DiscIncompatibleVersion,
		wire.DiscInvalidIdentity,
		wire.DiscUnexpectedIdentity,
		wire.DiscSelfConnect:
		return true
	}

	return false
}
