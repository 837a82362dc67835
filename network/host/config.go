package host

import (
	"time"

	"github.com/0xPolygon/edge-p2p/network/session"
)

const (
	DefaultListenAddr      = "0.0.0.0:30303"
	DefaultProtocolVersion = 5
	DefaultMaxPeers        = 25
)

// Config is the configuration of the peer host
type Config struct {
	// ListenAddr is the tcp address inbound peers connect to. Empty disables
	// the listener.
	ListenAddr string

	// AdvertisedPort overrides the listen port announced in the hello
	AdvertisedPort uint16

	ProtocolVersion uint64
	ClientID        string

	MaxPeers int

	// MaxDials bounds the outbound dials in flight
	MaxDials int

	// Bootnodes are enode urls dialed with their identity expected
	Bootnodes []string

	// Pinned are enode urls dialed and kept connected; a different identity
	// behind the endpoint is accepted
	Pinned []string

	// Peers are host:port endpoints dialed and kept connected
	Peers []string

	DialTimeout time.Duration
	DialRetries uint64
	DialBackoff time.Duration

	// MaintenanceInterval is the period of node requests and dial refills
	MaintenanceInterval time.Duration

	// DroppedCacheSize and DroppedBackoff control how long a peer dropped
	// for misbehaviour is kept out of random dials
	DroppedCacheSize int
	DroppedBackoff   time.Duration

	Session *session.Config
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          DefaultListenAddr,
		ProtocolVersion:     DefaultProtocolVersion,
		ClientID:            "edge-p2p",
		MaxPeers:            DefaultMaxPeers,
		MaxDials:            8,
		DialTimeout:         5 * time.Second,
		DialRetries:         3,
		DialBackoff:         500 * time.Millisecond,
		MaintenanceInterval: 10 * time.Second,
		DroppedCacheSize:    256,
		DroppedBackoff:      time.Minute,
		Session:             session.DefaultConfig(),
	}
}
