package session

import "time"

const (
	defaultPingInterval      = 5 * time.Second
	defaultPingTimeout       = 10 * time.Second
	defaultHandshakeTimeout  = 5 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultDisconnectTimeout = 2 * time.Second

	// readBufferSize is the size of a single socket read
	readBufferSize = 65536

	// eventQueueSize bounds the completions waiting for the session loop
	eventQueueSize = 64
)

// Config holds the timings of a session
type Config struct {
	// PingInterval is the period of keep-alive pings once active
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`

	// PingTimeout is the longest silence tolerated from the remote
	PingTimeout time.Duration `json:"ping_timeout" yaml:"ping_timeout"`

	// HandshakeTimeout bounds the wait for the remote hello
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// WriteTimeout bounds every socket write
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// DisconnectTimeout bounds the flush of queued writes on disconnect
	DisconnectTimeout time.Duration `json:"disconnect_timeout" yaml:"disconnect_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		PingInterval:      defaultPingInterval,
		PingTimeout:       defaultPingTimeout,
		HandshakeTimeout:  defaultHandshakeTimeout,
		WriteTimeout:      defaultWriteTimeout,
		DisconnectTimeout: defaultDisconnectTimeout,
	}
}
