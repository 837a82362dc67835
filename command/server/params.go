package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/0xPolygon/edge-p2p/command"
	"github.com/0xPolygon/edge-p2p/command/server/config"
	"github.com/0xPolygon/edge-p2p/network/dial"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/host"
	"github.com/0xPolygon/edge-p2p/network/host/nodedb"
	"github.com/0xPolygon/edge-p2p/network/session"
	"github.com/0xPolygon/edge-p2p/server"
)

const (
	configFlag            = "config"
	dataDirFlag           = "data-dir"
	listenFlag            = "listen"
	advertisedPortFlag    = "advertised-port"
	prometheusAddressFlag = "prometheus"
	bootnodeFlag          = "bootnode"
	pinnedFlag            = "pinned"
	peerFlag              = "peer"
	maxPeersFlag          = "max-peers"
	maxDialsFlag          = "max-dials"
	nodeStoreFlag         = "node-store"
	jsonLogFormatFlag     = "json-log-format"
)

var (
	params = &serverParams{
		rawConfig: config.DefaultConfig(),
	}
)

var (
	errInvalidMaxPeers = errors.New("max-peers must be positive")
	errInvalidMaxDials = errors.New("max-dials must be positive")
)

type serverParams struct {
	rawConfig  *config.Config
	configPath string

	listenAddress     *net.TCPAddr
	prometheusAddress *net.TCPAddr
	logLevel          hclog.Level

	sessionConfig *session.Config
}

// mergeConfigFile loads the config file and lays every flag the user set on
// top of it
func (p *serverParams) mergeConfigFile(changed func(name string) bool) error {
	fileConfig, err := config.ReadConfigFile(p.configPath)
	if err != nil {
		return err
	}

	flags := p.rawConfig

	overlay := []struct {
		flag  string
		apply func()
	}{
		{dataDirFlag, func() { fileConfig.DataDir = flags.DataDir }},
		{command.LogLevelFlag, func() { fileConfig.LogLevel = flags.LogLevel }},
		{nodeStoreFlag, func() { fileConfig.NodeStore = flags.NodeStore }},
		{jsonLogFormatFlag, func() { fileConfig.JSONLogFormat = flags.JSONLogFormat }},
		{listenFlag, func() { fileConfig.Network.ListenAddr = flags.Network.ListenAddr }},
		{advertisedPortFlag, func() { fileConfig.Network.AdvertisedPort = flags.Network.AdvertisedPort }},
		{maxPeersFlag, func() { fileConfig.Network.MaxPeers = flags.Network.MaxPeers }},
		{maxDialsFlag, func() { fileConfig.Network.MaxDials = flags.Network.MaxDials }},
		{bootnodeFlag, func() { fileConfig.Network.Bootnodes = flags.Network.Bootnodes }},
		{pinnedFlag, func() { fileConfig.Network.Pinned = flags.Network.Pinned }},
		{peerFlag, func() { fileConfig.Network.Peers = flags.Network.Peers }},
		{prometheusAddressFlag, func() { fileConfig.Telemetry.PrometheusAddr = flags.Telemetry.PrometheusAddr }},
	}

	for _, o := range overlay {
		if changed(o.flag) {
			o.apply()
		}
	}

	p.rawConfig = fileConfig

	return nil
}

func (p *serverParams) validateFlags() error {
	if p.rawConfig.Network.MaxPeers <= 0 {
		return errInvalidMaxPeers
	}

	if p.rawConfig.Network.MaxDials <= 0 {
		return errInvalidMaxDials
	}

	switch p.rawConfig.NodeStore {
	case nodedb.BackendLevelDB, nodedb.BackendBolt, nodedb.BackendMemory:
	default:
		return fmt.Errorf("%w: %s", nodedb.ErrUnknownBackend, p.rawConfig.NodeStore)
	}

	for _, raw := range p.rawConfig.Network.Bootnodes {
		if _, err := enode.ParseURL(raw); err != nil {
			return fmt.Errorf("invalid bootnode %s: %w", raw, err)
		}
	}

	for _, raw := range p.rawConfig.Network.Pinned {
		if _, err := enode.ParseURL(raw); err != nil {
			return fmt.Errorf("invalid pinned node %s: %w", raw, err)
		}
	}

	for _, raw := range p.rawConfig.Network.Peers {
		if _, err := dial.AddrTarget(raw); err != nil {
			return err
		}
	}

	return nil
}

func (p *serverParams) initRawParams() error {
	if err := p.initAddresses(); err != nil {
		return err
	}

	if err := p.initSessionConfig(); err != nil {
		return err
	}

	p.logLevel = hclog.LevelFromString(p.rawConfig.LogLevel)
	if p.logLevel == hclog.NoLevel {
		return fmt.Errorf("unknown log level %s", p.rawConfig.LogLevel)
	}

	return nil
}

func (p *serverParams) initAddresses() error {
	var err error

	if p.listenAddress, err = net.ResolveTCPAddr("tcp", p.rawConfig.Network.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if p.rawConfig.Telemetry.PrometheusAddr == "" {
		return nil
	}

	if p.prometheusAddress, err = net.ResolveTCPAddr("tcp", p.rawConfig.Telemetry.PrometheusAddr); err != nil {
		return fmt.Errorf("invalid prometheus address: %w", err)
	}

	return nil
}

func (p *serverParams) initSessionConfig() error {
	p.sessionConfig = session.DefaultConfig()

	raw := p.rawConfig.Session

	for _, d := range []struct {
		name  string
		value string
		field *time.Duration
	}{
		{"ping_interval", raw.PingInterval, &p.sessionConfig.PingInterval},
		{"ping_timeout", raw.PingTimeout, &p.sessionConfig.PingTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &p.sessionConfig.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &p.sessionConfig.WriteTimeout},
		{"disconnect_timeout", raw.DisconnectTimeout, &p.sessionConfig.DisconnectTimeout},
	} {
		if strings.TrimSpace(d.value) == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid session %s: %w", d.name, err)
		}

		if parsed <= 0 {
			return fmt.Errorf("session %s must be positive", d.name)
		}

		*d.field = parsed
	}

	return nil
}

func (p *serverParams) generateConfig() *server.Config {
	network := host.DefaultConfig()
	network.ListenAddr = p.listenAddress.String()
	network.AdvertisedPort = p.rawConfig.Network.AdvertisedPort
	network.MaxPeers = p.rawConfig.Network.MaxPeers
	network.MaxDials = p.rawConfig.Network.MaxDials
	network.Bootnodes = p.rawConfig.Network.Bootnodes
	network.Pinned = p.rawConfig.Network.Pinned
	network.Peers = p.rawConfig.Network.Peers
	network.ClientID = ""
	network.Session = p.sessionConfig

	return &server.Config{
		Network:   network,
		NodeStore: p.rawConfig.NodeStore,
		Telemetry: &server.Telemetry{
			PrometheusAddr: p.prometheusAddress,
		},
		DataDir:       p.rawConfig.DataDir,
		LogLevel:      p.logLevel,
		JSONLogFormat: p.rawConfig.JSONLogFormat,
	}
}
