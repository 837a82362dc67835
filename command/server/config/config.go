package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl"
	"gopkg.in/yaml.v3"

	"github.com/0xPolygon/edge-p2p/command"
	"github.com/0xPolygon/edge-p2p/network/host"
)

// Config defines the server configuration params
type Config struct {
	DataDir       string     `json:"data_dir" yaml:"data_dir" hcl:"data_dir"`
	NodeStore     string     `json:"node_store" yaml:"node_store" hcl:"node_store"`
	LogLevel      string     `json:"log_level" yaml:"log_level" hcl:"log_level"`
	JSONLogFormat bool       `json:"json_log_format" yaml:"json_log_format" hcl:"json_log_format"`
	Telemetry     *Telemetry `json:"telemetry" yaml:"telemetry" hcl:"telemetry"`
	Network       *Network   `json:"network" yaml:"network" hcl:"network"`
	Session       *Session   `json:"session" yaml:"session" hcl:"session"`
}

// Telemetry holds the config details for metric services.
type Telemetry struct {
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr" hcl:"prometheus_addr"`
}

// Network defines the peer host configuration params
type Network struct {
	ListenAddr     string   `json:"listen_addr" yaml:"listen_addr" hcl:"listen_addr"`
	AdvertisedPort uint16   `json:"advertised_port,omitempty" yaml:"advertised_port,omitempty" hcl:"advertised_port"`
	MaxPeers       int      `json:"max_peers,omitempty" yaml:"max_peers,omitempty" hcl:"max_peers"`
	MaxDials       int      `json:"max_dials,omitempty" yaml:"max_dials,omitempty" hcl:"max_dials"`
	Bootnodes      []string `json:"bootnodes" yaml:"bootnodes" hcl:"bootnodes"`
	Pinned         []string `json:"pinned" yaml:"pinned" hcl:"pinned"`
	Peers          []string `json:"peers" yaml:"peers" hcl:"peers"`
}

// Session defines the session timings. Values are duration strings, e.g. "5s"
type Session struct {
	PingInterval      string `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty" hcl:"ping_interval"`
	PingTimeout       string `json:"ping_timeout,omitempty" yaml:"ping_timeout,omitempty" hcl:"ping_timeout"`
	HandshakeTimeout  string `json:"handshake_timeout,omitempty" yaml:"handshake_timeout,omitempty" hcl:"handshake_timeout"`
	WriteTimeout      string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty" hcl:"write_timeout"`
	DisconnectTimeout string `json:"disconnect_timeout,omitempty" yaml:"disconnect_timeout,omitempty" hcl:"disconnect_timeout"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	defaultNetworkConfig := host.DefaultConfig()

	return &Config{
		DataDir:   "",
		NodeStore: command.DefaultNodeStore,
		LogLevel:  command.DefaultLogLevel,
		Telemetry: &Telemetry{},
		Network: &Network{
			ListenAddr: defaultNetworkConfig.ListenAddr,
			MaxPeers:   defaultNetworkConfig.MaxPeers,
			MaxDials:   defaultNetworkConfig.MaxDials,
			Bootnodes:  []string{},
			Pinned:     []string{},
			Peers:      []string{},
		},
		Session: &Session{},
	}
}

// ReadConfigFile reads the config file from the specified path, builds a Config object
// and returns it.
//
// Supported file types: .json, .hcl, .yaml, .yml
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var unmarshalFunc func([]byte, interface{}) error

	switch {
	case strings.HasSuffix(path, ".hcl"):
		unmarshalFunc = hcl.Unmarshal
	case strings.HasSuffix(path, ".json"):
		unmarshalFunc = json.Unmarshal
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		unmarshalFunc = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("suffix of %s is neither hcl, json, yaml nor yml", path)
	}

	config := DefaultConfig()

	if err := unmarshalFunc(data, config); err != nil {
		return nil, err
	}

	if config.Telemetry == nil {
		config.Telemetry = &Telemetry{}
	}

	if config.Network == nil {
		config.Network = DefaultConfig().Network
	}

	if config.Session == nil {
		config.Session = &Session{}
	}

	return config, nil
}
