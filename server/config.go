package server

import (
	"net"

	"github.com/hashicorp/go-hclog"

	"github.com/0xPolygon/edge-p2p/network/host"
)

// Config is used to parametrize the p2p node
type Config struct {
	Network *host.Config

	// NodeStore is the backend of the persisted node table
	NodeStore string

	Telemetry *Telemetry

	DataDir string

	LogLevel hclog.Level

	JSONLogFormat bool
}

// Telemetry holds the config details for metric services
type Telemetry struct {
	PrometheusAddr *net.TCPAddr
}
