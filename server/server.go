package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/0xPolygon/edge-p2p/network/host"
	"github.com/0xPolygon/edge-p2p/network/host/nodedb"
	"github.com/0xPolygon/edge-p2p/version"
)

const shutdownTimeout = 5 * time.Second

// Server is the p2p node: a peer host plus its telemetry
type Server struct {
	logger hclog.Logger
	config *Config

	store nodedb.Store
	host  *host.Host

	prometheusServer *http.Server
	prometheusAddr   net.Addr

	group *errgroup.Group
}

// newLoggerFromConfig creates the root logger writing to standard error
func newLoggerFromConfig(config *Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "edge-p2p",
		Level:      config.LogLevel,
		Output:     os.Stderr,
		JSONFormat: config.JSONLogFormat,
	})
}

// NewServer creates a new node with the given config and starts its host
func NewServer(config *Config) (*Server, error) {
	return newServer(newLoggerFromConfig(config), config)
}

func newServer(logger hclog.Logger, config *Config) (*Server, error) {
	if config.Network == nil {
		config.Network = host.DefaultConfig()
	}

	if config.Network.ClientID == "" {
		config.Network.ClientID = "edge-p2p/" + version.Version
	}

	m := &Server{
		logger: logger,
		config: config,
		group:  new(errgroup.Group),
	}

	m.logger.Info("data dir", "path", config.DataDir)

	if config.Telemetry != nil && config.Telemetry.PrometheusAddr != nil {
		if err := m.setupTelemetry(); err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
	}

	key, err := host.ReadNodeKey(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read node key: %w", err)
	}

	backend := config.NodeStore
	if config.DataDir == "" {
		backend = nodedb.BackendMemory
	}

	if m.store, err = nodedb.Open(backend, config.DataDir); err != nil {
		return nil, fmt.Errorf("failed to open node store: %w", err)
	}

	if m.host, err = host.NewHost(logger, config.Network, key, nil, m.store); err != nil {
		_ = m.store.Close()

		return nil, err
	}

	if err := m.host.Start(); err != nil {
		return nil, multierror.Append(err, m.host.Close(), m.store.Close()).ErrorOrNil()
	}

	if config.Telemetry != nil && config.Telemetry.PrometheusAddr != nil {
		srv, lis, err := m.startPrometheusServer(config.Telemetry.PrometheusAddr)
		if err != nil {
			return nil, multierror.Append(err, m.host.Close(), m.store.Close()).ErrorOrNil()
		}

		m.prometheusServer = srv
		m.prometheusAddr = lis.Addr()

		m.group.Go(func() error {
			return servePrometheus(srv, lis)
		})
	}

	return m, nil
}

// Host returns the peer host of the node
func (s *Server) Host() *host.Host {
	return s.host
}

// Close shuts the node down. Every session is disconnected with ClientQuit
func (s *Server) Close() error {
	var result *multierror.Error

	if err := s.host.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close host: %w", err))
	}

	if s.prometheusServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.prometheusServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close prometheus server: %w", err))
		}
	}

	if err := s.group.Wait(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := s.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close node store: %w", err))
	}

	return result.ErrorOrNil()
}

// PrometheusAddr returns the bound metrics address, if any
func (s *Server) PrometheusAddr() net.Addr {
	return s.prometheusAddr
}
