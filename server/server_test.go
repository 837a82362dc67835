package server

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPolygon/edge-p2p/network/host"
	"github.com/0xPolygon/edge-p2p/network/host/nodedb"
)

func testServerConfig(dataDir string) *Config {
	network := host.DefaultConfig()
	network.ListenAddr = "127.0.0.1:0"
	network.MaintenanceInterval = time.Hour
	network.ClientID = ""

	return &Config{
		Network:   network,
		NodeStore: nodedb.BackendBolt,
		DataDir:   dataDir,
		LogLevel:  hclog.Off,
	}
}

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()

	s, err := newServer(hclog.NewNullLogger(), config)
	require.NoError(t, err)

	return s
}

func TestServer_DataDir(t *testing.T) {
	dir := t.TempDir()

	s := newTestServer(t, testServerConfig(dir))

	_, err := os.Stat(filepath.Join(dir, host.NodeKeyName))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "nodes.db"))
	assert.NoError(t, err)

	assert.NotZero(t, s.Host().ListenPort())
	assert.Contains(t, s.Host().ClientID(), "edge-p2p/")

	id := s.Host().ID()
	require.NoError(t, s.Close())

	// the node key survives a restart
	s = newTestServer(t, testServerConfig(dir))
	assert.Equal(t, id, s.Host().ID())
	require.NoError(t, s.Close())
}

func TestServer_Peering(t *testing.T) {
	a := newTestServer(t, testServerConfig(""))
	defer a.Close()

	config := testServerConfig("")
	config.Network.Peers = []string{a.Host().Self().TCPAddr().String()}

	b := newTestServer(t, config)
	defer b.Close()

	require.Eventually(t, func() bool {
		return len(a.Host().Peers()) == 1 && len(b.Host().Peers()) == 1
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, a.Host().ID(), b.Host().Peers()[0].ID())
}

func TestServer_UnknownNodeStore(t *testing.T) {
	config := testServerConfig(t.TempDir())
	config.NodeStore = "redis"

	_, err := newServer(hclog.NewNullLogger(), config)
	assert.ErrorIs(t, err, nodedb.ErrUnknownBackend)
}

func TestServer_Prometheus(t *testing.T) {
	config := testServerConfig("")
	config.Telemetry = &Telemetry{
		PrometheusAddr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
	}

	s := newTestServer(t, config)
	require.NotNil(t, s.PrometheusAddr())

	resp, err := http.Get("http://" + s.PrometheusAddr().String() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body)

	require.NoError(t, s.Close())
}
