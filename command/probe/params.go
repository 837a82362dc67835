package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/0xPolygon/edge-p2p/network/dial"
	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/0xPolygon/edge-p2p/network/host"
	"github.com/0xPolygon/edge-p2p/network/session"
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/0xPolygon/edge-p2p/version"
)

const (
	timeoutFlag = "timeout"

	defaultTimeout = 10 * time.Second
	pollInterval   = 10 * time.Millisecond
)

var (
	params = &probeParams{}
)

var errPeerDropped = errors.New("peer dropped the session")

type probeParams struct {
	rawTarget string
	timeout   time.Duration

	target *dial.Target
}

func (p *probeParams) initTarget() error {
	var err error

	p.target, err = parseTarget(p.rawTarget)

	return err
}

// parseTarget accepts an enode url or a plain host:port
func parseTarget(raw string) (*dial.Target, error) {
	if strings.HasPrefix(raw, "enode://") {
		n, err := enode.ParseURL(raw)
		if err != nil {
			return nil, err
		}

		return dial.NodeTarget(n), nil
	}

	return dial.AddrTarget(raw)
}

// probe dials target from a throwaway identity, completes the hello, measures
// one ping round trip and disconnects with Requested
func probe(ctx context.Context, logger hclog.Logger, target *dial.Target) (*ProbeResult, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	config := host.DefaultConfig()
	config.ListenAddr = ""
	config.ClientID = "edge-p2p-probe/" + version.Version
	config.DialRetries = 0

	h, err := host.NewHost(logger, config, key, nil, nil)
	if err != nil {
		return nil, err
	}

	defer h.Close()

	s, err := h.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}

	if err := waitFor(ctx, s, func() bool { return s.State() == session.Active }); err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	s.Ping()

	if err := waitFor(ctx, s, func() bool { return s.Info().LastPing > 0 }); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	info := s.Info()

	s.Disconnect(wire.DiscRequested)

	return newProbeResult(info), nil
}

func waitFor(ctx context.Context, s *session.Session, cond func() bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !cond() {
		select {
		case <-s.Done():
			return fmt.Errorf("%w: %w", errPeerDropped, s.Reason())
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
