package probe

import (
	"context"
	"fmt"

	"github.com/cretz/bine/tor"
	"golang.org/x/net/proxy"

	"github.com/opd-ai/socksconn/pkg/logger"
)

// ManagedProxy launches and owns an embedded Tor process via cretz/bine,
// used when the connector's proxy_managed option is set to launch and
// manage its own embedded Tor process instead of assuming an externally
// run proxy.
type ManagedProxy struct {
	instance *tor.Tor
	log      *logger.Logger
}

// StartManagedProxy starts a managed Tor instance. It does not itself wait
// for the instance to bootstrap onto the Tor network.
func StartManagedProxy(ctx context.Context, dataDir string, log *logger.Logger) (*ManagedProxy, error) {
	instance, err := tor.Start(ctx, &tor.StartConf{DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("probe: start managed tor: %w", err)
	}
	return &ManagedProxy{instance: instance, log: log.Component("probe.managed")}, nil
}

// Dialer returns a proxy.Dialer routed through the managed instance's
// SOCKS listener, ready to hand to the probe's SOCKS5 attempt path.
func (m *ManagedProxy) Dialer(ctx context.Context) (proxy.Dialer, error) {
	dialer, err := m.instance.Dialer(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: managed tor dialer: %w", err)
	}
	return dialer, nil
}

// Close tears down the managed Tor process.
func (m *ManagedProxy) Close() error {
	if err := m.instance.Close(); err != nil {
		return fmt.Errorf("probe: close managed tor: %w", err)
	}
	return nil
}
