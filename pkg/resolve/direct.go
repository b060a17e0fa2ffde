package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// DirectResolver resolves a hostname to a concrete socket address for
// DIRECT mode, bypassing any SOCKS proxy. It requests TCP stream
// addresses of any family and uses the first one returned.
type DirectResolver struct {
	resolver *net.Resolver
}

// NewDirectResolver builds a DirectResolver using the host's default
// resolver.
func NewDirectResolver() *DirectResolver {
	return &DirectResolver{resolver: net.DefaultResolver}
}

// Resolve looks up hostname and returns a dialable address on port.
func (d *DirectResolver) Resolve(ctx context.Context, hostname string, port uint16) (netip.AddrPort, error) {
	ips, err := d.resolver.LookupIP(ctx, "ip", hostname)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve: direct lookup of %q failed: %w", hostname, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolve: direct lookup of %q returned no addresses", hostname)
	}
	addr, ok := netip.AddrFromSlice(ips[0])
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("resolve: direct lookup of %q returned an unparseable address", hostname)
	}
	return netip.AddrPortFrom(addr.Unmap(), port), nil
}
