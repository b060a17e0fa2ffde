// Package probe implements the one-shot blocking connector variant used at
// startup to confirm the proxy is reachable before the reactor starts. It
// drives the same protocol states through a blocking loop instead of the
// non-blocking multiplexed reactor.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/opd-ai/socksconn/pkg/config"
	"github.com/opd-ai/socksconn/pkg/logger"
	"github.com/opd-ai/socksconn/pkg/resolve"
	"github.com/opd-ai/socksconn/pkg/socks4a"
)

// Prober drives a blocking CONNECT handshake against the configured proxy,
// retrying with backoff until it succeeds or Stop is called.
type Prober struct {
	cfg        *config.Config
	translator *resolve.Translator
	direct     *resolve.DirectResolver
	log        *logger.Logger
	terminate  atomic.Bool
	dialer     proxy.Dialer
}

// New builds a Prober.
func New(cfg *config.Config, translator *resolve.Translator, log *logger.Logger) *Prober {
	return &Prober{
		cfg:        cfg,
		translator: translator,
		direct:     resolve.NewDirectResolver(),
		log:        log.Component("probe"),
	}
}

// Stop requests cooperative termination; Probe returns on its next retry
// check.
func (p *Prober) Stop() {
	p.terminate.Store(true)
}

// UseDialer overrides the dialer attemptSOCKS5 uses, routing the probe
// through an already-running proxy.Dialer (such as a managed Tor instance's)
// instead of building a fresh one from cfg.SocksDst. Only the SOCKS5 attempt
// path consults it; DIRECT and SOCKS4A dial raw sockets the managed
// instance's dialer abstraction cannot produce.
func (p *Prober) UseDialer(d proxy.Dialer) {
	p.dialer = d
}

// Probe attempts to connect to and handshake with addr's derived hostname,
// retrying on failure until success or Stop. It returns the connected
// net.Conn on success; ownership transfers to the caller.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr) (net.Conn, error) {
	name, _ := p.translator.Resolve(addr)

	for {
		if p.terminate.Load() {
			return nil, fmt.Errorf("probe: terminated")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn, err := p.attempt(ctx, name)
		if err == nil {
			return conn, nil
		}
		p.log.Warn("probe attempt failed, retrying", "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.ConnTimeout):
		}
	}
}

// attempt runs exactly one blocking connect+handshake, driving the same
// protocol states the reactor drives but through a blocking loop.
func (p *Prober) attempt(ctx context.Context, hostname string) (net.Conn, error) {
	switch p.cfg.Mode {
	case config.ModeDirect:
		return p.attemptDirect(ctx, hostname)
	case config.ModeSOCKS5:
		return p.attemptSOCKS5(hostname)
	case config.ModeSOCKS4A:
		return p.attemptSOCKS4a(ctx, hostname)
	default:
		return nil, fmt.Errorf("probe: unknown connection mode %q", p.cfg.Mode)
	}
}

func (p *Prober) attemptDirect(ctx context.Context, hostname string) (net.Conn, error) {
	dst, err := p.direct.Resolve(ctx, hostname, p.cfg.OcatDestPort)
	if err != nil {
		return nil, fmt.Errorf("probe: direct resolve: %w", err)
	}
	d := net.Dialer{Timeout: p.cfg.ConnTimeout}
	conn, err := d.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		return nil, fmt.Errorf("probe: direct dial: %w", err)
	}
	return conn, nil
}

// attemptSOCKS5 reuses golang.org/x/net/proxy's SOCKS5 dialer for the
// blocking startup check, rather than re-driving our own codec: the probe
// only needs to know the proxy is reachable and willing to CONNECT, and
// the library dialer already implements exactly that handshake. If a
// dialer has been supplied via UseDialer (a managed proxy instance), that
// dialer is used instead of dialing cfg.SocksDst directly.
func (p *Prober) attemptSOCKS5(hostname string) (net.Conn, error) {
	dialer := p.dialer
	if dialer == nil {
		d, err := proxy.SOCKS5("tcp", p.cfg.SocksDst.String(), nil, &net.Dialer{Timeout: p.cfg.ConnTimeout})
		if err != nil {
			return nil, fmt.Errorf("probe: build SOCKS5 dialer: %w", err)
		}
		dialer = d
	}
	dest := fmt.Sprintf("%s:%d", hostname, p.cfg.OcatDestPort)
	conn, err := dialer.Dial("tcp", dest)
	if err != nil {
		return nil, fmt.Errorf("probe: SOCKS5 dial: %w", err)
	}
	return conn, nil
}

// attemptSOCKS4a drives our own codec over a blocking dial, since the
// proxy package has no SOCKS4a support.
func (p *Prober) attemptSOCKS4a(ctx context.Context, hostname string) (net.Conn, error) {
	d := net.Dialer{Timeout: p.cfg.ConnTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.cfg.SocksDst.String())
	if err != nil {
		return nil, fmt.Errorf("probe: socks4a dial: %w", err)
	}

	frame := socks4a.EncodeRequest(p.cfg.OcatDestPort, p.cfg.Username, hostname)
	if _, err := conn.Write(frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("probe: socks4a write request: %w", err)
	}

	reply := make([]byte, socks4a.ReplyLen)
	if _, err := readFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("probe: socks4a read reply: %w", err)
	}
	if err := socks4a.DecodeReply(reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("probe: socks4a handshake: %w", err)
	}
	return conn, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
