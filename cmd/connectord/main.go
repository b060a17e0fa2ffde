// Package main provides the SOCKS connector daemon executable.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/opd-ai/socksconn/pkg/config"
	"github.com/opd-ai/socksconn/pkg/controlpipe"
	"github.com/opd-ai/socksconn/pkg/logger"
	"github.com/opd-ai/socksconn/pkg/metrics"
	"github.com/opd-ai/socksconn/pkg/peer"
	"github.com/opd-ai/socksconn/pkg/probe"
	"github.com/opd-ai/socksconn/pkg/reactor"
	"github.com/opd-ai/socksconn/pkg/resolve"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (torrc-style key/value)")
	socksDst := flag.String("socks-dst", "", "Proxy socket address, e.g. 127.0.0.1:9050")
	mode := flag.String("mode", "", "Connection mode: SOCKS4A, SOCKS5, or DIRECT")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("connectord version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if err := config.LoadFromFile(*configFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}
	applyFlagOverrides(cfg, *socksDst, *mode, *logLevel)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(level, os.Stdout)
	log.Info("starting connectord", "version", version, "build_time", buildTime)
	log.Info("configuration loaded",
		"enabled", cfg.Enabled(),
		"mode", cfg.Mode,
		"socks_dst", cfg.SocksDst,
		"dns_lookup", cfg.DNSLookup,
		"hosts_lookup", cfg.HostsLookup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("application error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func applyFlagOverrides(cfg *config.Config, socksDst, mode, logLevel string) {
	if socksDst != "" {
		if ap, err := netip.ParseAddrPort(socksDst); err == nil {
			cfg.SocksDst = ap
		}
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Enabled() {
		log.Info("connector disabled: no socks_dst configured, idling")
		<-ctx.Done()
		return nil
	}

	translator := resolve.New(nil, cfg.HostsLookup, cfg.Domain)
	m := metrics.New()

	pipe, err := controlpipe.New()
	if err != nil {
		return fmt.Errorf("create control pipe: %w", err)
	}
	defer pipe.Close()

	poller, err := reactor.NewPoller()
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}
	defer poller.Close()

	peers := newStubPeerTable(log)
	r := reactor.New(cfg, poller, pipe, translator, peers, m, log.Component("reactor"))

	var managed *probe.ManagedProxy
	if cfg.ProxyManaged {
		managed, err = probe.StartManagedProxy(ctx, cfg.ProxyManagedDataDir, log)
		if err != nil {
			return fmt.Errorf("start managed proxy: %w", err)
		}
		defer managed.Close()
	}

	if err := verifyProxyReachable(ctx, cfg, translator, log, managed); err != nil {
		log.Warn("startup probe could not confirm the proxy is reachable, starting anyway", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()

	select {
	case <-sigChan:
		log.Info("received shutdown signal")
		r.Stop()
		return <-errCh
	case err := <-errCh:
		return err
	case <-ctx.Done():
		r.Stop()
		<-errCh
		return ctx.Err()
	}
}

// verifyProxyReachable runs the synchronous probe once, bounded by a short
// startup window, against the unspecified address's deterministically
// derived hostname. It exists purely to confirm the proxy accepts a
// handshake before the reactor starts driving real traffic through it; a
// failure here is logged, not fatal, since the proxy may simply still be
// bootstrapping. When managed is non-nil, the probe is routed through its
// dialer instead of dialing cfg.SocksDst directly; the reactor's own
// non-blocking dial path still targets cfg.SocksDst regardless, since a
// managed instance's dialer has no raw socket address to hand it.
func verifyProxyReachable(ctx context.Context, cfg *config.Config, translator *resolve.Translator, log *logger.Logger, managed *probe.ManagedProxy) error {
	probeCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout*2)
	defer cancel()

	p := probe.New(cfg, translator, log)
	if managed != nil {
		dialer, err := managed.Dialer(probeCtx)
		if err != nil {
			return fmt.Errorf("managed proxy dialer: %w", err)
		}
		p.UseDialer(dialer)
	}

	conn, err := p.Probe(probeCtx, netip.IPv6Unspecified())
	if err != nil {
		return err
	}
	return conn.Close()
}

// stubPeerTable is a placeholder peer.Table for standalone operation: the
// real peer layer lives outside this daemon's scope and is wired in by
// the process that embeds the connector. This stub lets connectord run
// (and Stop cleanly) without one.
type stubPeerTable struct {
	mu  sync.Mutex
	log *logger.Logger
}

func newStubPeerTable(log *logger.Logger) *stubPeerTable {
	if log == nil {
		log = logger.NewDefault()
	}
	return &stubPeerTable{log: log.Component("peer.stub")}
}

func (t *stubPeerTable) Lock() func() {
	t.mu.Lock()
	return t.mu.Unlock
}

func (t *stubPeerTable) Lookup(addr netip.Addr) (peer.Handle, bool) {
	t.log.Warn("no peer layer wired into this process", "addr", addr)
	return nil, false
}
