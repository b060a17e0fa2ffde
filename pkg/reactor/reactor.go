package reactor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/opd-ai/socksconn/pkg/config"
	"github.com/opd-ai/socksconn/pkg/connerr"
	"github.com/opd-ai/socksconn/pkg/controlpipe"
	"github.com/opd-ai/socksconn/pkg/dnsquery"
	"github.com/opd-ai/socksconn/pkg/logger"
	"github.com/opd-ai/socksconn/pkg/metrics"
	"github.com/opd-ai/socksconn/pkg/peer"
	"github.com/opd-ai/socksconn/pkg/request"
	"github.com/opd-ai/socksconn/pkg/resolve"
	"github.com/opd-ai/socksconn/pkg/socks4a"
	"github.com/opd-ai/socksconn/pkg/socks5"

	"golang.org/x/sys/unix"
)

// Reactor drives every queued request through its lifecycle via a single
// cooperative sweep loop.
type Reactor struct {
	cfg        *config.Config
	queue      *request.Queue
	poller     Poller
	pipe       *controlpipe.Pipe
	translator *resolve.Translator
	direct     *resolve.DirectResolver
	peers      peer.Table
	metrics    *metrics.Metrics
	log        *logger.Logger

	fdToRequest map[int]*request.Request
	terminate   atomic.Bool
}

// New builds a Reactor. poller, pipe, and peers are supplied by the caller
// so tests can substitute fakes for the raw-syscall and peer-table
// collaborators.
func New(cfg *config.Config, poller Poller, pipe *controlpipe.Pipe, translator *resolve.Translator, peers peer.Table, m *metrics.Metrics, log *logger.Logger) *Reactor {
	return &Reactor{
		cfg:         cfg,
		queue:       request.NewQueue(),
		poller:      poller,
		pipe:        pipe,
		translator:  translator,
		direct:      resolve.NewDirectResolver(),
		peers:       peers,
		metrics:     m,
		log:         log,
		fdToRequest: make(map[int]*request.Request),
	}
}

// Stop requests a clean shutdown; the reactor returns at the top of its
// next sweep, where it polls the termination flag.
func (r *Reactor) Stop() {
	r.terminate.Store(true)
}

// Run executes sweeps until Stop is called, ctx is cancelled, or an
// unrecoverable poller error occurs.
func (r *Reactor) Run(ctx context.Context) error {
	if err := r.poller.Add(r.pipe.ReadFD(), true, false); err != nil {
		return fmt.Errorf("reactor: watch control pipe: %w", err)
	}

	for {
		if r.terminate.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.sweep(); err != nil {
			r.log.Error("sweep failed, restarting", "error", err)
		}
	}
}

// sweep implements one full pass: prepare, wait, service the control pipe,
// handle ready requests, clean up.
func (r *Reactor) sweep() error {
	now := time.Now()
	r.prepare(now)

	events, err := r.poller.Wait(r.cfg.DNSRetryTimeout)
	if err != nil {
		return err
	}

	now = time.Now()
	for _, ev := range events {
		if ev.FD == r.pipe.ReadFD() {
			r.serviceControlPipe()
			continue
		}
		req, ok := r.fdToRequest[ev.FD]
		if !ok {
			continue
		}
		r.handleReady(req, ev, now)
	}

	removed := r.queue.RemoveDeleted()
	if removed > 0 {
		r.log.Debug("removed completed requests", "count", removed)
	}
	r.metrics.QueueLength.Set(int64(r.queue.Len()))
	return nil
}

// prepare walks the queue once, advancing NEW/DNS_SENT requests and
// re-registering every request's fd with the poller according to its
// state.
func (r *Reactor) prepare(now time.Time) {
	for _, req := range r.queue.Snapshot() {
		switch req.State {
		case request.StateNew:
			r.handleNew(req, now)
		case request.StateDNSSent:
			r.handleDNSSentTimer(req, now)
		}

		if req.State.HasFD() && req.FD != request.NoFD {
			read, write := r.watchDirections(req)
			r.fdToRequest[req.FD] = req
			_ = r.poller.Add(req.FD, read, write)
		}
	}
}

// watchDirections reports which directions the poller should watch for
// req's current state.
func (r *Reactor) watchDirections(req *request.Request) (read, write bool) {
	switch req.State {
	case request.StateConnecting:
		return false, true
	case request.StateS4AReqSent, request.StateS5GreetSent, request.StateS5ReqSent, request.StateDNSSent:
		return true, false
	default:
		return false, false
	}
}

// handleNew dispatches a NEW request: resolve a name, optionally issue a
// DNS PTR lookup first, then start a non-blocking connect.
func (r *Reactor) handleNew(req *request.Request, now time.Time) {
	if req.Idle(now) {
		return
	}

	req.Retry++
	if !req.Perm && req.Retry > r.cfg.MaxRetry {
		req.State = request.StateDelete
		r.metrics.TemporaryDeletes.Inc()
		return
	}

	if _, cached := req.Name(); !cached {
		name, found := r.translator.Resolve(req.Addr)
		if !found && r.cfg.DNSLookup && req.Retry <= 1 {
			if r.startDNSQuery(req, now) {
				return
			}
		}
		req.SetName(name)
	}

	dst, err := r.resolveTarget(req)
	if err != nil {
		// DIRECT-mode name resolution failing is not a connect failure: skip
		// this sweep with the request's state otherwise unchanged, rather
		// than imposing reschedule's extra connect-timeout backoff window.
		return
	}

	req.ConnectTime = now
	fd, err := dialNonBlockingTCP(dst)
	if err != nil && err != unix.EINPROGRESS {
		r.reschedule(req, now)
		return
	}
	req.FD = fd
	req.State = request.StateConnecting
	r.metrics.ConnectAttempts.Inc()
}

// resolveTarget picks the socket address a CONNECTING attempt dials:
// the proxy address in SOCKS4A/SOCKS5 mode, or the direct-resolved
// hostname address in DIRECT mode.
func (r *Reactor) resolveTarget(req *request.Request) (netip.AddrPort, error) {
	if r.cfg.Mode == config.ModeDirect {
		name, _ := req.Name()
		return r.direct.Resolve(context.Background(), name, r.cfg.OcatDestPort)
	}
	return r.cfg.SocksDst, nil
}

// startDNSQuery opens a non-blocking UDP socket and sends a PTR query for
// req.Addr to the configured nameserver. Returns false (falling through to the non-DNS path) if anything about
// opening or sending the query fails.
func (r *Reactor) startDNSQuery(req *request.Request, now time.Time) bool {
	ns := netip.AddrPortFrom(r.cfg.Nameserver, r.cfg.NameserverPort)
	fd, err := dialNonBlockingUDP(ns)
	if err != nil {
		return false
	}

	req.ID = uint16(rand.IntN(1 << 16))
	query, err := dnsquery.BuildPTRQuery(req.ID, req.Addr)
	if err != nil {
		unix.Close(fd)
		return false
	}
	if err := sendToAddrPort(fd, query, ns); err != nil {
		unix.Close(fd)
		return false
	}

	req.FD = fd
	req.NSAddr = ns
	req.State = request.StateDNSSent
	req.Retry = 0
	req.RestartTime = now.Add(r.cfg.DNSRetryTimeout)
	r.metrics.DNSQueriesSent.Inc()
	return true
}

// handleDNSSentTimer implements the timer-driven half of DNS_SENT: resend
// on timeout up to DNSRetry attempts, or fall back to NEW with retry=1 once
// exhausted, which biases the next NEW pass to skip the DNS step.
func (r *Reactor) handleDNSSentTimer(req *request.Request, now time.Time) {
	if now.Before(req.RestartTime) {
		return
	}
	if req.Retry < r.cfg.DNSRetry {
		ns := req.NSAddr
		query, err := dnsquery.BuildPTRQuery(req.ID, req.Addr)
		if err == nil {
			_ = sendToAddrPort(req.FD, query, ns)
		}
		req.Retry++
		req.RestartTime = now.Add(r.cfg.DNSRetryTimeout)
		return
	}

	r.closeRequestFD(req)
	req.State = request.StateNew
	req.Retry = 1
	r.metrics.DNSFailures.Inc()
}

// serviceControlPipe reads exactly one record and dispatches by kind.
func (r *Reactor) serviceControlPipe() {
	msg, err := r.pipe.Receive()
	if err != nil {
		r.log.Warn("control pipe read failed", "error", err)
		return
	}

	switch msg.Kind {
	case controlpipe.KindEnqueue:
		if !r.cfg.Enabled() {
			return
		}
		req := request.New(msg.Addr, msg.Perm)
		if r.queue.Enqueue(req) {
			r.metrics.RequestsEnqueued.Inc()
		} else {
			r.metrics.RequestsDeduped.Inc()
		}
	case controlpipe.KindWakeup:
		r.log.Debug("wakeup received")
	case controlpipe.KindDumpQueue:
		r.dumpQueueTo(int(msg.FD))
	}
}

func (r *Reactor) dumpQueueTo(fd int) {
	w := &fdWriter{fd: fd}
	if err := r.queue.Dump(w, func(req *request.Request) string {
		name, _ := req.Name()
		return name
	}); err != nil {
		r.log.Warn("dump-queue write failed", "error", err)
	}
}

// fdWriter adapts a raw fd to io.Writer for Queue.Dump.
type fdWriter struct{ fd int }

func (w *fdWriter) Write(p []byte) (int, error) {
	return unix.Write(w.fd, p)
}

// reschedule closes req's fd, resets to NEW, and sets restart_time so the
// next attempt waits out a full connect timeout before retrying.
func (r *Reactor) reschedule(req *request.Request, now time.Time) {
	r.closeRequestFD(req)
	req.State = request.StateNew
	req.RestartTime = now.Add(r.cfg.ConnTimeout)
}

func (r *Reactor) closeRequestFD(req *request.Request) {
	if req.FD != request.NoFD {
		delete(r.fdToRequest, req.FD)
		_ = r.poller.Remove(req.FD)
		unix.Close(req.FD)
		req.FD = request.NoFD
	}
}

// handleReady dispatches one request's readiness event to the handler for
// its current state.
func (r *Reactor) handleReady(req *request.Request, ev Event, now time.Time) {
	switch req.State {
	case request.StateConnecting:
		if !ev.Writable {
			return
		}
		r.handleConnected(req, now)
	case request.StateS4AReqSent:
		if !ev.Readable {
			return
		}
		r.handleSOCKS4aReply(req, now)
	case request.StateS5GreetSent:
		if !ev.Readable {
			return
		}
		r.handleSOCKS5GreetReply(req, now)
	case request.StateS5ReqSent:
		if !ev.Readable {
			return
		}
		r.handleSOCKS5RequestReply(req, now)
	case request.StateDNSSent:
		if !ev.Readable {
			return
		}
		r.handleDNSReply(req, now)
	}
}

func (r *Reactor) handleConnected(req *request.Request, now time.Time) {
	if err := pendingError(req.FD); err != nil {
		r.reschedule(req, now)
		return
	}

	switch r.cfg.Mode {
	case config.ModeSOCKS4A:
		name, _ := req.Name()
		frame := socks4a.EncodeRequest(r.cfg.OcatDestPort, r.cfg.Username, name)
		if _, err := unix.Write(req.FD, frame); err != nil {
			r.reschedule(req, now)
			return
		}
		req.State = request.StateS4AReqSent
	case config.ModeSOCKS5:
		if _, err := unix.Write(req.FD, socks5.Greeting[:]); err != nil {
			r.reschedule(req, now)
			return
		}
		req.State = request.StateS5GreetSent
	case config.ModeDirect:
		r.completeHandOff(req, now)
	default:
		r.log.Error("unknown connection mode reached at runtime", "mode", r.cfg.Mode)
		panic(connerr.Configuration(fmt.Sprintf("unknown connection mode %q", r.cfg.Mode)))
	}
}

func (r *Reactor) handleSOCKS4aReply(req *request.Request, now time.Time) {
	buf := make([]byte, socks4a.ReplyLen)
	n, err := unix.Read(req.FD, buf)
	if err != nil || n < socks4a.ReplyLen {
		r.reschedule(req, now)
		return
	}
	if err := socks4a.DecodeReply(buf[:n]); err != nil {
		r.metrics.HandshakeFailures.Inc()
		r.reschedule(req, now)
		return
	}
	r.completeHandOff(req, now)
}

func (r *Reactor) handleSOCKS5GreetReply(req *request.Request, now time.Time) {
	buf := make([]byte, socks5.GreetingReplyLen)
	n, err := unix.Read(req.FD, buf)
	if err != nil || n < socks5.GreetingReplyLen {
		r.reschedule(req, now)
		return
	}
	if err := socks5.DecodeGreetingReply(buf[:n]); err != nil {
		r.metrics.HandshakeFailures.Inc()
		r.reschedule(req, now)
		return
	}

	name, _ := req.Name()
	frame, err := socks5.EncodeRequest(r.cfg.OcatDestPort, name)
	if err != nil {
		r.reschedule(req, now)
		return
	}
	if _, err := unix.Write(req.FD, frame); err != nil {
		r.reschedule(req, now)
		return
	}
	req.State = request.StateS5ReqSent
}

func (r *Reactor) handleSOCKS5RequestReply(req *request.Request, now time.Time) {
	buf := make([]byte, 256)
	n, err := unix.Read(req.FD, buf)
	if err != nil || n < socks5.RequestReplyHeaderLen {
		r.reschedule(req, now)
		return
	}
	if err := socks5.DecodeRequestReply(buf[:n]); err != nil {
		r.metrics.HandshakeFailures.Inc()
		r.reschedule(req, now)
		return
	}
	r.completeHandOff(req, now)
}

// handleDNSReply consumes one readable datagram on a DNS_SENT socket. A
// datagram from the wrong source is a stray or spoofed packet, not a
// failure of the outstanding query: it is discarded and the request stays
// in DNS_SENT to wait for the real reply or its own retry timer.
func (r *Reactor) handleDNSReply(req *request.Request, now time.Time) {
	buf := make([]byte, 512)
	n, err := recvFromVerifySource(req.FD, buf, req.NSAddr)
	if errors.Is(err, errSourceMismatch) {
		return
	}
	if err != nil {
		r.closeRequestFD(req)
		req.State = request.StateDelete
		r.metrics.DNSFailures.Inc()
		return
	}

	name, err := dnsquery.ParsePTRResponse(buf[:n], req.ID)
	if err != nil {
		r.closeRequestFD(req)
		req.State = request.StateDelete
		r.metrics.DNSFailures.Inc()
		return
	}

	req.SetName(name)
	r.closeRequestFD(req)
	req.State = request.StateNew
	req.Retry = 0
	req.RestartTime = time.Time{}
}

// completeHandOff registers the socket with the peer layer and marks the
// request DELETE. The handshake is a success outcome, not an error.
func (r *Reactor) completeHandOff(req *request.Request, now time.Time) {
	elapsed := now.Sub(req.ConnectTime)
	fd := req.FD
	delete(r.fdToRequest, fd)
	_ = r.poller.Remove(fd)

	err := peer.HandOff(r.peers, req.Addr, fd, elapsed, func(addr netip.Addr) {
		r.log.Error("peer not found immediately after hand-off", "addr", addr, "severity", "emergency")
	})
	if err != nil {
		r.log.Warn("keepalive failed after hand-off", "error", connerr.Wrap(connerr.CategoryNetwork, connerr.SeverityLow, "post-handoff keepalive", err))
	}

	r.metrics.RecordConnect(true, elapsed)
	r.metrics.RecordHandshake(true)
	req.FD = request.NoFD
	req.State = request.StateDelete
}

// EnqueueViaPipe is a convenience wrapper producers use instead of writing
// the control pipe directly.
func EnqueueViaPipe(pipe *controlpipe.Pipe, addr netip.Addr, perm bool) error {
	return pipe.Send(controlpipe.NewEnqueue(addr, perm))
}
