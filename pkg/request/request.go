// Package request defines the connector's unit of work — a pending outbound
// connection to one peer — and the state machine it moves through.
package request

import (
	"fmt"
	"net/netip"
	"time"
)

// NoFD is the sentinel value for "no socket currently associated".
const NoFD = -1

// State is one of the lifecycle states a Request moves through.
type State int

const (
	// StateNew is the initial/idle state: no fd, eligible for a fresh
	// connect attempt once RestartTime has passed.
	StateNew State = iota
	// StateDNSSent: a PTR query (UDP variant) or resolver callback
	// (callback variant) is outstanding.
	StateDNSSent
	// StateConnecting: a non-blocking TCP connect is in flight.
	StateConnecting
	// StateS4AReqSent: the SOCKS4a request frame has been written; waiting
	// for the 8-byte reply.
	StateS4AReqSent
	// StateS5GreetSent: the SOCKS5 greeting has been written; waiting for
	// the 2-byte method-selection reply.
	StateS5GreetSent
	// StateS5ReqSent: the SOCKS5 CONNECT request has been written; waiting
	// for the reply header.
	StateS5ReqSent
	// StateReady: handshake complete, socket handed to the peer layer.
	// The reactor does not enter this state: a completed hand-off moves
	// the request straight to StateDelete.
	StateReady
	// StateDelete marks the request for removal in the sweep's cleanup
	// pass. Terminal within one reactor sweep.
	StateDelete
)

// String returns a human-readable name for the state. The dump-queue
// listing prints the numeric value, not this name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDNSSent:
		return "DNS_SENT"
	case StateConnecting:
		return "CONNECTING"
	case StateS4AReqSent:
		return "S4A_REQ_SENT"
	case StateS5GreetSent:
		return "S5_GREET_SENT"
	case StateS5ReqSent:
		return "S5_REQ_SENT"
	case StateReady:
		return "READY"
	case StateDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// HasFD reports whether this state is one in which a request must carry a
// live fd.
func (s State) HasFD() bool {
	switch s {
	case StateConnecting, StateS4AReqSent, StateS5GreetSent, StateS5ReqSent, StateDNSSent:
		return true
	default:
		return false
	}
}

// Request is the unit of work: one pending outbound connection to one
// virtual address. Only the reactor goroutine that owns the Queue holding
// this Request may mutate it.
type Request struct {
	Addr netip.Addr // virtual IPv6 address; the queue's identity key
	Perm bool        // true: retried indefinitely. false: bounded by MaxRetry.

	State State
	FD    int // current socket handle, or NoFD

	Retry       int
	ConnectTime time.Time
	RestartTime time.Time

	// ID is the 16-bit DNS transaction id used while State == StateDNSSent
	// in the UDP-resolver variant.
	ID uint16

	// NSAddr is the nameserver endpoint the last DNS query was sent to;
	// the reactor checks each reply's source against it directly. NSSrc
	// is not written by the reactor.
	NSAddr netip.AddrPort
	NSSrc  netip.AddrPort

	// hostName/nameResolved cache the result of the address/name
	// translator so a request doesn't re-run hosts lookup or re-derive
	// the deterministic encoding on every sweep.
	hostName     string
	nameResolved bool
}

// New creates a Request in its initial state, with no associated socket.
func New(addr netip.Addr, perm bool) *Request {
	return &Request{
		Addr:  addr,
		Perm:  perm,
		State: StateNew,
		FD:    NoFD,
	}
}

// SetName caches the resolved (or deterministically derived) hostname.
func (r *Request) SetName(name string) {
	r.hostName = name
	r.nameResolved = true
}

// Name returns the cached hostname and whether one has been resolved yet.
func (r *Request) Name() (string, bool) {
	return r.hostName, r.nameResolved
}

// ClearName forgets the cached hostname, forcing the translator to run
// again on the next NEW-state pass.
func (r *Request) ClearName() {
	r.hostName = ""
	r.nameResolved = false
}

// Idle reports whether the request's backoff has not yet elapsed.
func (r *Request) Idle(now time.Time) bool {
	return now.Before(r.RestartTime)
}
