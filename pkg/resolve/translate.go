// Package resolve maps a peer's virtual IPv6 address to the hidden-service
// hostname the proxy should dial, either via a hosts-file reverse lookup or
// a deterministic base32 encoding of the address.
package resolve

import (
	"encoding/base32"
	"net/netip"
)

// HostsTable is the external hosts-cache collaborator. A real daemon backs
// this with its TUN/TAP address table; tests can supply a map-backed fake.
type HostsTable interface {
	// Refresh reloads the cache if the backing source changed.
	Refresh() error
	// Lookup returns the hostname mapped to addr, if any.
	Lookup(addr netip.Addr) (string, bool)
}

// Translator resolves virtual addresses to hostnames.
type Translator struct {
	hosts       HostsTable
	hostsLookup bool
	domain      string
}

// New builds a Translator. hosts may be nil when hostsLookup is false.
func New(hosts HostsTable, hostsLookup bool, domain string) *Translator {
	return &Translator{hosts: hosts, hostsLookup: hostsLookup, domain: domain}
}

// Resolve implements resolve_name(req) per §4.1: consult the hosts table
// first when enabled, falling back to a deterministic encoding. found
// reports whether the name came from the hosts table (true) or was
// synthesized (false) — the reactor uses this to decide whether to issue a
// DNS PTR query for the address (§9 design notes, the "-1 vs synthesized"
// distinction made explicit as a two-variant result).
func (t *Translator) Resolve(addr netip.Addr) (name string, found bool) {
	if t.hostsLookup && t.hosts != nil {
		if err := t.hosts.Refresh(); err == nil {
			if name, ok := t.hosts.Lookup(addr); ok {
				return name, true
			}
		}
	}
	return t.deterministic(addr), false
}

// networkPrefixBytes is the fixed /48 network prefix (fd87:d87e:eb43::/48)
// every virtual address shares; only the 80 bits after it identify the
// peer and feed the hostname encoding.
const networkPrefixBytes = 6

// deterministic produces a stable hostname from the address's host bits: a
// base32 encoding of the 10 bytes following the fixed /48 network prefix
// (no padding, lowercase, matching the 16-character shape of an onion
// label) plus the configured domain suffix.
func (t *Translator) deterministic(addr netip.Addr) string {
	a16 := addr.As16()
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	label := enc.EncodeToString(a16[networkPrefixBytes:])
	return toLower(label) + "." + t.domain
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
