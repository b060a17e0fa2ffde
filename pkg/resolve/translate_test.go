package resolve

import (
	"errors"
	"net/netip"
	"testing"
)

type fakeHosts struct {
	refreshErr error
	table      map[netip.Addr]string
}

func (f *fakeHosts) Refresh() error { return f.refreshErr }

func (f *fakeHosts) Lookup(addr netip.Addr) (string, bool) {
	name, ok := f.table[addr]
	return name, ok
}

func TestResolveHostsHit(t *testing.T) {
	a := netip.MustParseAddr("fd87:d87e:eb43::1")
	hosts := &fakeHosts{table: map[netip.Addr]string{a: "facebookcorewwwi.onion"}}
	tr := New(hosts, true, "b32.i2p")

	name, found := tr.Resolve(a)
	if !found {
		t.Fatal("expected hosts lookup to report found")
	}
	if name != "facebookcorewwwi.onion" {
		t.Fatalf("got %q, want facebookcorewwwi.onion", name)
	}
}

func TestResolveFallsBackToDeterministic(t *testing.T) {
	a := netip.MustParseAddr("fd87:d87e:eb43::1")
	tr := New(nil, false, "b32.i2p")

	name, found := tr.Resolve(a)
	if found {
		t.Fatal("expected deterministic fallback to report found=false")
	}
	if len(name) == 0 {
		t.Fatal("expected a synthesized hostname")
	}
	want := "b32.i2p"
	if name[len(name)-len(want):] != want {
		t.Fatalf("got %q, want suffix %q", name, want)
	}
}

func TestResolveHostsErrorFallsBack(t *testing.T) {
	a := netip.MustParseAddr("fd87:d87e:eb43::1")
	hosts := &fakeHosts{refreshErr: errors.New("boom"), table: map[netip.Addr]string{a: "should-not-be-used.onion"}}
	tr := New(hosts, true, "b32.i2p")

	_, found := tr.Resolve(a)
	if found {
		t.Fatal("a failed refresh must not use a stale hosts entry")
	}
}

func TestDeterministicMatchesOnioncatScenario(t *testing.T) {
	// fd87:d87e:eb43::/48 is the fixed network prefix; the remaining 80
	// bits are the onion service's truncated public-key hash, which
	// base32-encodes directly to its 16-character .onion label.
	a := netip.MustParseAddr("fd87:d87e:eb43:2804:40b9:ca13:a24b:5ac8")
	tr := New(nil, false, "onion")

	name, found := tr.Resolve(a)
	if found {
		t.Fatal("expected deterministic fallback to report found=false")
	}
	if name != "facebookcorewwwi.onion" {
		t.Fatalf("got %q, want facebookcorewwwi.onion", name)
	}
}

func TestDeterministicIsStable(t *testing.T) {
	a := netip.MustParseAddr("fd87:d87e:eb43::1")
	tr := New(nil, false, "b32.i2p")

	n1, _ := tr.Resolve(a)
	n2, _ := tr.Resolve(a)
	if n1 != n2 {
		t.Fatalf("deterministic encoding must be stable, got %q then %q", n1, n2)
	}
}
