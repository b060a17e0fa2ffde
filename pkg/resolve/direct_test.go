package resolve

import (
	"context"
	"testing"
)

func TestDirectResolverLocalhost(t *testing.T) {
	d := NewDirectResolver()
	addrPort, err := d.Resolve(context.Background(), "localhost", 80)
	if err != nil {
		t.Fatalf("expected localhost to resolve, got %v", err)
	}
	if addrPort.Port() != 80 {
		t.Fatalf("got port %d, want 80", addrPort.Port())
	}
	if !addrPort.Addr().IsValid() {
		t.Fatal("expected a valid resolved address")
	}
}

func TestDirectResolverUnresolvable(t *testing.T) {
	d := NewDirectResolver()
	_, err := d.Resolve(context.Background(), "this-host-does-not-exist.invalid", 80)
	if err == nil {
		t.Fatal("expected an error resolving an invalid hostname")
	}
}
