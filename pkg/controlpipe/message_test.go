package controlpipe

import (
	"net/netip"
	"testing"
)

func TestEnqueueRoundTrip(t *testing.T) {
	addr := netip.MustParseAddr("fd87:d87e:eb43::1")
	want := NewEnqueue(addr, true)

	buf := Encode(want)
	got, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Kind != KindEnqueue {
		t.Fatalf("got kind %v, want KindEnqueue", got.Kind)
	}
	if got.Addr != addr {
		t.Fatalf("got addr %v, want %v", got.Addr, addr)
	}
	if !got.Perm {
		t.Fatal("expected perm flag to round-trip as true")
	}
}

func TestWakeupRoundTrip(t *testing.T) {
	buf := Encode(NewWakeup())
	got, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Kind != KindWakeup {
		t.Fatalf("got kind %v, want KindWakeup", got.Kind)
	}
	if !got.Addr.IsUnspecified() {
		t.Fatal("a wakeup message must carry the unspecified address")
	}
}

func TestDumpQueueRoundTrip(t *testing.T) {
	buf := Encode(NewDumpQueue(7))
	got, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Kind != KindDumpQueue {
		t.Fatalf("got kind %v, want KindDumpQueue", got.Kind)
	}
	if got.FD != 7 {
		t.Fatalf("got fd %d, want 7", got.FD)
	}
}

func TestDecodeRejectsShortRecord(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected short record to be rejected")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	buf := Encode(NewWakeup())
	buf[0] = 0xFF
	if _, err := Decode(buf[:]); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}
