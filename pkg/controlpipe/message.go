// Package controlpipe implements the producer-to-connector channel: a
// discriminated wire encoding rather than a raw struct cast of the
// in-memory request, since a struct cast across that boundary is
// ABI-fragile the moment either side's build changes field layout.
package controlpipe

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Kind discriminates the three message shapes the control pipe carries.
type Kind byte

const (
	// KindEnqueue carries a new request: a non-unspecified address and its
	// initial perm flag.
	KindEnqueue Kind = iota + 1
	// KindWakeup carries no payload; it forces an immediate reactor sweep.
	KindWakeup
	// KindDumpQueue carries the target file descriptor to write a queue
	// listing to.
	KindDumpQueue
)

// recordLen is the fixed wire size of every record: 1 byte kind, 16 bytes
// address, 1 byte perm, 4 bytes fd (big-endian, unused unless Kind is
// KindDumpQueue).
const recordLen = 1 + 16 + 1 + 4

// RecordLen is the fixed size every control-pipe write and read must use.
const RecordLen = recordLen

// Message is the decoded form of one control-pipe record.
type Message struct {
	Kind Kind
	Addr netip.Addr
	Perm bool
	FD   int32
}

// Encode serializes m into a fixed-size record ready for a single atomic
// pipe write.
func Encode(m Message) [recordLen]byte {
	var buf [recordLen]byte
	buf[0] = byte(m.Kind)

	a16 := m.Addr.As16()
	copy(buf[1:17], a16[:])

	if m.Perm {
		buf[17] = 1
	}
	binary.BigEndian.PutUint32(buf[18:22], uint32(m.FD))
	return buf
}

// Decode parses a fixed-size record read from the pipe.
func Decode(data []byte) (Message, error) {
	if len(data) < recordLen {
		return Message{}, fmt.Errorf("controlpipe: short record: got %d bytes, want %d", len(data), recordLen)
	}

	kind := Kind(data[0])
	var a16 [16]byte
	copy(a16[:], data[1:17])

	m := Message{
		Kind: kind,
		Addr: netip.AddrFrom16(a16),
		Perm: data[17] != 0,
		FD:   int32(binary.BigEndian.Uint32(data[18:22])),
	}

	switch kind {
	case KindEnqueue, KindWakeup, KindDumpQueue:
	default:
		return Message{}, fmt.Errorf("controlpipe: unknown message kind %d", kind)
	}
	return m, nil
}

// NewEnqueue builds an Enqueue message for addr with the given perm flag.
func NewEnqueue(addr netip.Addr, perm bool) Message {
	return Message{Kind: KindEnqueue, Addr: addr, Perm: perm}
}

// NewWakeup builds a Wakeup message.
func NewWakeup() Message {
	return Message{Kind: KindWakeup, Addr: netip.IPv6Unspecified()}
}

// NewDumpQueue builds a DumpQueue message targeting fd.
func NewDumpQueue(fd int32) Message {
	return Message{Kind: KindDumpQueue, Addr: netip.IPv6Unspecified(), FD: fd}
}
