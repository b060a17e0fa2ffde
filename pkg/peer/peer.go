// Package peer defines the external peer-layer collaborator the connector
// hands established sockets to. The real table and its locking live
// outside the connector's scope; this package names the interface the
// reactor programs against and a lock-ordered handle for one peer.
package peer

import (
	"net/netip"
	"time"
)

// Handle is a single peer entry. SendKeepalive and Register are invoked
// while the caller holds the handle's lock (acquired by Table.Lookup).
type Handle interface {
	// Register associates fd with this peer, recording how long the
	// connect took.
	Register(fd int, elapsed time.Duration)
	// SendKeepalive transmits one keepalive datagram/frame on the
	// newly-registered socket.
	SendKeepalive() error
	// Unlock releases the per-peer lock acquired by Table.Lookup.
	Unlock()
}

// Table is the peer-table collaborator. Implementations must honor the
// two-level locking order the reactor relies on: Lock the table, look the
// peer up, lock the peer, then release the table lock — never the
// reverse.
type Table interface {
	// Lock acquires the table-wide lock and returns a release function.
	Lock() (unlock func())
	// Lookup finds the peer for addr while the table lock is held, and
	// returns a Handle with its own lock already acquired. found is false
	// if no peer has been registered for addr yet, which is a logic error
	// at emergency severity, not an ordinary miss.
	Lookup(addr netip.Addr) (h Handle, found bool)
}

// HandOff registers the socket with the peer layer: acquire the table
// lock, look the peer up, lock it, release the table lock, send one
// keepalive, release the peer lock. emergencyLog is called (not panicked)
// if the peer is missing, since that indicates a bug elsewhere in the
// system rather than a connector failure.
func HandOff(table Table, addr netip.Addr, fd int, elapsed time.Duration, emergencyLog func(addr netip.Addr)) error {
	unlockTable := table.Lock()
	handle, found := table.Lookup(addr)
	unlockTable()

	if !found {
		emergencyLog(addr)
		return nil
	}
	defer handle.Unlock()

	handle.Register(fd, elapsed)
	return handle.SendKeepalive()
}
