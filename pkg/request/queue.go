// Package request also provides Queue, the de-duplicated collection of
// pending requests the reactor sweeps every pass. A hash map keyed by
// address gives a de-duplicated set the reactor can iterate in a
// stable-enough order each sweep.
package request

import (
	"fmt"
	"io"
	"net/netip"
)

// Queue holds at most one Request per virtual address. It is owned
// exclusively by the reactor goroutine; producers reach it only through the
// control pipe, never directly.
type Queue struct {
	entries map[netip.Addr]*Request
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{entries: make(map[netip.Addr]*Request)}
}

// Enqueue inserts req unless a request for the same address already
// exists, in which case it is a no-op. Returns true if req was inserted.
func (q *Queue) Enqueue(req *Request) bool {
	if _, exists := q.entries[req.Addr]; exists {
		return false
	}
	q.entries[req.Addr] = req
	return true
}

// Find returns the request for addr, if any.
func (q *Queue) Find(addr netip.Addr) (*Request, bool) {
	r, ok := q.entries[addr]
	return r, ok
}

// Remove unlinks req from the queue.
func (q *Queue) Remove(req *Request) {
	delete(q.entries, req.Addr)
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Snapshot returns every request currently queued. The reactor takes a
// snapshot at the top of each sweep so that requests reset mid-iteration
// don't invalidate Go's map-iteration guarantees.
func (q *Queue) Snapshot() []*Request {
	out := make([]*Request, 0, len(q.entries))
	for _, r := range q.entries {
		out = append(out, r)
	}
	return out
}

// RemoveDeleted sweeps the queue once and removes every request whose
// state is StateDelete. Returns the number removed.
func (q *Queue) RemoveDeleted() int {
	removed := 0
	for addr, r := range q.entries {
		if r.State == StateDelete {
			delete(q.entries, addr)
			removed++
		}
	}
	return removed
}

// NameFunc resolves a request's hostname for display purposes without the
// queue package depending on the address translator.
type NameFunc func(*Request) string

// Dump writes one line per request to w: index, printable IPv6, derived
// hostname with domain, numeric state, permanent/temporary label with
// numeric perm, retry count, connect_time, restart_time — followed by a
// single zero byte end-of-listing marker.
func (q *Queue) Dump(w io.Writer, nameOf NameFunc) error {
	i := 0
	for _, r := range q.entries {
		name := ""
		if nameOf != nil {
			name = nameOf(r)
		}
		label := "temporary"
		if r.Perm {
			label = "permanent"
		}
		permNum := 0
		if r.Perm {
			permNum = 1
		}
		line := fmt.Sprintf("%d %s %s %d %s(%d) retry=%d connect_time=%d restart_time=%d\n",
			i, r.Addr, name, int(r.State), label, permNum, r.Retry,
			r.ConnectTime.Unix(), r.RestartTime.Unix())
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
		i++
	}
	_, err := w.Write([]byte{0})
	return err
}
