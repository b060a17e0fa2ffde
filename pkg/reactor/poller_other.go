//go:build !linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// selectPoller is the portable fallback readiness backend for platforms
// without epoll. It rebuilds fd_sets from the watched map on every Wait
// call, which is the accepted cost of syscall.Select-style multiplexing.
type selectPoller struct {
	watched map[int]struct{ read, write bool }
}

// NewPoller creates the platform readiness backend.
func NewPoller() (Poller, error) {
	return &selectPoller{watched: make(map[int]struct{ read, write bool })}, nil
}

func (p *selectPoller) Add(fd int, read, write bool) error {
	p.watched[fd] = struct{ read, write bool }{read, write}
	return nil
}

func (p *selectPoller) Modify(fd int, read, write bool) error {
	p.watched[fd] = struct{ read, write bool }{read, write}
	return nil
}

func (p *selectPoller) Remove(fd int) error {
	delete(p.watched, fd)
	return nil
}

func (p *selectPoller) Wait(timeout time.Duration) ([]Event, error) {
	var readSet, writeSet unix.FdSet
	maxFD := 0
	for fd, dirs := range p.watched {
		if dirs.read {
			readSet.Set(fd)
		}
		if dirs.write {
			writeSet.Set(fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}

	var tv unix.Timeval
	var tvp *unix.Timeval
	if timeout >= 0 {
		tv = unix.NsecToTimeval(timeout.Nanoseconds())
		tvp = &tv
	}

	n, err := unix.Select(maxFD+1, &readSet, &writeSet, nil, tvp)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: select: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for fd := range p.watched {
		r := readSet.IsSet(fd)
		w := writeSet.IsSet(fd)
		if r || w {
			out = append(out, Event{FD: fd, Readable: r, Writable: w})
		}
	}
	return out, nil
}

func (p *selectPoller) Close() error {
	return nil
}
