//go:build linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux readiness backend, grounded on the raw-syscall
// style golang.org/x/sys/unix is used in elsewhere in this module (socket
// creation, connect, SO_ERROR queries): no net.Conn wrapper, because the
// reactor needs direct ownership of descriptor readiness.
type epollPoller struct {
	epfd       int
	registered map[int]bool
}

// NewPoller creates the platform readiness backend.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd, registered: make(map[int]bool)}, nil
}

func eventMask(read, write bool) uint32 {
	var mask uint32
	if read {
		mask |= unix.EPOLLIN
	}
	if write {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Add registers fd's watched directions, or updates them if fd is already
// known to this poller. The reactor re-adds every live fd on every sweep
// as its state (and therefore its watched directions) changes, so Add
// must be idempotent rather than assume a fresh descriptor each time.
func (p *epollPoller) Add(fd int, read, write bool) error {
	if p.registered[fd] {
		return p.Modify(fd, read, write)
	}
	ev := unix.EpollEvent{Events: eventMask(read, write), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd %d: %w", fd, err)
	}
	p.registered[fd] = true
	return nil
}

func (p *epollPoller) Modify(fd int, read, write bool) error {
	ev := unix.EpollEvent{Events: eventMask(read, write), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd %d: %w", fd, err)
	}
	p.registered[fd] = true
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	delete(p.registered, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	events := make([]unix.EpollEvent, 64)
	ms := int(timeout.Milliseconds())
	if timeout < 0 {
		ms = -1
	}
	n, err := unix.EpollWait(p.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{
			FD:       int(events[i].Fd),
			Readable: events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: events[i].Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
