package reactor

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// errSourceMismatch distinguishes a spoofed/stray datagram (discard, keep
// waiting) from a genuine socket failure (give up on this attempt).
var errSourceMismatch = errors.New("reactor: datagram source does not match nameserver")

// dialNonBlockingTCP opens a non-blocking TCP socket and starts an
// asynchronous connect to dst. An EINPROGRESS from connect is not a failure:
// the fd is returned with a nil error, and the caller watches it for
// writability and queries SO_ERROR later. Any other immediate error is a
// genuine dial failure; the socket is closed and the error returned.
func dialNonBlockingTCP(dst netip.AddrPort) (fd int, err error) {
	domain := unix.AF_INET6
	if dst.Addr().Is4() {
		domain = unix.AF_INET
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: set nonblock: %w", err)
	}

	sa := sockaddrFromAddrPort(dst)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddrFromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
}

// pendingError retrieves SO_ERROR for a socket that just became writable
// after a non-blocking connect, per §4.7: "query the socket's pending
// error. If non-zero ... reschedule."
func pendingError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("reactor: getsockopt SO_ERROR: %w", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// dialNonBlockingUDP opens a non-blocking UDP socket for a PTR query,
// matching the address family of dst.
func dialNonBlockingUDP(dst netip.AddrPort) (fd int, err error) {
	domain := unix.AF_INET6
	if dst.Addr().Is4() {
		domain = unix.AF_INET
	}
	fd, err = unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return -1, fmt.Errorf("reactor: udp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: udp set nonblock: %w", err)
	}
	return fd, nil
}

func sendToAddrPort(fd int, data []byte, dst netip.AddrPort) error {
	return unix.Sendto(fd, data, 0, sockaddrFromAddrPort(dst))
}

// recvFromVerifySource reads one UDP datagram and verifies it came from
// expectedSrc: the source address and port must match the nameserver the
// query went to. A mismatch returns errSourceMismatch so the caller can
// discard the datagram and keep waiting, rather than treat it as a
// failure of the query itself.
func recvFromVerifySource(fd int, buf []byte, expectedSrc netip.AddrPort) (int, error) {
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		return 0, fmt.Errorf("reactor: recvfrom: %w", err)
	}
	src, ok := addrPortFromSockaddr(from)
	if !ok || src != expectedSrc {
		return n, errSourceMismatch
	}
	return n, nil
}

func addrPortFromSockaddr(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port)), true
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(s.Addr), uint16(s.Port)), true
	default:
		return netip.AddrPort{}, false
	}
}
