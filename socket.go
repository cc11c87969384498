//go:build linux || darwin

package tcpreactor

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Small socket-option helpers, grounded on original_source/src/Socket.cpp,
// kept as free functions operating on a raw fd the way the original keeps
// them in one small translation unit rather than inlining each call site.

func setReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

func setTCPNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

func setKeepAlive(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
}

func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func socketError(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

func newNonblockingSocket(addr netip.AddrPort) (int, error) {
	domain := unix.AF_INET
	if addr.Addr().Is6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("tcpreactor: socket: %w", err)
	}
	return fd, nil
}

func sockaddrFromAddrPort(addr netip.AddrPort) unix.Sockaddr {
	if addr.Addr().Is4() {
		sa := &unix.SockaddrInet4{Port: int(addr.Port())}
		sa.Addr = addr.Addr().As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port())}
	sa.Addr = addr.Addr().As16()
	return sa
}

func addrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	default:
		return netip.AddrPort{}
	}
}

func localAddr(fd int) (InetAddress, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return InetAddress{}, err
	}
	return NewInetAddress(addrPortFromSockaddr(sa)), nil
}

func peerAddr(fd int) (InetAddress, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return InetAddress{}, err
	}
	return NewInetAddress(addrPortFromSockaddr(sa)), nil
}
