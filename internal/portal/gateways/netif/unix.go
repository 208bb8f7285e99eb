//go:build unix

package netif

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-portal/internal/portal/domain"
	"golang.org/x/sys/unix"
)

// listenBacklog is the accept queue length for stream sockets.
const listenBacklog = 16

// Unix implements Interface with BSD sockets via golang.org/x/sys/unix.
type Unix struct{}

var _ Interface = Unix{}

// NewUnix returns the host network interface.
func NewUnix() Unix {
	return Unix{}
}

func (Unix) Listen(addr netip.AddrPort, t domain.Transport) (domain.Socket, error) {
	if !addr.Addr().Is4() {
		return -1, fmt.Errorf("listen %s: %w", addr, ErrUnsupportedAddr)
	}
	var typ int
	switch t {
	case domain.TransportUDP:
		typ = unix.SOCK_DGRAM
	case domain.TransportTCP:
		typ = unix.SOCK_STREAM
	default:
		return -1, fmt.Errorf("listen %s: invalid transport %d", addr, t)
	}

	fd, err := unix.Socket(unix.AF_INET, typ, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (domain.Socket, error) {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("%s %s/%s: %w", op, addr, t, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	if err := unix.Bind(fd, toSockaddr(addr)); err != nil {
		return fail("bind", err)
	}
	if t.IsStream() {
		if err := unix.Listen(fd, listenBacklog); err != nil {
			return fail("listen", err)
		}
	}
	return domain.Socket(fd), nil
}

func (Unix) LocalAddr(sock domain.Socket) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(int(sock))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return fromSockaddr(sa), nil
}

func (Unix) Accept(sock domain.Socket) (domain.Socket, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept(int(sock))
	if err != nil {
		return -1, netip.AddrPort{}, mapErr("accept", err)
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, netip.AddrPort{}, fmt.Errorf("set nonblock: %w", err)
	}
	return domain.Socket(nfd), fromSockaddr(sa), nil
}

func (Unix) Read(sock domain.Socket, buf []byte) (int, error) {
	n, err := unix.Read(int(sock), buf)
	if err != nil {
		return 0, mapErr("read", err)
	}
	if n == 0 && len(buf) > 0 {
		return 0, ErrClosed
	}
	return n, nil
}

func (Unix) Write(sock domain.Socket, b []byte) (int, error) {
	n, err := unix.Write(int(sock), b)
	if err != nil {
		return 0, mapErr("write", err)
	}
	return n, nil
}

func (Unix) RecvFrom(sock domain.Socket, buf []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(int(sock), buf, 0)
	if err != nil {
		return 0, netip.AddrPort{}, mapErr("recvfrom", err)
	}
	return n, fromSockaddr(sa), nil
}

func (Unix) SendTo(sock domain.Socket, b []byte, to netip.AddrPort) (int, error) {
	if !to.Addr().Is4() {
		return 0, fmt.Errorf("sendto %s: %w", to, ErrUnsupportedAddr)
	}
	if err := unix.Sendto(int(sock), b, 0, toSockaddr(to)); err != nil {
		return 0, mapErr("sendto", err)
	}
	return len(b), nil
}

func (Unix) Close(sock domain.Socket) error {
	if err := unix.Close(int(sock)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// mapErr folds the retry-later errnos into ErrWouldBlock and wraps the rest
// so errors.Is still sees the errno.
func mapErr(op string, err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
		return ErrWouldBlock
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toSockaddr(ap netip.AddrPort) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port))
	default:
		return netip.AddrPort{}
	}
}
