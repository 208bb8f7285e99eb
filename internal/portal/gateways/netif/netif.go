// Package netif is the portal's view of the network interface: non-blocking
// sockets addressed by integer handles, plus a readiness poller over them.
// Everything above this package works with domain.Socket and never touches
// file descriptors or the syscall layer directly.
package netif

import (
	"errors"
	"net/netip"
	"time"

	"github.com/haukened/rr-portal/internal/portal/domain"
)

var (
	// ErrWouldBlock means the operation cannot make progress right now.
	// Callers retry on the next readiness event; it is never a fault.
	ErrWouldBlock = errors.New("operation would block")

	// ErrClosed means the peer closed its side of a stream connection.
	ErrClosed = errors.New("connection closed by peer")

	// ErrNotRegistered is returned by a Poller for sockets it does not watch.
	ErrNotRegistered = errors.New("socket not registered with poller")

	// ErrUnsupportedAddr is returned by Listen for non-IPv4 addresses.
	ErrUnsupportedAddr = errors.New("only IPv4 addresses are supported")
)

// Interface is the socket capability the servers are built on.
// All sockets it returns are non-blocking.
type Interface interface {
	// Listen binds a socket of the given transport to addr. Stream sockets
	// are also put into the listening state.
	Listen(addr netip.AddrPort, t domain.Transport) (domain.Socket, error)
	LocalAddr(sock domain.Socket) (netip.AddrPort, error)
	// Accept returns ErrWouldBlock when no connection is pending.
	Accept(sock domain.Socket) (domain.Socket, netip.AddrPort, error)
	// Read returns ErrClosed when the peer has shut down its side.
	Read(sock domain.Socket, buf []byte) (int, error)
	Write(sock domain.Socket, b []byte) (int, error)
	RecvFrom(sock domain.Socket, buf []byte) (int, netip.AddrPort, error)
	SendTo(sock domain.Socket, b []byte, to netip.AddrPort) (int, error)
	Close(sock domain.Socket) error
}

// Readiness is one socket's pending events after a poll.
type Readiness struct {
	Socket domain.Socket
	Events domain.Event
}

// Poller watches sockets for readiness.
type Poller interface {
	Register(sock domain.Socket, interest domain.Event) error
	Modify(sock domain.Socket, interest domain.Event) error
	Unregister(sock domain.Socket) error
	// Poll blocks for at most timeout and returns the ready sockets.
	// A negative timeout blocks indefinitely.
	Poll(timeout time.Duration) ([]Readiness, error)
}
