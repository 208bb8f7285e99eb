// Package netiftest provides a deterministic in-memory network that
// implements both netif.Interface and netif.Poller.
package netiftest

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
)

// ErrBadSocket is returned for operations on unknown or closed sockets.
var ErrBadSocket = errors.New("bad socket")

// ErrAddrInUse is returned by Listen when the address is already bound.
var ErrAddrInUse = errors.New("address already in use")

// Datagram is one UDP message.
type Datagram struct {
	Peer    netip.AddrPort
	Payload []byte
}

type socket struct {
	transport domain.Transport
	local     netip.AddrPort
	listening bool
	closed    bool
	closes    int

	backlog   []domain.Socket
	peer      netip.AddrPort
	in        []byte
	eof       bool
	hangup    bool
	fault     bool
	readErr   error
	writeErr  error
	modifyErr error
	pending   error
	blocked   bool
	limit     int
	wire      []byte
	writes    int
	datagrams []Datagram
	sent      []Datagram
}

type binding struct {
	addr netip.AddrPort
	t    domain.Transport
}

// Network is the fake. The zero value is not usable; call New.
type Network struct {
	next     domain.Socket
	port     uint16
	socks    map[domain.Socket]*socket
	bound    map[binding]domain.Socket
	interest map[domain.Socket]domain.Event
	polls    int
}

var (
	_ netif.Interface = (*Network)(nil)
	_ netif.Poller    = (*Network)(nil)
)

// New returns an empty network. Socket numbers start at 3 and are never
// reused.
func New() *Network {
	return &Network{
		next:     3,
		port:     40000,
		socks:    make(map[domain.Socket]*socket),
		bound:    make(map[binding]domain.Socket),
		interest: make(map[domain.Socket]domain.Event),
	}
}

func (n *Network) alloc(s *socket) domain.Socket {
	sock := n.next
	n.next++
	n.socks[sock] = s
	return sock
}

func (n *Network) live(sock domain.Socket) (*socket, error) {
	s, ok := n.socks[sock]
	if !ok || s.closed {
		return nil, fmt.Errorf("socket %d: %w", sock, ErrBadSocket)
	}
	return s, nil
}

// Listen implements netif.Interface. Port 0 picks the next free port.
func (n *Network) Listen(addr netip.AddrPort, t domain.Transport) (domain.Socket, error) {
	if !addr.Addr().Is4() {
		return -1, fmt.Errorf("listen %s: %w", addr, netif.ErrUnsupportedAddr)
	}
	if !t.IsValid() {
		return -1, fmt.Errorf("listen %s: invalid transport %d", addr, t)
	}
	if addr.Port() == 0 {
		addr = netip.AddrPortFrom(addr.Addr(), n.port)
		n.port++
	}
	key := binding{addr: addr, t: t}
	if owner, ok := n.bound[key]; ok && !n.socks[owner].closed {
		return -1, fmt.Errorf("bind %s: %w", addr, ErrAddrInUse)
	}
	sock := n.alloc(&socket{transport: t, local: addr, listening: t.IsStream()})
	n.bound[key] = sock
	return sock, nil
}

func (n *Network) LocalAddr(sock domain.Socket) (netip.AddrPort, error) {
	s, err := n.live(sock)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return s.local, nil
}

func (n *Network) Accept(sock domain.Socket) (domain.Socket, netip.AddrPort, error) {
	s, err := n.live(sock)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	if !s.listening {
		return -1, netip.AddrPort{}, fmt.Errorf("accept on socket %d: not listening", sock)
	}
	if len(s.backlog) == 0 {
		return -1, netip.AddrPort{}, netif.ErrWouldBlock
	}
	c := s.backlog[0]
	s.backlog = s.backlog[1:]
	return c, n.socks[c].peer, nil
}

func (n *Network) Read(sock domain.Socket, buf []byte) (int, error) {
	s, err := n.live(sock)
	if err != nil {
		return 0, err
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if len(s.in) == 0 {
		if s.eof {
			return 0, netif.ErrClosed
		}
		return 0, netif.ErrWouldBlock
	}
	c := copy(buf, s.in)
	s.in = s.in[c:]
	return c, nil
}

func (n *Network) Write(sock domain.Socket, b []byte) (int, error) {
	s, err := n.live(sock)
	if err != nil {
		return 0, err
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.blocked {
		return 0, netif.ErrWouldBlock
	}
	c := len(b)
	if s.limit > 0 && c > s.limit {
		c = s.limit
	}
	s.wire = append(s.wire, b[:c]...)
	s.writes++
	return c, nil
}

func (n *Network) RecvFrom(sock domain.Socket, buf []byte) (int, netip.AddrPort, error) {
	s, err := n.live(sock)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	if s.readErr != nil {
		return 0, netip.AddrPort{}, s.readErr
	}
	if err := s.pending; err != nil {
		s.pending = nil
		return 0, netip.AddrPort{}, err
	}
	if len(s.datagrams) == 0 {
		return 0, netip.AddrPort{}, netif.ErrWouldBlock
	}
	d := s.datagrams[0]
	s.datagrams = s.datagrams[1:]
	return copy(buf, d.Payload), d.Peer, nil
}

func (n *Network) SendTo(sock domain.Socket, b []byte, to netip.AddrPort) (int, error) {
	s, err := n.live(sock)
	if err != nil {
		return 0, err
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.sent = append(s.sent, Datagram{Peer: to, Payload: slices.Clone(b)})
	return len(b), nil
}

// Close implements netif.Interface. Closing twice is an error, as with a
// real descriptor.
func (n *Network) Close(sock domain.Socket) error {
	s, ok := n.socks[sock]
	if !ok {
		return fmt.Errorf("close %d: %w", sock, ErrBadSocket)
	}
	s.closes++
	if s.closed {
		return fmt.Errorf("close %d: %w", sock, ErrBadSocket)
	}
	s.closed = true
	return nil
}

// Register implements netif.Poller.
func (n *Network) Register(sock domain.Socket, interest domain.Event) error {
	n.interest[sock] = interest
	return nil
}

func (n *Network) Modify(sock domain.Socket, interest domain.Event) error {
	if _, ok := n.interest[sock]; !ok {
		return fmt.Errorf("modify %d: %w", sock, netif.ErrNotRegistered)
	}
	if s, ok := n.socks[sock]; ok && s.modifyErr != nil {
		return fmt.Errorf("modify %d: %w", sock, s.modifyErr)
	}
	n.interest[sock] = interest
	return nil
}

func (n *Network) Unregister(sock domain.Socket) error {
	if _, ok := n.interest[sock]; !ok {
		return fmt.Errorf("unregister %d: %w", sock, netif.ErrNotRegistered)
	}
	delete(n.interest, sock)
	return nil
}

// Poll reports readiness in ascending socket order. It never sleeps.
func (n *Network) Poll(time.Duration) ([]netif.Readiness, error) {
	n.polls++
	socks := make([]domain.Socket, 0, len(n.interest))
	for s := range n.interest {
		socks = append(socks, s)
	}
	slices.Sort(socks)

	var ready []netif.Readiness
	for _, sock := range socks {
		if ev := n.events(sock, n.interest[sock]); ev != 0 {
			ready = append(ready, netif.Readiness{Socket: sock, Events: ev})
		}
	}
	return ready, nil
}

func (n *Network) events(sock domain.Socket, interest domain.Event) domain.Event {
	s, ok := n.socks[sock]
	if !ok || s.closed {
		return domain.EventInvalid
	}
	var ev domain.Event
	if interest&domain.EventReadable != 0 {
		switch {
		case s.listening:
			if len(s.backlog) > 0 {
				ev |= domain.EventReadable
			}
		case s.transport == domain.TransportUDP:
			if len(s.datagrams) > 0 || s.readErr != nil {
				ev |= domain.EventReadable
			}
		default:
			if len(s.in) > 0 || s.eof || s.readErr != nil {
				ev |= domain.EventReadable
			}
		}
	}
	if interest&domain.EventWritable != 0 && !s.blocked {
		ev |= domain.EventWritable
	}
	if s.hangup {
		ev |= domain.EventHangup
	}
	if s.fault || s.pending != nil {
		ev |= domain.EventError
	}
	return ev
}
